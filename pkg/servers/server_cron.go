package servers

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

type cronServer struct {
	name     string
	spec     string
	job      Job
	internal CronServer
}

func NewCronServer(name string, spec string, job Job) Server {
	return NewCronServerWith(name, spec, job, cron.New())
}

func NewCronServerWith(name string, spec string, job Job, internal CronServer) Server {
	return &cronServer{
		name:     name,
		spec:     spec,
		job:      job,
		internal: internal,
	}
}

func (server *cronServer) Run(ctx context.Context) error {
	log.Ctx(ctx).Info().Str("stage", "startup").Str("component", server.name).Str("spec", server.spec).Msg("starting up")

	_, err := server.internal.AddFunc(server.spec, func() { server.runJob(ctx) })
	if err != nil {
		log.Ctx(ctx).Error().Str("stage", "startup").Str("component", server.name).Err(err).Msg("failed to schedule job")
		return ErrServerFailedToStart(server.name, ErrJobFailedToSchedule(server.name, server.spec, err))
	}

	server.internal.Start()

	return nil
}

func (server *cronServer) runJob(ctx context.Context) {
	start := time.Now()

	err := server.job(ctx)
	if err != nil {
		log.Ctx(ctx).Error().Str("component", server.name).Err(err).Msg("job failed")
		return
	}

	log.Ctx(ctx).Debug().Str("component", server.name).Dur("elapsed", time.Since(start)).Msg("job finished")
}

func (server *cronServer) Stop(ctx context.Context) error {
	log.Ctx(ctx).Info().Str("stage", "shut down").Str("component", server.name).Msg("stopping")

	select {
	case <-server.internal.Stop().Done():
		log.Ctx(ctx).Info().Str("stage", "shut down").Str("component", server.name).Msg("stopped")
		return nil
	case <-ctx.Done():
		log.Ctx(ctx).Error().Str("stage", "shut down").Str("component", server.name).Err(ctx.Err()).Msg("failed to stop")
		return ErrServerFailedToStop(server.name, ctx.Err())
	}
}
