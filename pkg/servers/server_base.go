package servers

import (
	"context"

	"github.com/rs/zerolog/log"

	"plancake/pkg/resources"
)

// baseServer blocks until stopped and then closes its resources. It keeps the
// process alive when no other server is attached.
type baseServer struct {
	name         string
	closeChannel chan struct{}
	closables    []resources.Closable
}

func NewBaseServer(name string, closables ...resources.Closable) Server {
	return &baseServer{
		name:         name,
		closeChannel: make(chan struct{}),
		closables:    closables,
	}
}

func (server *baseServer) Run(ctx context.Context) error {
	log.Ctx(ctx).Info().Str("stage", "startup").Str("component", server.name).Msg("starting up")

	select {
	case <-server.closeChannel:
	case <-ctx.Done():
	}

	return nil
}

func (server *baseServer) Stop(ctx context.Context) error {
	log.Ctx(ctx).Info().Str("stage", "shut down").Str("component", server.name).Msg("stopping")
	defer log.Ctx(ctx).Info().Str("stage", "shut down").Str("component", server.name).Msg("stopped")

	for _, closable := range server.closables {
		closable.Close()
	}

	close(server.closeChannel)

	return nil
}
