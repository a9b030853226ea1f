package servers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

type httpServer struct {
	name     string
	internal *http.Server
}

func NewHttpServer(name string, server *http.Server) Server {
	return &httpServer{
		name:     name,
		internal: server,
	}
}

func NewServer(host string, port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort(host, port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (server *httpServer) Run(ctx context.Context) error {
	log.Ctx(ctx).Info().Str("stage", "startup").Str("component", server.name).
		Str("address", server.internal.Addr).Msg("starting up")

	server.internal.BaseContext = func(net.Listener) context.Context { return ctx }

	err := server.internal.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Ctx(ctx).Error().Str("stage", "startup").Str("component", server.name).Err(err).Msg("failed to listen or serve")
		return ErrServerFailedToStart(server.name, err)
	}

	return nil
}

func (server *httpServer) Stop(ctx context.Context) error {
	log.Ctx(ctx).Info().Str("stage", "shut down").Str("component", server.name).Msg("stopping")
	defer log.Ctx(ctx).Info().Str("stage", "shut down").Str("component", server.name).Msg("stopped")

	err := server.internal.Shutdown(ctx)
	if err != nil {
		log.Ctx(ctx).Error().Str("stage", "shut down").Str("component", server.name).Err(err).Msg("failed to stop")
		return ErrServerFailedToStop(server.name, err)
	}

	return nil
}
