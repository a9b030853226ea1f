package servers

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"plancake/pkg/resources"
)

// Start runs server in the background. A run error is sent to errChan. The
// returned StopFn stops the server within the given timeout.
func Start(ctx context.Context, server Server, errChan chan<- error) resources.StopFn {
	go func() {
		err := server.Run(ctx)
		if err != nil {
			errChan <- err
		}
	}()

	return func(ctx context.Context, timeout time.Duration) {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		err := server.Stop(stopCtx)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("server did not stop cleanly")
		}
	}
}
