package resources

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

func DatabaseURL() string {
	//nolint:nosprintfhostport
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		viper.GetString("DB_USER"), viper.GetString("DB_PASSWORD"),
		viper.GetString("DB_HOST"), viper.GetString("DB_PORT"), viper.GetString("DB_NAME"))
}

// CreateDatabaseConnectionPool opens the pool and pings it until the database
// answers or attempts runs out.
func CreateDatabaseConnectionPool(ctx context.Context, attempts uint) (*pgxpool.Pool, StopFn, error) {
	cfg, err := pgxpool.ParseConfig(DatabaseURL())
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("unable to parse database connection string")
		return nil, NoopStop, fmt.Errorf("failed to parse database connection string: %w", err)
	}

	cfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("unable to connect to database")
		return nil, NoopStop, fmt.Errorf("failed to connect to database: %w", err)
	}

	if attempts == 0 {
		attempts = 1
	}

	err = retry.Do(
		func() error { return pool.Ping(ctx) },
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(500*time.Millisecond),
		retry.OnRetry(func(n uint, err error) {
			log.Ctx(ctx).Warn().Err(err).Uint("attempt", n+1).Msg("database not ready")
		}),
	)
	if err != nil {
		pool.Close()
		log.Ctx(ctx).Error().Err(err).Msg("unable to ping database")

		return nil, NoopStop, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, ClosableStop("database-pool", pool), nil
}

// ClosableStop adapts a Closable to StopFn. Close runs in the background so a
// hung resource cannot hold shutdown longer than timeout.
func ClosableStop(name string, closable Closable) StopFn {
	return func(ctx context.Context, timeout time.Duration) {
		logger := log.Ctx(ctx).With().Str("stage", "shut down").Str("component", name).Logger()
		logger.Info().Msg("stopping")

		done := make(chan struct{})

		go func() {
			closable.Close()
			close(done)
		}()

		select {
		case <-done:
			logger.Info().Msg("stopped")
		case <-time.After(timeout):
			logger.Warn().Dur("timeout", timeout).Msg("timed out while stopping")
		}
	}
}
