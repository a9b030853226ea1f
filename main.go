package main

import (
	"context"
	"net/http"
	"net/http/pprof"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"plancake/core"
	"plancake/pkg/resources"
	"plancake/pkg/servers"
)

func main() {
	var err error

	name, version, env := "plancake", "1.0", "local"

	// 1. Config (Logger base included)
	ctx := resources.Default(context.Background(), name, version, env)
	settings := resources.LoadSettings()

	startupLogger := log.Ctx(ctx).With().Str("stage", "startup").Str("component", "main").Logger()
	shutdownLogger := log.Ctx(ctx).With().Str("stage", "shut down").Str("component", "main").Logger()

	startupLogger.Info().Msg("application starting up")
	defer shutdownLogger.Info().Msg("application stopped")

	// 2. Telemetry (traces/metrics/logs); zerolog keeps printing to stdout and is also exported via OTLP
	if settings.OtelEnabled {
		hookFn := func(ctx context.Context) (context.Context, error) {
			log.Logger = log.Logger.Hook(resources.NewZerologHook(name, version, env))
			return log.Logger.WithContext(ctx), nil
		}

		var stopFn resources.StopFn

		ctx, stopFn, err = resources.Observe(ctx, name, version, env, hookFn,
			resources.WithEndpoint(settings.OtelEndpoint), resources.WithInsecure())
		if err != nil {
			shutdownLogger.Fatal().Err(err).Msg("unable to setup otel telemetry")
		}
		defer stopFn(ctx, 15*time.Second)
	}

	// 3. Storage
	var repo core.Repository

	switch settings.Storage {
	case resources.StorageMemory:
		startupLogger.Warn().Msg("using in-memory storage, data is lost on restart")

		repo = core.NewMemoryRepository()

	default:
		pool, stopFn, err := resources.CreateDatabaseConnectionPool(ctx, settings.DBConnectAttempts)
		if err != nil {
			shutdownLogger.Fatal().Err(err).Msg("unable to create database connection pool")
		}
		defer stopFn(ctx, 15*time.Second)

		repo = core.NewRepository(pool)
	}

	// 4. Wiring
	scheduler := core.NewScheduler(repo, core.SchedulerConfig{
		MaxEventDays:  settings.MaxEventDays,
		CodeLength:    settings.CodeLength,
		CodeAttempts:  settings.CodeAttempts,
		CodeRetention: settings.CodeRetention,
	})
	handlers := core.NewHandlers(scheduler)

	// 5. Daemons/servers setup
	gin.SetMode(gin.ReleaseMode)

	restHandler := gin.New()
	restHandler.Use(gin.Recovery())
	restHandler.Use(resources.LoggerMiddleware(ctx))
	restHandler.Use(resources.TracerMiddleware(name))
	restHandler.Use(resources.MeterMiddleware(name))
	restHandler.Use(core.IdentityMiddleware(settings.IdentityHeader))

	event := restHandler.Group("/event")
	event.POST("/date-create", handlers.PostDateCreate)
	event.POST("/week-create", handlers.PostWeekCreate)
	event.POST("/check-code", handlers.PostCheckCode)
	event.POST("/date-edit", handlers.PostDateEdit)
	event.POST("/week-edit", handlers.PostWeekEdit)
	event.GET("/get-details", handlers.GetEventDetails)

	availability := restHandler.Group("/availability")
	availability.POST("/add", handlers.PostAvailabilityAdd)
	availability.POST("/check-display-name", handlers.PostCheckDisplayName)
	availability.GET("/get-self", handlers.GetSelfAvailability)
	availability.GET("/get-all", handlers.GetAllAvailability)
	availability.POST("/remove-self", handlers.PostRemoveSelfAvailability)
	availability.POST("/remove", handlers.PostRemoveAvailability)

	restHandler.GET("/dashboard/get", handlers.GetDashboard)

	debugHandler := http.NewServeMux()
	debugHandler.HandleFunc("/debug/pprof/", pprof.Index)
	debugHandler.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	debugHandler.HandleFunc("/debug/pprof/profile", pprof.Profile)
	debugHandler.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	debugHandler.HandleFunc("/debug/pprof/trace", pprof.Trace)

	// 6. Daemons/servers lifecycle
	errChan := make(chan error, 16)

	stopFn := servers.Start(ctx, servers.NewBaseServer("base-server"), errChan)
	defer stopFn(ctx, 15*time.Second)

	purgeJob := func(ctx context.Context) error {
		_, err := scheduler.PurgeExpiredCodes(ctx)
		return err
	}
	stopFn = servers.Start(ctx, servers.NewCronServer("maintenance-server", settings.MaintenanceCron, purgeJob), errChan)
	defer stopFn(ctx, 15*time.Second)

	debugServer := servers.NewServer("localhost", settings.DebugPort, debugHandler)
	stopFn = servers.Start(ctx, servers.NewHttpServer("debug-server", debugServer), errChan)
	defer stopFn(ctx, 15*time.Second)

	restServer := servers.NewServer(settings.HttpHost, settings.HttpPort, restHandler)
	stopFn = servers.Start(ctx, servers.NewHttpServer("rest-server", restServer), errChan)
	defer stopFn(ctx, 15*time.Second)

	startupLogger.Info().Msg("application running")

	// 7. Wait for shutdown signal
	notifyCtx, cancelNotifyFn := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancelNotifyFn()

	select {
	case <-notifyCtx.Done():
		startupLogger.Info().Msg("application shutdown requested")
	case runErr := <-errChan:
		shutdownLogger.Error().Err(runErr).Msg("runtime error")
	}
}
