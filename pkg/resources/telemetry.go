package resources

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type HookFn func(ctx context.Context) (context.Context, error)

type observeOptions struct {
	endpoint string
	insecure bool
}

type ObserveOption func(*observeOptions)

func WithEndpoint(endpoint string) ObserveOption {
	return func(o *observeOptions) { o.endpoint = endpoint }
}

func WithInsecure() ObserveOption {
	return func(o *observeOptions) { o.insecure = true }
}

// Observe installs the global trace, metric and log providers, all exporting
// over OTLP/gRPC, then runs hookFn so the caller can bridge its logger into
// the log pipeline.
func Observe(ctx context.Context, name string, version string, env string, hookFn HookFn, opts ...ObserveOption) (context.Context, StopFn, error) {
	options := observeOptions{endpoint: "localhost:4317"}
	for _, opt := range opts {
		opt(&options)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	res := resource.NewSchemaless(
		attribute.String("service.name", name),
		attribute.String("service.version", version),
		attribute.String("deployment.environment", env),
	)

	tp, err := newTracerProvider(ctx, res, options)
	if err != nil {
		return ctx, NoopStop, err
	}

	mp, err := newMeterProvider(ctx, res, options)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return ctx, NoopStop, err
	}

	lp, err := newLoggerProvider(ctx, res, options)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)

		return ctx, NoopStop, err
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	global.SetLoggerProvider(lp)

	stopFn := func(ctx context.Context, timeout time.Duration) {
		logger := log.Ctx(ctx).With().Str("stage", "shut down").Str("component", "telemetry").Logger()
		logger.Info().Msg("stopping")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		err := errors.Join(tp.Shutdown(shutdownCtx), mp.Shutdown(shutdownCtx), lp.Shutdown(shutdownCtx))
		if err != nil {
			logger.Error().Err(err).Msg("failed to stop")
			return
		}

		logger.Info().Msg("stopped")
	}

	if hookFn != nil {
		ctx, err = hookFn(ctx)
		if err != nil {
			stopFn(ctx, 5*time.Second)
			return ctx, NoopStop, fmt.Errorf("failed to run telemetry hook: %w", err)
		}
	}

	return ctx, stopFn, nil
}

func newTracerProvider(ctx context.Context, res *resource.Resource, options observeOptions) (*sdktrace.TracerProvider, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(options.endpoint)}
	if options.insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create the OTLP trace exporter: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	), nil
}

func newMeterProvider(ctx context.Context, res *resource.Resource, options observeOptions) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(options.endpoint)}
	if options.insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create the OTLP metric exporter: %w", err)
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
		sdkmetric.WithResource(res),
	), nil
}

func newLoggerProvider(ctx context.Context, res *resource.Resource, options observeOptions) (*sdklog.LoggerProvider, error) {
	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(options.endpoint)}
	if options.insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}

	exp, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create the OTLP log exporter: %w", err)
	}

	return sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
		sdklog.WithResource(res),
	), nil
}
