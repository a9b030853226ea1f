package resources

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type HTTPMetrics struct {
	reqs    metric.Int64Counter
	latency metric.Float64Histogram
}

func NewHTTPMetrics(name string) *HTTPMetrics {
	meter := otel.Meter(name)

	reqs, _ := meter.Int64Counter(
		"http.server.requests",
		metric.WithDescription("HTTP requests"),
	)
	latency, _ := meter.Float64Histogram(
		"http.server.duration.ms",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)

	return &HTTPMetrics{reqs: reqs, latency: latency}
}

func (m *HTTPMetrics) Middleware() gin.HandlerFunc {
	return func(gctx *gin.Context) {
		start := time.Now()

		gctx.Next()

		route := gctx.FullPath()
		if route == "" {
			route = "unmatched"
		}

		status := gctx.Writer.Status()

		attrs := metric.WithAttributes(
			attribute.String("http.route", route),
			attribute.String("http.method", gctx.Request.Method),
			attribute.Int("http.status_code", status),
			attribute.String("http.status_class", strconv.Itoa(status/100)+"xx"),
		)

		m.reqs.Add(gctx.Request.Context(), 1, attrs)
		m.latency.Record(gctx.Request.Context(), float64(time.Since(start).Milliseconds()), attrs)
	}
}

func TracerMiddleware(name string) gin.HandlerFunc {
	return otelgin.Middleware(name)
}

func MeterMiddleware(name string) gin.HandlerFunc {
	return NewHTTPMetrics(name).Middleware()
}

// LoggerMiddleware puts the logger carried by ctx on every request context so
// handlers can use log.Ctx.
func LoggerMiddleware(ctx context.Context) gin.HandlerFunc {
	base := log.Ctx(ctx)

	return func(gctx *gin.Context) {
		logger := base.With().Str("method", gctx.Request.Method).Str("path", gctx.Request.URL.Path).Logger()
		gctx.Request = gctx.Request.WithContext(logger.WithContext(gctx.Request.Context()))

		gctx.Next()
	}
}
