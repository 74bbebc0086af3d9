package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName    = "github.com/x-research-team/dtx-sync/sidecar/api"
	instrumentationVersion = "0.1.0"
	metricKeyPrefix        = "api."
)

// counting считает обработанные запросы. Счетчик отдается ресурсом
// /count/total.
func counting(counter *atomic.Int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		counter.Add(1)
		c.Next()
	}
}

// logging пишет каждый запрос в slog.
func logging(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		return nil
	}
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.String("route", c.FullPath()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(startTime)),
		}
		if status >= http.StatusInternalServerError {
			logger.Error("запрос завершился ошибкой", attrs...)
			return
		}
		logger.Debug("запрос обработан", attrs...)
	}
}

// metrics считает запросы и их длительность в разрезе маршрутов.
func metrics(provider metric.MeterProvider) gin.HandlerFunc {
	if provider == nil {
		return nil
	}
	meter := provider.Meter(instrumentationName)

	requestCounter, err := meter.Int64Counter(
		metricKeyPrefix+"request.count",
		metric.WithDescription("Количество входящих запросов"),
		metric.WithUnit("{requests}"),
	)
	if err != nil {
		panic(fmt.Sprintf("не удалось создать счетчик request.count: %v", err))
	}
	durationHist, err := meter.Float64Histogram(
		metricKeyPrefix+"request.duration",
		metric.WithDescription("Длительность обработки входящего запроса"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		panic(fmt.Sprintf("не удалось создать гистограмму request.duration: %v", err))
	}

	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()

		attrs := metric.WithAttributes(
			attribute.String("http.route", c.FullPath()),
			attribute.String("status", strconv.Itoa(c.Writer.Status())),
		)
		ctx := c.Request.Context()
		requestCounter.Add(ctx, 1, attrs)
		durationHist.Record(ctx, float64(time.Since(startTime).Milliseconds()), attrs)
	}
}

// tracing извлекает контекст трассировки из заголовков и открывает
// серверный спан.
func tracing(tp trace.TracerProvider, p propagation.TextMapPropagator) gin.HandlerFunc {
	if tp == nil {
		return nil
	}
	if p == nil {
		p = propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
	}
	tracer := tp.Tracer(instrumentationName, trace.WithInstrumentationVersion(instrumentationVersion))

	return func(c *gin.Context) {
		r := c.Request
		ctx := p.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, fmt.Sprintf("%s %s", r.Method, r.URL.Path),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
			),
		)
		defer span.End()

		c.Request = r.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(
			attribute.String("http.route", c.FullPath()),
			attribute.Int("http.response.status_code", status),
		)
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

// chain отбрасывает выключенные middleware, сохраняя порядок.
func chain(middlewares ...gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(middlewares))
	for _, mw := range middlewares {
		if mw != nil {
			out = append(out, mw)
		}
	}
	return out
}
