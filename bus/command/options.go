package command

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// defaultSlowThreshold — длительность, после которой исход вызова
// логируется как медленный.
const defaultSlowThreshold = 3 * time.Second

// config содержит неэкспортируемую конфигурацию канала команд.
type config[C Command[R], R any] struct {
	logger         *slog.Logger
	slowThreshold  time.Duration
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	middlewares    []Middleware[C, R]
}

// Option — функциональная опция канала команд.
type Option[C Command[R], R any] func(*config[C, R])

// WithLogger задает логгер канала. nil отключает логирование.
func WithLogger[C Command[R], R any](logger *slog.Logger) Option[C, R] {
	return func(c *config[C, R]) {
		c.logger = logger
	}
}

// WithSlowThreshold задает порог, начиная с которого исход вызова
// логируется с уровнем Warn.
func WithSlowThreshold[C Command[R], R any](d time.Duration) Option[C, R] {
	return func(c *config[C, R]) {
		c.slowThreshold = d
	}
}

// WithTracerProvider включает трассировку вызовов: спан открывается при
// вызове и закрывается при установке исхода.
func WithTracerProvider[C Command[R], R any](provider trace.TracerProvider) Option[C, R] {
	return func(c *config[C, R]) {
		c.tracerProvider = provider
	}
}

// WithMeterProvider включает сбор метрик по исходам вызовов.
func WithMeterProvider[C Command[R], R any](provider metric.MeterProvider) Option[C, R] {
	return func(c *config[C, R]) {
		c.meterProvider = provider
	}
}

// WithMiddleware добавляет пользовательские middleware после стандартных.
func WithMiddleware[C Command[R], R any](mw ...Middleware[C, R]) Option[C, R] {
	return func(c *config[C, R]) {
		c.middlewares = append(c.middlewares, mw...)
	}
}
