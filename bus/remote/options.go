package remote

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultRetryInterval = 5 * time.Second
	defaultMaxInFlight   = 16
)

// config содержит неэкспортируемую конфигурацию шлюза.
type config struct {
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	propagator     propagation.TextMapPropagator
	middlewares    []Middleware
	retryInterval  time.Duration
	maxInFlight    int64
}

// Option определяет тип функциональных опций шлюза.
type Option func(*config)

// WithLogger устанавливает логгер шлюза.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithTracerProvider устанавливает провайдер трассировки.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(c *config) {
		c.tracerProvider = provider
	}
}

// WithMeterProvider устанавливает провайдер метрик.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(c *config) {
		c.meterProvider = provider
	}
}

// WithPropagator устанавливает механизм распространения контекста трассировки
// в заголовки запроса.
func WithPropagator(propagator propagation.TextMapPropagator) Option {
	return func(c *config) {
		c.propagator = propagator
	}
}

// WithMiddleware добавляет пользовательские middleware после стандартных.
func WithMiddleware(mw ...Middleware) Option {
	return func(c *config) {
		c.middlewares = append(c.middlewares, mw...)
	}
}

// WithRetryInterval задает интервал повторов по умолчанию для
// ExecutePeriodically, если вызывающий передал нулевой интервал.
func WithRetryInterval(interval time.Duration) Option {
	return func(c *config) {
		c.retryInterval = interval
	}
}

// WithMaxInFlight ограничивает число одновременно выполняемых запросов.
// Ноль снимает ограничение.
func WithMaxInFlight(n int64) Option {
	return func(c *config) {
		c.maxInFlight = n
	}
}
