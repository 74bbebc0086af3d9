package counts

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultTotalPath    = "/count/total"
	defaultPollInterval = 30 * time.Second
)

// config содержит неэкспортируемую конфигурацию хранилища счетчиков.
type config struct {
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	totalPath      string
}

// Option — функциональная опция хранилища счетчиков.
type Option func(*config)

// WithLogger задает логгер.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithTracerProvider включает трассировку.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(c *config) {
		c.tracerProvider = provider
	}
}

// WithMeterProvider включает метрики.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(c *config) {
		c.meterProvider = provider
	}
}

// WithTotalPath задает путь ресурса общего числа сообщений.
func WithTotalPath(path string) Option {
	return func(c *config) {
		c.totalPath = path
	}
}
