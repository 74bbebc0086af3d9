package store

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// config содержит неэкспортируемую конфигурацию хранилища.
type config[S any] struct {
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option — функциональная опция хранилища.
type Option[S any] func(*config[S])

// WithLogger задает логгер хранилища и его рассылки. nil отключает логирование.
func WithLogger[S any](logger *slog.Logger) Option[S] {
	return func(c *config[S]) {
		c.logger = logger
	}
}

// WithTracerProvider включает трассировку рассылок.
func WithTracerProvider[S any](provider trace.TracerProvider) Option[S] {
	return func(c *config[S]) {
		c.tracerProvider = provider
	}
}

// WithMeterProvider включает метрики рассылок.
func WithMeterProvider[S any](provider metric.MeterProvider) Option[S] {
	return func(c *config[S]) {
		c.meterProvider = provider
	}
}
