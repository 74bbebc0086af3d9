package sidecar

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultBasePath      = "/sidecar"
	defaultRetryInterval = 5 * time.Second
)

// config содержит неэкспортируемую конфигурацию хранилища администрирования.
type config struct {
	logger             *slog.Logger
	tracerProvider     trace.TracerProvider
	meterProvider      metric.MeterProvider
	basePath           string
	retryInterval      time.Duration
	refreshAfterAction bool
}

// Option — функциональная опция хранилища администрирования.
type Option func(*config)

// WithLogger задает логгер хранилища и его каналов команд.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithTracerProvider включает трассировку команд и рассылок.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(c *config) {
		c.tracerProvider = provider
	}
}

// WithMeterProvider включает метрики команд и рассылок.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(c *config) {
		c.meterProvider = provider
	}
}

// WithBasePath задает префикс ресурсов сайдкаров на удаленной стороне.
func WithBasePath(path string) Option {
	return func(c *config) {
		c.basePath = path
	}
}

// WithRetryInterval задает интервал повтора запроса списка при повторяемом отказе.
func WithRetryInterval(interval time.Duration) Option {
	return func(c *config) {
		c.retryInterval = interval
	}
}

// WithRefreshAfterAction включает повторный запрос списка после успешного
// массового действия. По умолчанию список обновляется только явной командой.
func WithRefreshAfterAction(enabled bool) Option {
	return func(c *config) {
		c.refreshAfterAction = enabled
	}
}
