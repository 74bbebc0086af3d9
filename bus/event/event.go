// Package event реализует рассылку снимков состояния подписчикам.
// Доставка синхронная и выполняется в порядке подписки. Подписчик,
// добавленный во время рассылки, эту рассылку не получает, а ошибка или
// паника одного подписчика не мешают доставке остальным.
package event

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Token идентифицирует подписку и используется для отписки.
type Token string

// newToken создает уникальный токен подписки.
func newToken() Token {
	return Token(uuid.NewString())
}

// Listener получает снимок состояния. Снимок принадлежит рассылке и не
// должен изменяться подписчиком.
type Listener[T any] func(ctx context.Context, snapshot T) error

// ErrorHandler — это функция для обработки ошибок, возникших в Listener.
type ErrorHandler[T any] func(err error, snapshot T)

// ListenerMiddleware — это функция-декоратор для Listener.
type ListenerMiddleware[T any] func(next Listener[T]) Listener[T]

// Provider определяет контракт для сменных механизмов доставки снимков.
type Provider[T any] interface {
	// Broadcast синхронно доставляет снимок всем текущим подписчикам.
	// Возвращает объединение ошибок подписчиков; ошибка не прерывает рассылку.
	Broadcast(ctx context.Context, snapshot T) error

	// Subscribe добавляет подписчика в конец списка.
	Subscribe(listener Listener[T], opts ...SubscribeOption[T]) Token

	// Unsubscribe удаляет подписку. Возвращает false, если токен неизвестен.
	Unsubscribe(token Token) bool

	// Len возвращает число активных подписок.
	Len() int

	// Shutdown удаляет все подписки.
	Shutdown(ctx context.Context) error
}

// subscriptionOptions определяет набор параметров конкретной подписки.
type subscriptionOptions[T any] struct {
	// name используется в логах и метриках вместо имени функции.
	name string
	// errorHandler вызывается при ошибке или панике подписчика.
	errorHandler ErrorHandler[T]
	// middleware применяется только к данной подписке.
	middleware []ListenerMiddleware[T]
}

// SubscribeOption — это функциональная опция для настройки подписки.
type SubscribeOption[T any] func(*subscriptionOptions[T])

// WithSubscriberName задает имя подписчика для логов и метрик.
func WithSubscriberName[T any](name string) SubscribeOption[T] {
	return func(o *subscriptionOptions[T]) {
		o.name = name
	}
}

// WithErrorHandler — опция, позволяющая задать пользовательский обработчик ошибок.
func WithErrorHandler[T any](handler ErrorHandler[T]) SubscribeOption[T] {
	return func(o *subscriptionOptions[T]) {
		o.errorHandler = handler
	}
}

// WithMiddleware добавляет локальные middleware, которые применяются только к данной подписке.
func WithMiddleware[T any](mw ...ListenerMiddleware[T]) SubscribeOption[T] {
	return func(o *subscriptionOptions[T]) {
		o.middleware = append(o.middleware, mw...)
	}
}

// config содержит неэкспортируемую конфигурацию рассыльщика.
type config[T any] struct {
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	middlewares    []Middleware[T]
}

// Option определяет тип для функциональных опций рассыльщика.
type Option[T any] func(*config[T])

// WithLogger устанавливает логгер. Ошибки подписчиков без собственного
// ErrorHandler записываются в этот логгер.
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(c *config[T]) {
		c.logger = logger
	}
}

// WithTracerProvider устанавливает провайдер трассировки.
func WithTracerProvider[T any](provider trace.TracerProvider) Option[T] {
	return func(c *config[T]) {
		c.tracerProvider = provider
	}
}

// WithMeterProvider устанавливает провайдер метрик.
func WithMeterProvider[T any](provider metric.MeterProvider) Option[T] {
	return func(c *config[T]) {
		c.meterProvider = provider
	}
}

// WithProviderMiddleware добавляет middleware уровня провайдера.
func WithProviderMiddleware[T any](mw ...Middleware[T]) Option[T] {
	return func(c *config[T]) {
		c.middlewares = append(c.middlewares, mw...)
	}
}
