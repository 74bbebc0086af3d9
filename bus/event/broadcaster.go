package event

import (
	"context"
	"log/slog"
)

// IBroadcaster определяет строго типизированный интерфейс рассылки снимков типа T.
type IBroadcaster[T any] interface {
	// Subscribe подписывает обработчик и возвращает токен для отписки.
	Subscribe(listener Listener[T], opts ...SubscribeOption[T]) Token

	// Unsubscribe отменяет подписку.
	Unsubscribe(token Token) bool

	// Broadcast синхронно доставляет снимок всем подписчикам.
	Broadcast(ctx context.Context, snapshot T) error

	// Len возвращает число подписчиков.
	Len() int

	// Shutdown корректно завершает работу рассыльщика.
	Shutdown(ctx context.Context) error
}

// broadcasterImpl - это реализация IBroadcaster поверх цепочки провайдеров.
type broadcasterImpl[T any] struct {
	provider Provider[T]
}

// NewBroadcaster создает рассыльщик с локальным провайдером и стандартными
// middleware (логирование, метрики, трассировка).
func NewBroadcaster[T any](opts ...Option[T]) IBroadcaster[T] {
	cfg := &config[T]{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	allMiddlewares := []Middleware[T]{
		NewLoggingMiddleware[T](cfg.logger),
		NewMetricsMiddleware[T](cfg.meterProvider),
		NewTracingMiddleware[T](cfg.tracerProvider),
	}
	allMiddlewares = append(allMiddlewares, cfg.middlewares...)

	return &broadcasterImpl[T]{
		provider: applyMiddlewares(Provider[T](NewLocalProvider[T](cfg.logger)), allMiddlewares...),
	}
}

// Subscribe подписывает обработчик.
func (b *broadcasterImpl[T]) Subscribe(listener Listener[T], opts ...SubscribeOption[T]) Token {
	return b.provider.Subscribe(listener, opts...)
}

// Unsubscribe отменяет подписку.
func (b *broadcasterImpl[T]) Unsubscribe(token Token) bool {
	return b.provider.Unsubscribe(token)
}

// Broadcast рассылает снимок.
func (b *broadcasterImpl[T]) Broadcast(ctx context.Context, snapshot T) error {
	return b.provider.Broadcast(ctx, snapshot)
}

// Len возвращает число подписчиков.
func (b *broadcasterImpl[T]) Len() int {
	return b.provider.Len()
}

// Shutdown завершает работу рассыльщика.
func (b *broadcasterImpl[T]) Shutdown(ctx context.Context) error {
	return b.provider.Shutdown(ctx)
}
