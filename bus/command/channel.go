package command

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/x-research-team/dtx-sync/bus/future"
)

// IChannel определяет строго типизированный интерфейс канала одной команды.
type IChannel[C Command[R], R any] interface {
	// Name возвращает имя команды, например "sidecar.list".
	Name() string

	// Invoke вызывает команду и возвращает дескриптор ее будущего исхода.
	// Вызов не блокируется на удаленной операции.
	Invoke(ctx context.Context, cmd C) *future.Future[R]

	// Listen регистрирует слушателя (как правило, хранилище).
	Listen(listener Listener[C, R]) error

	// BindOutcome связывает исход вызова с результатом src. Вызывающий
	// Invoke получает ровно ту установку, которую получит src.
	BindOutcome(inv *Invocation[C, R], src *future.Future[R])

	// Shutdown закрывает канал для новых вызовов.
	Shutdown(ctx context.Context) error
}

// channelImpl представляет собой реализацию IChannel.
type channelImpl[C Command[R], R any] struct {
	name     string
	seq      atomic.Uint64
	provider Provider[C, R]
	cfg      *config[C, R]
}

// NewChannel создает новый, готовый к использованию канал команды name.
func NewChannel[C Command[R], R any](name string, opts ...Option[C, R]) (IChannel[C, R], error) {
	if name == "" {
		return nil, fmt.Errorf("имя команды не может быть пустым")
	}

	cfg := &config[C, R]{
		logger:        slog.Default(),
		slowThreshold: defaultSlowThreshold,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	allMiddlewares := []Middleware[C, R]{
		NewLoggingMiddleware[C, R](cfg.logger, cfg.slowThreshold),
		NewMetricsMiddleware[C, R](cfg.meterProvider),
		NewTracingMiddleware[C, R](cfg.tracerProvider),
	}
	allMiddlewares = append(allMiddlewares, cfg.middlewares...)

	return &channelImpl[C, R]{
		name:     name,
		provider: applyMiddlewares[C, R](NewLocalProvider[C, R](), allMiddlewares...),
		cfg:      cfg,
	}, nil
}

// MustChannel аналогичен NewChannel, но паникует при ошибке.
// Предназначен для инициализации на уровне пакета.
func MustChannel[C Command[R], R any](name string, opts ...Option[C, R]) IChannel[C, R] {
	ch, err := NewChannel[C, R](name, opts...)
	if err != nil {
		panic(err)
	}
	return ch
}

// Name возвращает имя команды.
func (c *channelImpl[C, R]) Name() string {
	return c.name
}

// Invoke присваивает вызову очередной номер и передает его слушателю.
func (c *channelImpl[C, R]) Invoke(ctx context.Context, cmd C) *future.Future[R] {
	inv := &Invocation[C, R]{
		ID:      uuid.New(),
		Name:    c.name,
		Seq:     c.seq.Add(1),
		Command: cmd,
		outcome: future.New[R](),
	}

	c.provider.Invoke(ctx, inv)
	return inv.outcome
}

// Listen регистрирует слушателя.
func (c *channelImpl[C, R]) Listen(listener Listener[C, R]) error {
	return c.provider.Listen(listener)
}

// BindOutcome связывает исход вызова с src.
func (c *channelImpl[C, R]) BindOutcome(inv *Invocation[C, R], src *future.Future[R]) {
	future.Pipe(src, inv.outcome)
}

// Shutdown корректно завершает работу канала.
func (c *channelImpl[C, R]) Shutdown(ctx context.Context) error {
	return c.provider.Shutdown(ctx)
}
