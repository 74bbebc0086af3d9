package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
)

// subscription хранит подписчика и примененные к нему опции.
type subscription[T any] struct {
	token        Token
	name         string
	listener     Listener[T]
	errorHandler ErrorHandler[T]
}

// LocalProvider — внутрипроцессная реализация Provider.
// Список подписок неизменяем: каждая подписка или отписка публикует новый
// срез, а рассылка работает со срезом, прочитанным в момент ее начала.
type LocalProvider[T any] struct {
	subs   atomic.Pointer[[]*subscription[T]]
	mu     sync.Mutex
	logger *slog.Logger
}

// NewLocalProvider создает новый экземпляр LocalProvider.
func NewLocalProvider[T any](logger *slog.Logger) *LocalProvider[T] {
	if logger == nil {
		logger = slog.Default()
	}
	lp := &LocalProvider[T]{logger: logger}
	empty := make([]*subscription[T], 0)
	lp.subs.Store(&empty)
	return lp
}

// Broadcast доставляет снимок подписчикам, зарегистрированным до начала вызова.
func (lp *LocalProvider[T]) Broadcast(ctx context.Context, snapshot T) error {
	var errs []error
	for _, sub := range *lp.subs.Load() {
		if err := lp.deliver(ctx, sub, snapshot); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// deliver вызывает одного подписчика, превращая панику в ошибку.
func (lp *LocalProvider[T]) deliver(ctx context.Context, sub *subscription[T], snapshot T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("паника в подписчике '%s': %v", sub.name, r)
		}
		if err != nil {
			lp.handleError(sub, err, snapshot)
		}
	}()

	return sub.listener(ctx, snapshot)
}

// handleError передает ошибку обработчику подписки или в лог. Паника
// обработчика не выходит за пределы рассылки.
func (lp *LocalProvider[T]) handleError(sub *subscription[T], err error, snapshot T) {
	if sub.errorHandler == nil {
		lp.logger.Error("ошибка подписчика",
			slog.String("subscriber", sub.name),
			slog.String("token", string(sub.token)),
			slog.Any("error", err),
		)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			lp.logger.Error("паника в обработчике ошибок подписчика",
				slog.String("subscriber", sub.name),
				slog.String("token", string(sub.token)),
				slog.Any("error", err),
				slog.Any("panic", r),
			)
		}
	}()
	sub.errorHandler(err, snapshot)
}

// Subscribe добавляет подписчика.
func (lp *LocalProvider[T]) Subscribe(listener Listener[T], opts ...SubscribeOption[T]) Token {
	subOpts := subscriptionOptions[T]{}
	for _, opt := range opts {
		opt(&subOpts)
	}

	finalListener := listener
	for i := len(subOpts.middleware) - 1; i >= 0; i-- {
		finalListener = subOpts.middleware[i](finalListener)
	}

	sub := &subscription[T]{
		token:        newToken(),
		name:         subOpts.name,
		listener:     finalListener,
		errorHandler: subOpts.errorHandler,
	}
	if sub.name == "" {
		sub.name = getHandlerName(listener)
	}

	lp.mu.Lock()
	defer lp.mu.Unlock()

	current := *lp.subs.Load()
	next := make([]*subscription[T], 0, len(current)+1)
	next = append(next, current...)
	next = append(next, sub)
	lp.subs.Store(&next)

	return sub.token
}

// Unsubscribe удаляет подписку по токену.
func (lp *LocalProvider[T]) Unsubscribe(token Token) bool {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	current := *lp.subs.Load()
	i := slices.IndexFunc(current, func(s *subscription[T]) bool { return s.token == token })
	if i < 0 {
		return false
	}

	next := make([]*subscription[T], 0, len(current)-1)
	next = append(next, current[:i]...)
	next = append(next, current[i+1:]...)
	lp.subs.Store(&next)
	return true
}

// Len возвращает число активных подписок.
func (lp *LocalProvider[T]) Len() int {
	return len(*lp.subs.Load())
}

// Shutdown удаляет все подписки.
func (lp *LocalProvider[T]) Shutdown(ctx context.Context) error {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	empty := make([]*subscription[T], 0)
	lp.subs.Store(&empty)
	return nil
}
