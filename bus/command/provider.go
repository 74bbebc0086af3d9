package command

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goccy/go-reflect"
)

// ErrClosed возвращается вызовам, сделанным после Shutdown.
var ErrClosed = errors.New("канал команд закрыт")

// Provider определяет контракт для сменных механизмов доставки вызовов.
type Provider[C Command[R], R any] interface {
	// Invoke доставляет вызов слушателю.
	Invoke(ctx context.Context, inv *Invocation[C, R])

	// Listen регистрирует слушателя команды.
	Listen(listener Listener[C, R]) error

	// Shutdown корректно завершает работу провайдера.
	Shutdown(ctx context.Context) error
}

// localProvider — это локальная, внутрипроцессная реализация провайдера команд.
type localProvider[C Command[R], R any] struct {
	listener Listener[C, R]
	closed   bool
	mu       sync.RWMutex
}

// NewLocalProvider создает новый экземпляр локального провайдера.
func NewLocalProvider[C Command[R], R any]() *localProvider[C, R] {
	return &localProvider[C, R]{}
}

// Invoke синхронно передает вызов слушателю. Если слушателя нет или канал
// закрыт, исход вызова сразу устанавливается в отказ.
func (p *localProvider[C, R]) Invoke(ctx context.Context, inv *Invocation[C, R]) {
	p.mu.RLock()
	listener, closed := p.listener, p.closed
	p.mu.RUnlock()

	if closed {
		inv.outcome.Reject(ErrClosed)
		return
	}
	if listener == nil {
		inv.outcome.Reject(fmt.Errorf("обработчик для команды '%s' (%s) не найден", inv.Name, reflect.TypeOf(inv.Command)))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			inv.outcome.Reject(fmt.Errorf("паника в обработчике команды '%s': %v", inv.Name, r))
		}
	}()
	listener(ctx, inv)
}

// Listen регистрирует слушателя. Повторная регистрация запрещена.
func (p *localProvider[C, R]) Listen(listener Listener[C, R]) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.listener != nil {
		var cmd C
		return fmt.Errorf("обработчик для команды '%s' уже зарегистрирован", reflect.TypeOf(cmd))
	}

	p.listener = listener
	return nil
}

// Shutdown закрывает провайдер для новых вызовов.
func (p *localProvider[C, R]) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
