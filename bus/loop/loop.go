// Package loop предоставляет последовательный исполнитель задач, аналог
// однопоточного цикла событий. Все задачи выполняются одной горутиной
// строго в порядке постановки, поэтому состояние, изменяемое только из
// задач цикла, не требует дополнительной синхронизации.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrStopped возвращается при постановке задачи в остановленный цикл.
var ErrStopped = errors.New("цикл остановлен")

// Task — единица работы цикла.
type Task func()

// Loop — последовательный исполнитель с неограниченной очередью.
// Постановка задачи из другой задачи того же цикла допустима и не
// приводит к взаимной блокировке.
type Loop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Task
	stopped bool
	done    chan struct{}
	logger  *slog.Logger
}

// Option настраивает Loop.
type Option func(*Loop)

// WithLogger устанавливает логгер для сообщений о паниках в задачах.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// New создает и запускает цикл.
func New(opts ...Option) *Loop {
	l := &Loop{
		done:   make(chan struct{}),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.cond = sync.NewCond(&l.mu)

	go l.run()
	return l
}

// Post ставит задачу в очередь.
func (l *Loop) Post(task Task) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return ErrStopped
	}
	l.queue = append(l.queue, task)
	l.cond.Signal()
	return nil
}

// Flush дожидается выполнения всех задач, поставленных до вызова.
// Нельзя вызывать из задачи этого же цикла.
func (l *Loop) Flush(ctx context.Context) error {
	reached := make(chan struct{})
	if err := l.Post(func() { close(reached) }); err != nil {
		return err
	}

	select {
	case <-reached:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop прекращает прием задач, выполняет уже поставленные и дожидается
// завершения горутины цикла.
func (l *Loop) Stop(ctx context.Context) error {
	l.mu.Lock()
	if !l.stopped {
		l.stopped = true
		l.cond.Signal()
	}
	l.mu.Unlock()

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.stopped {
			l.cond.Wait()
		}
		if len(l.queue) == 0 && l.stopped {
			l.mu.Unlock()
			return
		}
		task := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.execute(task)
	}
}

// execute изолирует панику задачи, чтобы цикл продолжал работу.
func (l *Loop) execute(task Task) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("паника в задаче цикла", slog.Any("error", fmt.Errorf("%v", r)))
		}
	}()
	task()
}
