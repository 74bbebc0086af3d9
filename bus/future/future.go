// Package future реализует дескриптор отложенного результата: значение,
// которое будет установлено ровно один раз: успехом или отказом.
// Коллбэки, подключенные после установки результата, все равно вызываются,
// поэтому ни один подписчик не пропускает исход операции.
package future

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrPending возвращается Result, если исход еще не известен.
	ErrPending = errors.New("результат еще не получен")
	// ErrNilReason подставляется, если Reject вызван с nil.
	ErrNilReason = errors.New("отказ без указания причины")
)

// Callback получает исход операции. Ровно один из аргументов значим:
// при err != nil значение равно нулевому.
type Callback[T any] func(value T, err error)

// Future — дескриптор отложенного результата типа T.
// Нулевое значение не готово к использованию, создавайте через New.
type Future[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	settled   bool
	value     T
	err       error
	callbacks []Callback[T]
}

// New создает неустановленный дескриптор.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved возвращает дескриптор, уже установленный в успех.
func Resolved[T any](value T) *Future[T] {
	f := New[T]()
	f.Resolve(value)
	return f
}

// Rejected возвращает дескриптор, уже установленный в отказ.
func Rejected[T any](err error) *Future[T] {
	f := New[T]()
	f.Reject(err)
	return f
}

// Resolve устанавливает успешный результат. Возвращает false, если
// результат уже был установлен ранее; в этом случае вызов игнорируется.
func (f *Future[T]) Resolve(value T) bool {
	return f.settle(value, nil)
}

// Reject устанавливает отказ с причиной err.
func (f *Future[T]) Reject(err error) bool {
	if err == nil {
		err = ErrNilReason
	}
	var zero T
	return f.settle(zero, err)
}

// Settle устанавливает отказ при err != nil и успех в противном случае.
func (f *Future[T]) Settle(value T, err error) bool {
	if err != nil {
		return f.Reject(err)
	}
	return f.Resolve(value)
}

func (f *Future[T]) settle(value T, err error) bool {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return false
	}
	f.settled = true
	f.value = value
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	// Коллбэки вызываются вне блокировки и в порядке подключения.
	for _, cb := range callbacks {
		cb(value, err)
	}
	return true
}

// Then подключает коллбэк. Если результат уже установлен, коллбэк
// вызывается немедленно в текущей горутине.
func (f *Future[T]) Then(cb Callback[T]) {
	f.mu.Lock()
	if !f.settled {
		f.callbacks = append(f.callbacks, cb)
		f.mu.Unlock()
		return
	}
	value, err := f.value, f.err
	f.mu.Unlock()

	cb(value, err)
}

// Done возвращает канал, закрываемый в момент установки результата.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Settled сообщает, установлен ли результат.
func (f *Future[T]) Settled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settled
}

// Result возвращает результат без ожидания или ErrPending.
func (f *Future[T]) Result() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.settled {
		var zero T
		return zero, ErrPending
	}
	return f.value, f.err
}

// Await блокируется до установки результата или отмены контекста.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.Result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Pipe устанавливает dst тем же исходом, что и src.
func Pipe[T any](src, dst *Future[T]) {
	src.Then(func(value T, err error) {
		dst.Settle(value, err)
	})
}

// Map возвращает дескриптор, получающий преобразованное значение src.
// Отказ src передается без изменений, fn не вызывается.
func Map[T, U any](src *Future[T], fn func(T) (U, error)) *Future[U] {
	dst := New[U]()
	src.Then(func(value T, err error) {
		if err != nil {
			dst.Reject(err)
			return
		}
		dst.Settle(fn(value))
	})
	return dst
}
