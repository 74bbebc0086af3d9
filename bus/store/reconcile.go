package store

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/x-research-team/dtx-sync/bus/future"
)

// Slot учитывает наибольший примененный номер вызова одного вида команды.
// Номер меняется только из цикла хранилища.
type Slot struct {
	kind        string
	lastApplied atomic.Uint64
}

// Kind возвращает вид команды.
func (sl *Slot) Kind() string {
	return sl.kind
}

// LastApplied возвращает номер последнего примененного вызова.
func (sl *Slot) LastApplied() uint64 {
	return sl.lastApplied.Load()
}

// Handlers описывает реакцию хранилища на исход удаленной операции.
type Handlers[S, T any] struct {
	// Apply строит новый снимок из текущего и успешного значения.
	// nil означает, что исход не меняет состояние и не участвует в учете
	// номеров (например, массовое действие).
	Apply func(current S, value T) S

	// OnSuccess вызывается после применения свежего исхода, а для исходов
	// без Apply после любого успеха. Для устаревших исходов не вызывается.
	OnSuccess func(value T)

	// OnFailure вызывается при любом отказе независимо от номера вызова.
	OnFailure func(err error)
}

// Reconcile сводит исход src в состояние хранилища. Когда src установлен,
// в цикл ставится задача:
//   - при отказе вызывается OnFailure, состояние и учет номеров не меняются;
//   - при успехе с seq, не превышающим последний примененный, исход
//     отбрасывается (ErrStale пишется в отладочный лог);
//   - иначе снимок заменяется результатом Apply и рассылается подписчикам.
//
// Возвращенный дескриптор получает исход src после того, как задача
// выполнена, поэтому вызывающий, дождавшись его, видит уже обновленное
// состояние. Устаревший успех тоже возвращается вызывающему: удаленная
// операция действительно завершилась успешно.
func Reconcile[S, T any](s *Store[S], slot *Slot, seq uint64, src *future.Future[T], h Handlers[S, T]) *future.Future[T] {
	processed := future.New[T]()

	src.Then(func(value T, err error) {
		posted := s.loop.Post(func() {
			defer func() {
				if r := recover(); r != nil {
					perr := fmt.Errorf("паника при применении исхода '%s': %v", slot.Kind(), r)
					s.logger.Error("сбой применения исхода", slog.Uint64("seq", seq), slog.Any("error", perr))
					processed.Reject(perr)
				}
			}()
			settle(s, slot, seq, value, err, h)
			processed.Settle(value, err)
		})
		if posted != nil {
			if err == nil {
				err = ErrClosed
			}
			processed.Reject(err)
		}
	})

	return processed
}

// settle выполняется в цикле хранилища.
func settle[S, T any](s *Store[S], slot *Slot, seq uint64, value T, err error, h Handlers[S, T]) {
	if err != nil {
		s.logger.Debug("удаленная операция завершилась отказом",
			slog.String("kind", slot.Kind()),
			slog.Uint64("seq", seq),
			slog.Any("error", err),
		)
		if h.OnFailure != nil {
			h.OnFailure(err)
		}
		return
	}

	if h.Apply == nil {
		if h.OnSuccess != nil {
			h.OnSuccess(value)
		}
		return
	}

	if last := slot.LastApplied(); seq <= last {
		s.logger.Debug("исход вызова не применен",
			slog.String("kind", slot.Kind()),
			slog.Uint64("seq", seq),
			slog.Uint64("last_applied", last),
			slog.Any("error", ErrStale),
		)
		return
	}

	slot.lastApplied.Store(seq)
	s.commit(h.Apply(s.State(), value))

	if h.OnSuccess != nil {
		h.OnSuccess(value)
	}
}
