// Package command реализует канал команд: представления вызывают именованную
// команду и сразу получают дескриптор ее будущего исхода, а хранилище,
// слушающее канал, выполняет удаленную операцию и связывает с этим
// дескриптором собственный результат. Так представление и хранилище
// наблюдают один и тот же исход одного и того же сетевого вызова.
package command

import (
	"context"

	"github.com/google/uuid"

	"github.com/x-research-team/dtx-sync/bus/future"
)

// Command представляет собой интерфейс-маркер для команды, параметризованный
// типом результата R.
type Command[R any] interface{}

// Invocation — единичный вызов команды. Seq монотонно возрастает в пределах
// одного канала, то есть одного вида команды.
type Invocation[C Command[R], R any] struct {
	ID      uuid.UUID
	Name    string
	Seq     uint64
	Command C

	outcome *future.Future[R]
}

// Outcome возвращает дескриптор исхода, который получил вызывающий.
func (inv *Invocation[C, R]) Outcome() *future.Future[R] {
	return inv.outcome
}

// Listener реагирует на вызов команды. Слушатель обязан связать исход вызова
// через BindOutcome (или установить его напрямую через Outcome).
type Listener[C Command[R], R any] func(ctx context.Context, inv *Invocation[C, R])

// Metadatable определяет интерфейс для команд, которые могут нести метаданные.
type Metadatable interface {
	Metadata() map[string]string
}
