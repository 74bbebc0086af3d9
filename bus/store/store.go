// Package store реализует ядро синхронизирующего хранилища: неизменяемый
// снимок состояния, последовательный цикл применения исходов и учет
// номеров вызовов по видам команд. Применение исхода и рассылка нового
// снимка выполняются одной задачей цикла, поэтому подписчик всегда видит
// целостный снимок, а рассылки одного хранилища строго упорядочены.
package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/x-research-team/dtx-sync/bus/event"
	"github.com/x-research-team/dtx-sync/bus/loop"
)

var (
	// ErrStale означает, что успешный исход пришел для вызова, который старше
	// уже примененного. Ошибка внутренняя: она только логируется.
	ErrStale = errors.New("устаревший результат отброшен")
	// ErrClosed возвращается исходам, пришедшим после Close.
	ErrClosed = errors.New("хранилище закрыто")
)

// Store хранит снимок состояния типа S. Снимок заменяется целиком и никогда
// не изменяется на месте.
type Store[S any] struct {
	name        string
	state       atomic.Pointer[S]
	loop        *loop.Loop
	broadcaster event.IBroadcaster[S]
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	slots map[string]*Slot
}

// New создает хранилище с начальным снимком initial и запускает его цикл.
func New[S any](name string, initial S, opts ...Option[S]) *Store[S] {
	cfg := &config[S]{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With(slog.String("store", name))

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store[S]{
		name:   name,
		loop:   loop.New(loop.WithLogger(logger)),
		logger: logger,
		broadcaster: event.NewBroadcaster(
			event.WithLogger[S](cfg.logger),
			event.WithMeterProvider[S](cfg.meterProvider),
			event.WithTracerProvider[S](cfg.tracerProvider),
		),
		ctx:    ctx,
		cancel: cancel,
		slots:  make(map[string]*Slot),
	}
	s.state.Store(&initial)
	return s
}

// Name возвращает имя хранилища.
func (s *Store[S]) Name() string {
	return s.name
}

// State возвращает текущий снимок. Вызов не блокируется и допустим из
// подписчика во время рассылки.
func (s *Store[S]) State() S {
	return *s.state.Load()
}

// Subscribe подписывает listener на новые снимки. Текущий снимок не
// доставляется: его можно получить через State.
func (s *Store[S]) Subscribe(listener event.Listener[S], opts ...event.SubscribeOption[S]) event.Token {
	return s.broadcaster.Subscribe(listener, opts...)
}

// Unsubscribe отменяет подписку.
func (s *Store[S]) Unsubscribe(token event.Token) bool {
	return s.broadcaster.Unsubscribe(token)
}

// Slot возвращает учетную запись вида команды kind, создавая ее при первом
// обращении.
func (s *Store[S]) Slot(kind string) *Slot {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[kind]
	if !ok {
		slot = &Slot{kind: kind}
		s.slots[kind] = slot
	}
	return slot
}

// Detach возвращает контекст удаленной операции. Он сохраняет значения ctx
// (например, спан трассировки), но не отменяется вместе с ним: отменить
// операцию можно только закрытием хранилища или возвращенной функцией.
func (s *Store[S]) Detach(ctx context.Context) (context.Context, context.CancelFunc) {
	opCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(s.ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

// Update ставит в цикл замену снимка, не связанную с номером вызова.
// Новый снимок рассылается подписчикам.
func (s *Store[S]) Update(fn func(current S) S) error {
	return s.loop.Post(func() {
		s.commit(fn(s.State()))
	})
}

// Flush дожидается обработки всех исходов, поставленных в цикл до вызова.
// Нельзя вызывать из подписчика или коллбэка дескриптора.
func (s *Store[S]) Flush(ctx context.Context) error {
	return s.loop.Flush(ctx)
}

// Close отменяет незавершенные удаленные операции, дожидается обработки
// уже поставленных исходов и отписывает всех подписчиков.
func (s *Store[S]) Close(ctx context.Context) error {
	s.cancel()
	if err := s.loop.Stop(ctx); err != nil {
		return err
	}
	return s.broadcaster.Shutdown(ctx)
}

// commit публикует снимок и рассылает его. Вызывается только из цикла.
func (s *Store[S]) commit(next S) {
	s.state.Store(&next)
	if err := s.broadcaster.Broadcast(s.ctx, next); err != nil {
		s.logger.Debug("рассылка снимка завершена с ошибками подписчиков", slog.Any("error", err))
	}
}
