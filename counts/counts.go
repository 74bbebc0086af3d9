// Package counts содержит хранилище счетчиков сообщений. Общее число
// сообщений запрашивается один раз при создании хранилища и затем по
// требованию или по расписанию.
package counts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/x-research-team/dtx-sync/bus/command"
	"github.com/x-research-team/dtx-sync/bus/event"
	"github.com/x-research-team/dtx-sync/bus/future"
	"github.com/x-research-team/dtx-sync/bus/remote"
	"github.com/x-research-team/dtx-sync/bus/store"
	"github.com/x-research-team/dtx-sync/notify"
)

// CommandTotal — имя команды запроса общего числа сообщений.
const CommandTotal = "counts.total"

// TotalCommand — команда total. Параметров у нее нет.
type TotalCommand struct{}

// TotalResponse — ответ сервера.
type TotalResponse struct {
	Events int64 `json:"events"`
}

// Snapshot — состояние хранилища. Loaded равен false, пока не получен
// первый успешный ответ.
type Snapshot struct {
	Events int64
	Loaded bool
}

// MessageCountsStore синхронизирует общее число сообщений.
type MessageCountsStore struct {
	store    *store.Store[Snapshot]
	gate     remote.Gate
	notifier notify.Notifier
	cfg      *config
	logger   *slog.Logger

	total     command.IChannel[TotalCommand, int64]
	totalSlot *store.Slot
	initial   *future.Future[int64]
}

// NewMessageCountsStore создает хранилище и сразу запрашивает общее число
// сообщений.
func NewMessageCountsStore(gate remote.Gate, notifier notify.Notifier, opts ...Option) (*MessageCountsStore, error) {
	if gate == nil {
		return nil, errors.New("шлюз удаленных операций не задан")
	}
	if notifier == nil {
		return nil, errors.New("получатель уведомлений не задан")
	}

	cfg := &config{
		logger:    slog.Default(),
		totalPath: defaultTotalPath,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	total, err := command.NewChannel(CommandTotal,
		command.WithLogger[TotalCommand, int64](cfg.logger),
		command.WithTracerProvider[TotalCommand, int64](cfg.tracerProvider),
		command.WithMeterProvider[TotalCommand, int64](cfg.meterProvider),
	)
	if err != nil {
		return nil, fmt.Errorf("не удалось создать канал %s: %w", CommandTotal, err)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	st := store.New("counts", Snapshot{},
		store.WithLogger[Snapshot](cfg.logger),
		store.WithTracerProvider[Snapshot](cfg.tracerProvider),
		store.WithMeterProvider[Snapshot](cfg.meterProvider),
	)

	m := &MessageCountsStore{
		store:     st,
		gate:      gate,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger,
		total:     total,
		totalSlot: st.Slot(CommandTotal),
	}
	if err := total.Listen(m.onTotal); err != nil {
		return nil, err
	}

	m.initial = m.Total(context.Background())
	return m, nil
}

// Initial возвращает исход запроса, выполненного при создании хранилища.
// После его разрешения State уже содержит полученное значение.
func (m *MessageCountsStore) Initial() *future.Future[int64] {
	return m.initial
}

// Total запрашивает общее число сообщений.
func (m *MessageCountsStore) Total(ctx context.Context) *future.Future[int64] {
	return m.total.Invoke(ctx, TotalCommand{})
}

// State возвращает текущий снимок.
func (m *MessageCountsStore) State() Snapshot {
	return m.store.State()
}

// Subscribe подписывает listener на новые снимки.
func (m *MessageCountsStore) Subscribe(listener event.Listener[Snapshot], opts ...event.SubscribeOption[Snapshot]) event.Token {
	return m.store.Subscribe(listener, opts...)
}

// Unsubscribe отменяет подписку.
func (m *MessageCountsStore) Unsubscribe(token event.Token) bool {
	return m.store.Unsubscribe(token)
}

// Close закрывает канал команды и хранилище.
func (m *MessageCountsStore) Close(ctx context.Context) error {
	return errors.Join(
		m.total.Shutdown(ctx),
		m.store.Close(ctx),
	)
}

func (m *MessageCountsStore) onTotal(ctx context.Context, inv *command.Invocation[TotalCommand, int64]) {
	opCtx, done := m.store.Detach(ctx)

	resp := m.gate.Execute(opCtx, http.MethodGet, m.cfg.totalPath, nil)
	events := future.Map(resp, func(r *remote.Response) (int64, error) {
		var out TotalResponse
		if err := r.Decode(&out); err != nil {
			return 0, err
		}
		return out.Events, nil
	})

	processed := store.Reconcile(m.store, m.totalSlot, inv.Seq, events, store.Handlers[Snapshot, int64]{
		Apply: func(_ Snapshot, value int64) Snapshot {
			return Snapshot{Events: value, Loaded: true}
		},
		OnFailure: func(err error) {
			m.notifier.Error(
				fmt.Sprintf("Не удалось получить число сообщений: %v", err),
				"Не удалось получить общее число сообщений",
			)
		},
	})
	processed.Then(func(int64, error) {
		done()
	})

	m.total.BindOutcome(inv, processed)
}
