package sidecar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/x-research-team/dtx-sync/bus/command"
	"github.com/x-research-team/dtx-sync/bus/event"
	"github.com/x-research-team/dtx-sync/bus/future"
	"github.com/x-research-team/dtx-sync/bus/remote"
	"github.com/x-research-team/dtx-sync/bus/store"
	"github.com/x-research-team/dtx-sync/notify"
)

// Имена команд хранилища администрирования.
const (
	CommandList      = "sidecar.list"
	CommandSetAction = "sidecar.set_action"
)

// ActionCommand — параметры команды setAction.
type ActionCommand struct {
	Action     string
	Collectors map[string][]string
}

// AdministrationStore синхронизирует список сайдкаров с удаленным API.
// Представления вызывают List и SetAction, подписываются на снимки через
// Subscribe и читают текущее состояние через State.
type AdministrationStore struct {
	store    *store.Store[Snapshot]
	gate     remote.Gate
	notifier notify.Notifier
	cfg      *config
	logger   *slog.Logger

	list   command.IChannel[ListQuery, ListResponse]
	action command.IChannel[ActionCommand, ActionResult]

	listSlot   *store.Slot
	actionSlot *store.Slot
	upper      cases.Caser
}

// NewAdministrationStore создает хранилище поверх шлюза gate. Уведомления об
// отказах и успехах массовых действий отправляются в notifier.
func NewAdministrationStore(gate remote.Gate, notifier notify.Notifier, opts ...Option) (*AdministrationStore, error) {
	if gate == nil {
		return nil, errors.New("шлюз удаленных операций не задан")
	}
	if notifier == nil {
		return nil, errors.New("получатель уведомлений не задан")
	}

	cfg := &config{
		logger:        slog.Default(),
		basePath:      defaultBasePath,
		retryInterval: defaultRetryInterval,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	list, err := command.NewChannel(CommandList,
		command.WithLogger[ListQuery, ListResponse](cfg.logger),
		command.WithTracerProvider[ListQuery, ListResponse](cfg.tracerProvider),
		command.WithMeterProvider[ListQuery, ListResponse](cfg.meterProvider),
	)
	if err != nil {
		return nil, fmt.Errorf("не удалось создать канал %s: %w", CommandList, err)
	}
	action, err := command.NewChannel(CommandSetAction,
		command.WithLogger[ActionCommand, ActionResult](cfg.logger),
		command.WithTracerProvider[ActionCommand, ActionResult](cfg.tracerProvider),
		command.WithMeterProvider[ActionCommand, ActionResult](cfg.meterProvider),
	)
	if err != nil {
		return nil, fmt.Errorf("не удалось создать канал %s: %w", CommandSetAction, err)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	st := store.New("sidecar.administration", Snapshot{},
		store.WithLogger[Snapshot](cfg.logger),
		store.WithTracerProvider[Snapshot](cfg.tracerProvider),
		store.WithMeterProvider[Snapshot](cfg.meterProvider),
	)

	a := &AdministrationStore{
		store:      st,
		gate:       gate,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger,
		list:       list,
		action:     action,
		listSlot:   st.Slot(CommandList),
		actionSlot: st.Slot(CommandSetAction),
		upper:      cases.Title(language.Und, cases.NoLower),
	}

	if err := list.Listen(a.onList); err != nil {
		return nil, err
	}
	if err := action.Listen(a.onSetAction); err != nil {
		return nil, err
	}
	return a, nil
}

// List запрашивает страницу сайдкаров. Нулевые поля query заменяются
// значениями по умолчанию: первая страница, 50 записей, без фильтров.
func (a *AdministrationStore) List(ctx context.Context, query ListQuery) *future.Future[ListResponse] {
	return a.list.Invoke(ctx, query.Normalize())
}

// SetAction запрашивает действие action над коллекторами, сгруппированными
// по сайдкарам. Состояние списка не меняется.
func (a *AdministrationStore) SetAction(ctx context.Context, action string, collectors map[string][]string) *future.Future[ActionResult] {
	return a.action.Invoke(ctx, ActionCommand{Action: action, Collectors: collectors})
}

// State возвращает текущий снимок.
func (a *AdministrationStore) State() Snapshot {
	return a.store.State()
}

// Subscribe подписывает listener на новые снимки.
func (a *AdministrationStore) Subscribe(listener event.Listener[Snapshot], opts ...event.SubscribeOption[Snapshot]) event.Token {
	return a.store.Subscribe(listener, opts...)
}

// Unsubscribe отменяет подписку.
func (a *AdministrationStore) Unsubscribe(token event.Token) bool {
	return a.store.Unsubscribe(token)
}

// Close закрывает каналы команд и хранилище. Незавершенные запросы отменяются.
func (a *AdministrationStore) Close(ctx context.Context) error {
	return errors.Join(
		a.list.Shutdown(ctx),
		a.action.Shutdown(ctx),
		a.store.Close(ctx),
	)
}

// onList выполняет запрос списка с периодическим повтором и сводит его исход
// в состояние.
func (a *AdministrationStore) onList(ctx context.Context, inv *command.Invocation[ListQuery, ListResponse]) {
	query := inv.Command
	opCtx, done := a.store.Detach(ctx)

	resp, cancel := a.gate.ExecutePeriodically(opCtx, http.MethodPost, a.cfg.basePath+"/administration", query.Request(), a.cfg.retryInterval)
	decoded := future.Map(resp, decode[ListResponse])

	processed := store.Reconcile(a.store, a.listSlot, inv.Seq, decoded, store.Handlers[Snapshot, ListResponse]{
		Apply: func(_ Snapshot, value ListResponse) Snapshot {
			return snapshotOf(value)
		},
		OnFailure: func(err error) {
			a.notifier.Error(
				fmt.Sprintf("Не удалось получить список сайдкаров: %v", err),
				fmt.Sprintf("Не удалось получить сайдкары (запрос %q, страница %d, фильтры %v)", query.Query, query.Page, query.Filters),
			)
		},
	})
	processed.Then(func(ListResponse, error) {
		cancel()
		done()
	})

	a.list.BindOutcome(inv, processed)
}

// onSetAction выполняет одну попытку массового действия. Действие не
// идемпотентно, поэтому периодический повтор не используется.
func (a *AdministrationStore) onSetAction(ctx context.Context, inv *command.Invocation[ActionCommand, ActionResult]) {
	cmd := inv.Command
	body := NewActionRequest(cmd.Action, cmd.Collectors)
	opCtx, done := a.store.Detach(ctx)

	resp := a.gate.Execute(opCtx, http.MethodPut, a.cfg.basePath+"/administration/action", body)
	result := future.Map(resp, func(*remote.Response) (ActionResult, error) {
		return ActionResult{Action: cmd.Action, Affected: body.Affected()}, nil
	})

	processed := store.Reconcile(a.store, a.actionSlot, inv.Seq, result, store.Handlers[Snapshot, ActionResult]{
		OnSuccess: func(r ActionResult) {
			a.notifier.Success("", fmt.Sprintf("%s: запрошено для %d коллекторов", a.upper.String(r.Action), r.Affected))
			if a.cfg.refreshAfterAction {
				query := a.store.State().lastQuery()
				a.logger.Debug("обновление списка после действия",
					slog.String("action", r.Action),
					slog.String("query", query.Query),
					slog.Int("page", query.Page),
				)
				a.List(context.WithoutCancel(ctx), query)
			}
		},
		OnFailure: func(err error) {
			a.notifier.Error(
				fmt.Sprintf("Запрос действия %s завершился ошибкой: %v", cmd.Action, err),
				fmt.Sprintf("Не удалось выполнить %s для коллекторов", cmd.Action),
			)
		},
	})
	processed.Then(func(ActionResult, error) {
		done()
	})

	a.action.BindOutcome(inv, processed)
}

// decode разбирает JSON-тело ответа.
func decode[T any](resp *remote.Response) (T, error) {
	var out T
	if err := resp.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
