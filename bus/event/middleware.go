package event

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/goccy/go-reflect"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName    = "github.com/x-research-team/dtx-sync/bus/event"
	instrumentationVersion = "0.1.0"
	metricKeyPrefix        = "broadcast."
)

// Middleware определяет интерфейс для middleware рассылки.
type Middleware[T any] interface {
	// Wrap оборачивает следующий провайдер в цепочке, добавляя свою логику.
	Wrap(next Provider[T]) Provider[T]
}

// MiddlewareFunc является адаптером, позволяющим использовать обычные функции как middleware.
type MiddlewareFunc[T any] func(next Provider[T]) Provider[T]

// Wrap реализует интерфейс Middleware.
func (f MiddlewareFunc[T]) Wrap(next Provider[T]) Provider[T] {
	return f(next)
}

// passthrough делегирует все методы, кроме переопределенных оберткой.
type passthrough[T any] struct {
	next Provider[T]
}

func (p passthrough[T]) Broadcast(ctx context.Context, snapshot T) error {
	return p.next.Broadcast(ctx, snapshot)
}

func (p passthrough[T]) Subscribe(listener Listener[T], opts ...SubscribeOption[T]) Token {
	return p.next.Subscribe(listener, opts...)
}

func (p passthrough[T]) Unsubscribe(token Token) bool {
	return p.next.Unsubscribe(token)
}

func (p passthrough[T]) Len() int {
	return p.next.Len()
}

func (p passthrough[T]) Shutdown(ctx context.Context) error {
	return p.next.Shutdown(ctx)
}

// loggingMiddleware реализует Middleware для логирования рассылок.
type loggingMiddleware[T any] struct {
	logger *slog.Logger
}

// NewLoggingMiddleware создает новое middleware для логирования.
// Если логгер не предоставлен (nil), возвращается no-op middleware.
func NewLoggingMiddleware[T any](logger *slog.Logger) Middleware[T] {
	if logger == nil {
		return &noopMiddleware[T]{}
	}
	return &loggingMiddleware[T]{logger: logger}
}

// Wrap оборачивает провайдер для добавления логирования.
func (m *loggingMiddleware[T]) Wrap(next Provider[T]) Provider[T] {
	return &loggingProvider[T]{
		passthrough: passthrough[T]{next: next},
		logger:      m.logger,
	}
}

// loggingProvider - это обертка над провайдером, которая добавляет логирование.
type loggingProvider[T any] struct {
	passthrough[T]
	logger *slog.Logger
}

// Broadcast логирует рассылку и ее итог.
func (p *loggingProvider[T]) Broadcast(ctx context.Context, snapshot T) (err error) {
	snapshotType := getSnapshotType(snapshot)
	subscribers := p.next.Len()

	startTime := time.Now()
	defer func() {
		duration := time.Since(startTime)
		if err != nil {
			p.logger.Warn("рассылка завершена с ошибками подписчиков",
				slog.String("snapshot_type", snapshotType),
				slog.Int("subscribers", subscribers),
				slog.Any("error", err),
				slog.Duration("duration", duration),
			)
			return
		}
		p.logger.Debug("рассылка выполнена",
			slog.String("snapshot_type", snapshotType),
			slog.Int("subscribers", subscribers),
			slog.Duration("duration", duration),
		)
	}()

	return p.next.Broadcast(ctx, snapshot)
}

// Subscribe логирует подписку.
func (p *loggingProvider[T]) Subscribe(listener Listener[T], opts ...SubscribeOption[T]) Token {
	token := p.next.Subscribe(listener, opts...)
	p.logger.Debug("новый подписчик",
		slog.String("subscriber", subscriberName(listener, opts)),
		slog.String("token", string(token)),
	)
	return token
}

// Unsubscribe логирует отписку.
func (p *loggingProvider[T]) Unsubscribe(token Token) bool {
	removed := p.next.Unsubscribe(token)
	p.logger.Debug("отписка", slog.String("token", string(token)), slog.Bool("removed", removed))
	return removed
}

// metricsMiddleware реализует Middleware для сбора метрик OpenTelemetry.
type metricsMiddleware[T any] struct {
	broadcastCounter metric.Int64Counter
	deliveryCounter  metric.Int64Counter
	deliveryHist     metric.Float64Histogram
}

// NewMetricsMiddleware создает новое middleware для сбора метрик.
func NewMetricsMiddleware[T any](provider metric.MeterProvider) Middleware[T] {
	if provider == nil {
		return &noopMiddleware[T]{}
	}

	meter := provider.Meter(instrumentationName)

	broadcastCounter, err := meter.Int64Counter(
		metricKeyPrefix+"count",
		metric.WithDescription("Количество рассылок снимков"),
		metric.WithUnit("{broadcasts}"),
	)
	if err != nil {
		panic(fmt.Sprintf("не удалось создать счетчик broadcast.count: %v", err))
	}

	deliveryCounter, err := meter.Int64Counter(
		metricKeyPrefix+"delivery.count",
		metric.WithDescription("Количество доставок снимков подписчикам"),
		metric.WithUnit("{deliveries}"),
	)
	if err != nil {
		panic(fmt.Sprintf("не удалось создать счетчик delivery.count: %v", err))
	}

	deliveryHist, err := meter.Float64Histogram(
		metricKeyPrefix+"delivery.duration",
		metric.WithDescription("Длительность обработки снимка подписчиком"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		panic(fmt.Sprintf("не удалось создать гистограмму delivery.duration: %v", err))
	}

	return &metricsMiddleware[T]{
		broadcastCounter: broadcastCounter,
		deliveryCounter:  deliveryCounter,
		deliveryHist:     deliveryHist,
	}
}

// Wrap оборачивает провайдер для добавления сбора метрик.
func (m *metricsMiddleware[T]) Wrap(next Provider[T]) Provider[T] {
	return &metricsProvider[T]{
		passthrough:       passthrough[T]{next: next},
		metricsMiddleware: m,
	}
}

// metricsProvider - это обертка над провайдером, которая собирает метрики.
type metricsProvider[T any] struct {
	passthrough[T]
	*metricsMiddleware[T]
}

// Broadcast считает рассылки.
func (p *metricsProvider[T]) Broadcast(ctx context.Context, snapshot T) error {
	err := p.next.Broadcast(ctx, snapshot)
	p.broadcastCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("snapshot.type", getSnapshotType(snapshot)),
		attribute.String("status", statusOf(err)),
	))
	return err
}

// Subscribe оборачивает подписчика для учета доставок.
func (p *metricsProvider[T]) Subscribe(listener Listener[T], opts ...SubscribeOption[T]) Token {
	name := subscriberName(listener, opts)
	wrapped := func(ctx context.Context, snapshot T) error {
		startTime := time.Now()
		err := listener(ctx, snapshot)

		attrs := metric.WithAttributes(
			attribute.String("subscriber.name", name),
			attribute.String("status", statusOf(err)),
		)
		p.deliveryCounter.Add(ctx, 1, attrs)
		p.deliveryHist.Record(ctx, float64(time.Since(startTime).Milliseconds()), attrs)
		return err
	}

	return p.next.Subscribe(wrapped, append(opts[:len(opts):len(opts)], WithSubscriberName[T](name))...)
}

// tracingMiddleware реализует Middleware для трассировки рассылок.
type tracingMiddleware[T any] struct {
	tracer trace.Tracer
}

// NewTracingMiddleware создает новое middleware для трассировки.
func NewTracingMiddleware[T any](tp trace.TracerProvider) Middleware[T] {
	if tp == nil {
		return &noopMiddleware[T]{}
	}
	return &tracingMiddleware[T]{
		tracer: tp.Tracer(
			instrumentationName,
			trace.WithInstrumentationVersion(instrumentationVersion),
		),
	}
}

// Wrap оборачивает провайдер для добавления логики трассировки.
func (m *tracingMiddleware[T]) Wrap(next Provider[T]) Provider[T] {
	return &tracingProvider[T]{
		passthrough: passthrough[T]{next: next},
		tracer:      m.tracer,
	}
}

// tracingProvider - это обертка над провайдером, которая управляет спанами трассировки.
type tracingProvider[T any] struct {
	passthrough[T]
	tracer trace.Tracer
}

// Broadcast открывает спан на время рассылки.
func (p *tracingProvider[T]) Broadcast(ctx context.Context, snapshot T) (err error) {
	ctx, span := p.tracer.Start(ctx, fmt.Sprintf("%s broadcast", getSnapshotType(snapshot)),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.Int("broadcast.subscribers", p.next.Len())),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	return p.next.Broadcast(ctx, snapshot)
}

// applyMiddlewares применяет цепочку middleware к базовому провайдеру.
func applyMiddlewares[T any](provider Provider[T], middlewares ...Middleware[T]) Provider[T] {
	p := provider
	for i := len(middlewares) - 1; i >= 0; i-- {
		p = middlewares[i].Wrap(p)
	}
	return p
}

// noopMiddleware представляет собой пустое middleware.
type noopMiddleware[T any] struct{}

// Wrap просто возвращает следующий провайдер без изменений.
func (m *noopMiddleware[T]) Wrap(next Provider[T]) Provider[T] {
	return next
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// subscriberName возвращает имя из опций подписки или имя функции.
func subscriberName[T any](listener Listener[T], opts []SubscribeOption[T]) string {
	subOpts := &subscriptionOptions[T]{}
	for _, opt := range opts {
		opt(subOpts)
	}
	if subOpts.name != "" {
		return subOpts.name
	}
	return getHandlerName(listener)
}

// getSnapshotType извлекает имя типа снимка с помощью рефлексии.
func getSnapshotType(snapshot any) string {
	if snapshot == nil {
		return "unknown"
	}
	t := reflect.TypeOf(snapshot)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// getHandlerName извлекает имя обработчика.
func getHandlerName(handler any) string {
	v := reflect.ValueOf(handler)
	if v.Kind() == reflect.Func {
		if pc := v.Pointer(); pc != 0 {
			if f := runtime.FuncForPC(pc); f != nil {
				return f.Name()
			}
		}
	}
	return reflect.TypeOf(handler).String()
}
