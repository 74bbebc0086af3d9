package command

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
	instrumentationName    = "github.com/x-research-team/dtx-sync/bus/command"
	instrumentationVersion = "0.1.0"
	metricKeyPrefix        = "command."
)

// Middleware определяет интерфейс для middleware канала команд.
type Middleware[C Command[R], R any] interface {
	Wrap(next Provider[C, R]) Provider[C, R]
}

// MiddlewareFunc является адаптером, позволяющим использовать обычные функции как middleware.
type MiddlewareFunc[C Command[R], R any] func(next Provider[C, R]) Provider[C, R]

// Wrap реализует интерфейс Middleware.
func (f MiddlewareFunc[C, R]) Wrap(next Provider[C, R]) Provider[C, R] {
	return f(next)
}

// loggingMiddleware логирует вызовы команд и их исходы.
type loggingMiddleware[C Command[R], R any] struct {
	logger        *slog.Logger
	slowThreshold time.Duration
}

// NewLoggingMiddleware создает новое middleware для логирования.
func NewLoggingMiddleware[C Command[R], R any](logger *slog.Logger, slowThreshold time.Duration) Middleware[C, R] {
	if logger == nil {
		return &noopMiddleware[C, R]{}
	}
	return &loggingMiddleware[C, R]{
		logger:        logger,
		slowThreshold: slowThreshold,
	}
}

// Wrap оборачивает провайдер для добавления логирования.
func (m *loggingMiddleware[C, R]) Wrap(next Provider[C, R]) Provider[C, R] {
	return &loggingProvider[C, R]{
		next:              next,
		loggingMiddleware: m,
	}
}

// loggingProvider - это обертка над провайдером команд, которая добавляет логирование.
type loggingProvider[C Command[R], R any] struct {
	next Provider[C, R]
	*loggingMiddleware[C, R]
}

// Invoke логирует вызов и подключается к его исходу.
func (p *loggingProvider[C, R]) Invoke(ctx context.Context, inv *Invocation[C, R]) {
	attrs := []any{
		slog.String("command", inv.Name),
		slog.String("command_type", getCommandType(inv.Command)),
		slog.String("invocation_id", inv.ID.String()),
		slog.Uint64("seq", inv.Seq),
	}
	p.logger.Debug("вызов команды", attrs...)

	startTime := time.Now()
	inv.outcome.Then(func(_ R, err error) {
		duration := time.Since(startTime)
		switch {
		case err != nil:
			p.logger.Error("команда завершилась отказом", append(attrs, slog.Any("error", err), slog.Duration("duration", duration))...)
		case p.slowThreshold > 0 && duration > p.slowThreshold:
			p.logger.Warn("команда выполнялась слишком долго", append(attrs, slog.Duration("duration", duration))...)
		default:
			p.logger.Debug("команда выполнена", append(attrs, slog.Duration("duration", duration))...)
		}
	})

	p.next.Invoke(ctx, inv)
}

// Listen логирует регистрацию слушателя.
func (p *loggingProvider[C, R]) Listen(listener Listener[C, R]) (err error) {
	listenerName := getHandlerName(listener)
	p.logger.Info("регистрация обработчика команды", slog.String("handler_name", listenerName))
	defer func() {
		if err != nil {
			p.logger.Error("ошибка регистрации обработчика",
				slog.String("handler_name", listenerName),
				slog.Any("error", err),
			)
		}
	}()
	return p.next.Listen(listener)
}

// Shutdown делегирует вызов следующему провайдеру в цепочке.
func (p *loggingProvider[C, R]) Shutdown(ctx context.Context) error {
	return p.next.Shutdown(ctx)
}

// metricsMiddleware реализует Middleware для сбора метрик OpenTelemetry.
type metricsMiddleware[C Command[R], R any] struct {
	invokeCounter metric.Int64Counter
	durationHist  metric.Float64Histogram
}

// NewMetricsMiddleware создает новое middleware для сбора метрик.
func NewMetricsMiddleware[C Command[R], R any](provider metric.MeterProvider) Middleware[C, R] {
	if provider == nil {
		return &noopMiddleware[C, R]{}
	}

	meter := provider.Meter(instrumentationName)

	invokeCounter, err := meter.Int64Counter(
		metricKeyPrefix+"invoke.count",
		metric.WithDescription("Количество вызовов команд по исходу"),
		metric.WithUnit("{invocations}"),
	)
	if err != nil {
		panic(fmt.Sprintf("не удалось создать счетчик invoke.count: %v", err))
	}

	durationHist, err := meter.Float64Histogram(
		metricKeyPrefix+"settle.duration",
		metric.WithDescription("Время от вызова команды до установки исхода"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		panic(fmt.Sprintf("не удалось создать гистограмму settle.duration: %v", err))
	}

	return &metricsMiddleware[C, R]{
		invokeCounter: invokeCounter,
		durationHist:  durationHist,
	}
}

// Wrap оборачивает провайдер для добавления сбора метрик.
func (m *metricsMiddleware[C, R]) Wrap(next Provider[C, R]) Provider[C, R] {
	return &metricsProvider[C, R]{
		next:              next,
		metricsMiddleware: m,
	}
}

// metricsProvider - это обертка над провайдером команд, которая собирает метрики.
type metricsProvider[C Command[R], R any] struct {
	next Provider[C, R]
	*metricsMiddleware[C, R]
}

// Invoke записывает метрики в момент установки исхода.
func (p *metricsProvider[C, R]) Invoke(ctx context.Context, inv *Invocation[C, R]) {
	startTime := time.Now()
	metricCtx := context.WithoutCancel(ctx)

	inv.outcome.Then(func(_ R, err error) {
		status := "success"
		if err != nil {
			status = "error"
		}
		attrs := metric.WithAttributes(
			attribute.String("command.name", inv.Name),
			attribute.String("status", status),
		)
		p.invokeCounter.Add(metricCtx, 1, attrs)
		p.durationHist.Record(metricCtx, float64(time.Since(startTime).Milliseconds()), attrs)
	})

	p.next.Invoke(ctx, inv)
}

// Listen делегирует вызов.
func (p *metricsProvider[C, R]) Listen(listener Listener[C, R]) error {
	return p.next.Listen(listener)
}

// Shutdown делегирует вызов.
func (p *metricsProvider[C, R]) Shutdown(ctx context.Context) error {
	return p.next.Shutdown(ctx)
}

// tracingMiddleware реализует Middleware для трассировки OpenTelemetry.
type tracingMiddleware[C Command[R], R any] struct {
	tracer trace.Tracer
}

// NewTracingMiddleware создает новое middleware для трассировки.
func NewTracingMiddleware[C Command[R], R any](tp trace.TracerProvider) Middleware[C, R] {
	if tp == nil {
		return &noopMiddleware[C, R]{}
	}
	return &tracingMiddleware[C, R]{
		tracer: tp.Tracer(
			instrumentationName,
			trace.WithInstrumentationVersion(instrumentationVersion),
		),
	}
}

// Wrap оборачивает провайдер для добавления логики трассировки.
func (m *tracingMiddleware[C, R]) Wrap(next Provider[C, R]) Provider[C, R] {
	return &tracingProvider[C, R]{
		next:   next,
		tracer: m.tracer,
	}
}

// tracingProvider - это обертка над провайдером команд, которая управляет спанами трассировки.
type tracingProvider[C Command[R], R any] struct {
	next   Provider[C, R]
	tracer trace.Tracer
}

// Invoke открывает спан вызова; удаленные операции слушателя становятся
// его дочерними спанами. Спан закрывается при установке исхода.
func (p *tracingProvider[C, R]) Invoke(ctx context.Context, inv *Invocation[C, R]) {
	ctx, span := p.tracer.Start(ctx, fmt.Sprintf("%s invoke", inv.Name),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("command.name", inv.Name),
			attribute.String("command.invocation_id", inv.ID.String()),
			attribute.Int64("command.seq", int64(inv.Seq)),
		),
	)

	inv.outcome.Then(func(_ R, err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	})

	p.next.Invoke(ctx, inv)
}

// Listen делегирует вызов.
func (p *tracingProvider[C, R]) Listen(listener Listener[C, R]) error {
	return p.next.Listen(listener)
}

// Shutdown делегирует вызов.
func (p *tracingProvider[C, R]) Shutdown(ctx context.Context) error {
	return p.next.Shutdown(ctx)
}

// applyMiddlewares применяет цепочку middleware к базовому провайдеру.
func applyMiddlewares[C Command[R], R any](provider Provider[C, R], middlewares ...Middleware[C, R]) Provider[C, R] {
	p := provider
	for i := len(middlewares) - 1; i >= 0; i-- {
		p = middlewares[i].Wrap(p)
	}
	return p
}

// noopMiddleware представляет собой пустое middleware.
type noopMiddleware[C Command[R], R any] struct{}

// Wrap просто возвращает следующий провайдер без изменений.
func (m *noopMiddleware[C, R]) Wrap(next Provider[C, R]) Provider[C, R] {
	return next
}

// getCommandType извлекает имя типа команды с помощью рефлексии.
func getCommandType(cmd any) string {
	if cmd == nil {
		return "unknown"
	}
	t := reflect.TypeOf(cmd)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if name := t.Name(); name != "" {
		return name
	}
	return t.String()
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
