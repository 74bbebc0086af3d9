package remote

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName    = "github.com/x-research-team/dtx-sync/bus/remote"
	instrumentationVersion = "0.1.0"
	metricKeyPrefix        = "remote."
)

// Middleware определяет интерфейс для middleware транспорта.
type Middleware interface {
	Wrap(next Provider) Provider
}

// MiddlewareFunc является адаптером, позволяющим использовать обычные функции как middleware.
type MiddlewareFunc func(next Provider) Provider

// Wrap реализует интерфейс Middleware.
func (f MiddlewareFunc) Wrap(next Provider) Provider {
	return f(next)
}

// loggingMiddleware логирует каждую попытку запроса.
type loggingMiddleware struct {
	logger *slog.Logger
}

// NewLoggingMiddleware создает middleware логирования.
// Если логгер не предоставлен (nil), возвращается no-op middleware.
func NewLoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		return noopMiddleware{}
	}
	return &loggingMiddleware{logger: logger}
}

// Wrap оборачивает провайдер для добавления логирования.
func (m *loggingMiddleware) Wrap(next Provider) Provider {
	return ProviderFunc(func(ctx context.Context, req *Request) (resp *Response, err error) {
		m.logger.Debug("отправка удаленного запроса",
			slog.String("request_id", req.ID.String()),
			slog.String("method", req.Method),
			slog.String("url", req.URL),
		)

		startTime := time.Now()
		defer func() {
			duration := time.Since(startTime)
			if err != nil {
				m.logger.Error("ошибка удаленного запроса",
					slog.String("request_id", req.ID.String()),
					slog.String("method", req.Method),
					slog.String("url", req.URL),
					slog.Any("error", err),
					slog.Duration("duration", duration),
				)
				return
			}
			if resp == nil {
				return
			}
			m.logger.Debug("удаленный запрос выполнен",
				slog.String("request_id", req.ID.String()),
				slog.Int("status", resp.Status),
				slog.Duration("duration", duration),
			)
		}()

		return next.Send(ctx, req)
	})
}

// metricsMiddleware собирает метрики OpenTelemetry по запросам.
type metricsMiddleware struct {
	requestCounter metric.Int64Counter
	durationHist   metric.Float64Histogram
}

// NewMetricsMiddleware создает middleware сбора метрик.
func NewMetricsMiddleware(provider metric.MeterProvider) Middleware {
	if provider == nil {
		return noopMiddleware{}
	}

	meter := provider.Meter(instrumentationName)

	requestCounter, err := meter.Int64Counter(
		metricKeyPrefix+"request.count",
		metric.WithDescription("Количество удаленных запросов"),
		metric.WithUnit("{requests}"),
	)
	if err != nil {
		panic(fmt.Sprintf("не удалось создать счетчик request.count: %v", err))
	}

	durationHist, err := meter.Float64Histogram(
		metricKeyPrefix+"request.duration",
		metric.WithDescription("Длительность удаленного запроса"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		panic(fmt.Sprintf("не удалось создать гистограмму request.duration: %v", err))
	}

	return &metricsMiddleware{
		requestCounter: requestCounter,
		durationHist:   durationHist,
	}
}

// Wrap оборачивает провайдер для добавления сбора метрик.
func (m *metricsMiddleware) Wrap(next Provider) Provider {
	return ProviderFunc(func(ctx context.Context, req *Request) (*Response, error) {
		startTime := time.Now()
		resp, err := next.Send(ctx, req)
		duration := float64(time.Since(startTime).Milliseconds())

		attrs := metric.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("status", statusLabel(resp, err)),
		)
		m.requestCounter.Add(ctx, 1, attrs)
		m.durationHist.Record(ctx, duration, attrs)

		return resp, err
	})
}

// tracingMiddleware создает клиентский спан на каждую попытку и
// инъецирует контекст трассировки в заголовки запроса.
type tracingMiddleware struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// NewTracingMiddleware создает middleware трассировки.
func NewTracingMiddleware(tp trace.TracerProvider, p propagation.TextMapPropagator) Middleware {
	if tp == nil {
		return noopMiddleware{}
	}
	if p == nil {
		p = propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
	}
	return &tracingMiddleware{
		tracer: tp.Tracer(
			instrumentationName,
			trace.WithInstrumentationVersion(instrumentationVersion),
		),
		propagator: p,
	}
}

// Wrap оборачивает провайдер для добавления логики трассировки.
func (m *tracingMiddleware) Wrap(next Provider) Provider {
	return ProviderFunc(func(ctx context.Context, req *Request) (resp *Response, err error) {
		spanName := fmt.Sprintf("%s %s", req.Method, req.URL)
		ctx, span := m.tracer.Start(ctx, spanName,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("http.request.method", req.Method),
				attribute.String("url.path", req.URL),
				attribute.String("request.id", req.ID.String()),
			),
		)
		defer func() {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			span.End()
		}()

		if req.Header != nil {
			m.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))
		}

		return next.Send(ctx, req)
	})
}

// noopMiddleware представляет собой пустое middleware.
type noopMiddleware struct{}

// Wrap просто возвращает следующий провайдер без изменений.
func (noopMiddleware) Wrap(next Provider) Provider {
	return next
}

// applyMiddlewares применяет цепочку middleware к базовому провайдеру.
func applyMiddlewares(provider Provider, middlewares ...Middleware) Provider {
	p := provider
	for i := len(middlewares) - 1; i >= 0; i-- {
		p = middlewares[i].Wrap(p)
	}
	return p
}

func statusLabel(resp *Response, err error) string {
	if err == nil && resp != nil {
		return strconv.Itoa(resp.Status)
	}
	if f, ok := AsFailure(err); ok && f.Status != 0 {
		return strconv.Itoa(f.Status)
	}
	return "error"
}
