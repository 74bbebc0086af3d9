package remote

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/x-research-team/dtx-sync/bus/future"
)

// gateImpl — реализация Gate поверх сменного Provider.
type gateImpl struct {
	provider Provider
	cfg      *config
	logger   *slog.Logger
	sem      *semaphore.Weighted
}

// NewGate создает шлюз поверх provider. Стандартная цепочка middleware
// (логирование, метрики, трассировка) применяется раньше пользовательской.
func NewGate(provider Provider, opts ...Option) Gate {
	cfg := &config{
		logger:        slog.Default(),
		retryInterval: defaultRetryInterval,
		maxInFlight:   defaultMaxInFlight,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	allMiddlewares := []Middleware{
		NewLoggingMiddleware(cfg.logger),
		NewMetricsMiddleware(cfg.meterProvider),
		NewTracingMiddleware(cfg.tracerProvider, cfg.propagator),
	}
	allMiddlewares = append(allMiddlewares, cfg.middlewares...)

	g := &gateImpl{
		provider: applyMiddlewares(provider, allMiddlewares...),
		cfg:      cfg,
		logger:   logger,
	}
	if cfg.maxInFlight > 0 {
		g.sem = semaphore.NewWeighted(cfg.maxInFlight)
	}
	return g
}

// NewHTTPGate — сокращение для NewGate(NewHTTPProvider(baseURL, httpOpts...), opts...).
func NewHTTPGate(baseURL string, httpOpts []HTTPOption, opts ...Option) Gate {
	return NewGate(NewHTTPProvider(baseURL, httpOpts...), opts...)
}

// Execute выполняет одну попытку запроса в отдельной горутине.
func (g *gateImpl) Execute(ctx context.Context, method, url string, body any) *future.Future[*Response] {
	req := NewRequest(method, url, body)
	result := future.New[*Response]()

	go func() {
		result.Settle(g.send(ctx, req))
	}()

	return result
}

// ExecutePeriodically повторяет запрос, пока отказ остается повторяемым.
func (g *gateImpl) ExecutePeriodically(ctx context.Context, method, url string, body any, interval time.Duration) (*future.Future[*Response], context.CancelFunc) {
	if interval <= 0 {
		interval = g.cfg.retryInterval
	}

	req := NewRequest(method, url, body)
	result := future.New[*Response]()
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		defer cancel()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for attempt := 1; ; attempt++ {
			resp, err := g.send(ctx, req)
			if err == nil {
				result.Resolve(resp)
				return
			}

			failure := toFailure(req, err)
			if !failure.IsRetryable() || ctx.Err() != nil {
				result.Reject(failure)
				return
			}

			g.logger.Warn("повтор удаленного запроса",
				slog.String("request_id", req.ID.String()),
				slog.String("method", req.Method),
				slog.String("url", req.URL),
				slog.Int("attempt", attempt),
				slog.Duration("interval", interval),
				slog.Any("error", failure),
			)

			select {
			case <-ticker.C:
			case <-ctx.Done():
				result.Reject(toFailure(req, ctx.Err()))
				return
			}
		}
	}()

	return result, cancel
}

// send выполняет одну попытку с учетом ограничения параллелизма.
func (g *gateImpl) send(ctx context.Context, req *Request) (*Response, error) {
	if g.sem != nil {
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return nil, toFailure(req, err)
		}
		defer g.sem.Release(1)
	}

	resp, err := g.provider.Send(ctx, req)
	if err != nil {
		return nil, toFailure(req, err)
	}
	if resp == nil {
		return nil, toFailure(req, errors.New("транспорт вернул пустой ответ"))
	}
	return resp, nil
}
