package remote_test

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/x-research-team/dtx-sync/bus/remote"
)

// scriptedProvider возвращает заранее заданные исходы по порядку попыток.
type scriptedProvider struct {
	calls    atomic.Int32
	outcomes []func(req *remote.Request) (*remote.Response, error)
}

func (p *scriptedProvider) Send(ctx context.Context, req *remote.Request) (*remote.Response, error) {
	n := int(p.calls.Add(1)) - 1
	if n >= len(p.outcomes) {
		n = len(p.outcomes) - 1
	}
	return p.outcomes[n](req)
}

func ok(status int) func(*remote.Request) (*remote.Response, error) {
	return func(*remote.Request) (*remote.Response, error) {
		return &remote.Response{Status: status, Body: []byte(`{}`)}, nil
	}
}

func fail(status int) func(*remote.Request) (*remote.Response, error) {
	return func(req *remote.Request) (*remote.Response, error) {
		return nil, &remote.Failure{Status: status, Method: req.Method, URL: req.URL, Message: "сбой"}
	}
}

func await(t *testing.T, gateResult interface {
	Await(context.Context) (*remote.Response, error)
}) (*remote.Response, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return gateResult.Await(ctx)
}

func TestGate_ExecuteSingleAttempt(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{outcomes: []func(*remote.Request) (*remote.Response, error){fail(503), ok(200)}}
	gate := remote.NewGate(provider)

	_, err := await(t, gate.Execute(context.Background(), http.MethodGet, "/count/total", nil))
	failure, isFailure := remote.AsFailure(err)
	require.True(t, isFailure)
	assert.Equal(t, 503, failure.Status)
	assert.Equal(t, int32(1), provider.calls.Load(), "Execute не должен повторять запрос")
}

func TestGate_ExecuteWrapsPlainErrors(t *testing.T) {
	t.Parallel()

	plain := errors.New("connection reset")
	gate := remote.NewGate(remote.ProviderFunc(func(context.Context, *remote.Request) (*remote.Response, error) {
		return nil, plain
	}))

	_, err := await(t, gate.Execute(context.Background(), http.MethodGet, "/x", nil))
	failure, isFailure := remote.AsFailure(err)
	require.True(t, isFailure)
	assert.Zero(t, failure.Status)
	assert.ErrorIs(t, err, plain)
}

func TestGate_ExecutePeriodicallyRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{outcomes: []func(*remote.Request) (*remote.Response, error){fail(0), fail(502), ok(200)}}
	gate := remote.NewGate(provider)

	result, cancel := gate.ExecutePeriodically(context.Background(), http.MethodPost, "/x", nil, time.Millisecond)
	defer cancel()

	resp, err := await(t, result)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, int32(3), provider.calls.Load())
}

func TestGate_ExecutePeriodicallyStopsOnFinalFailure(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{outcomes: []func(*remote.Request) (*remote.Response, error){fail(503), fail(500), ok(200)}}
	gate := remote.NewGate(provider)

	result, cancel := gate.ExecutePeriodically(context.Background(), http.MethodPost, "/x", nil, time.Millisecond)
	defer cancel()

	_, err := await(t, result)
	failure, isFailure := remote.AsFailure(err)
	require.True(t, isFailure)
	assert.Equal(t, 500, failure.Status)
	assert.Equal(t, int32(2), provider.calls.Load())
}

func TestGate_ExecutePeriodicallyDoesNotRetryLocalErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	gate := remote.NewGate(remote.ProviderFunc(func(context.Context, *remote.Request) (*remote.Response, error) {
		calls.Add(1)
		return nil, errors.New("не удалось сериализовать тело запроса: bad")
	}), remote.WithLogger(nil))

	result, cancel := gate.ExecutePeriodically(context.Background(), http.MethodPost, "/x", nil, 10*time.Millisecond)
	defer cancel()

	_, err := await(t, result)
	failure, isFailure := remote.AsFailure(err)
	require.True(t, isFailure)
	assert.True(t, failure.Local)
	assert.Contains(t, failure.Error(), "запрос не отправлен")
	assert.Equal(t, int32(1), calls.Load(), "локальная ошибка не должна повторяться")
}

func TestGate_ExecutePeriodicallyCancel(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{outcomes: []func(*remote.Request) (*remote.Response, error){fail(0)}}
	gate := remote.NewGate(provider)

	result, cancel := gate.ExecutePeriodically(context.Background(), http.MethodGet, "/x", nil, time.Hour)
	time.Sleep(10 * time.Millisecond)
	cancel()

	_, err := await(t, result)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGate_Telemetry(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	recorder := tracetest.NewSpanRecorder()
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	var traceparent string
	provider := remote.ProviderFunc(func(ctx context.Context, req *remote.Request) (*remote.Response, error) {
		traceparent = req.Header.Get("traceparent")
		return &remote.Response{Status: 202}, nil
	})
	gate := remote.NewGate(provider,
		remote.WithMeterProvider(meterProvider),
		remote.WithTracerProvider(tracerProvider),
	)

	_, err := await(t, gate.Execute(context.Background(), http.MethodPut, "/sidecar/action", nil))
	require.NoError(t, err)

	assert.NotEmpty(t, traceparent, "контекст трассировки должен попасть в заголовки")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "PUT /sidecar/action", spans[0].Name())
	assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.NotEmpty(t, rm.ScopeMetrics)

	var found bool
	for _, m := range rm.ScopeMetrics[0].Metrics {
		if m.Name != "remote.request.count" {
			continue
		}
		sum, isSum := m.Data.(metricdata.Sum[int64])
		require.True(t, isSum)
		require.Len(t, sum.DataPoints, 1)
		assert.Equal(t, int64(1), sum.DataPoints[0].Value)
		found = true
	}
	assert.True(t, found, "счетчик запросов должен быть записан")
}
