package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/x-research-team/dtx-sync/sidecar"
	"github.com/x-research-team/dtx-sync/sidecar/storage"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// failingStorage отказывает во всех операциях.
type failingStorage struct{}

func (failingStorage) SaveSidecar(context.Context, sidecar.Sidecar) error { return errors.New("db down") }
func (failingStorage) ListSidecars(context.Context, storage.Filter) ([]sidecar.Sidecar, int, error) {
	return nil, 0, errors.New("db down")
}
func (failingStorage) SaveActions(context.Context, ...*storage.Actions) error {
	return errors.New("db down")
}
func (failingStorage) FindActions(context.Context, string, bool) (*storage.Actions, error) {
	return nil, errors.New("db down")
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func newTestServer(t *testing.T) (*Server, *storage.MemoryStorage) {
	t.Helper()
	st := storage.NewMemoryStorage()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, st.SaveSidecar(context.Background(), sidecar.Sidecar{NodeID: id, NodeName: "node-" + id, Active: true}))
	}
	return NewServer(st, WithLogger(nil)), st
}

func TestServer_Administration(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/sidecar/administration", `{"query":"","page":1,"per_page":2}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp sidecar.ListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 2, resp.Count)
	assert.Len(t, resp.Sidecars, 2)
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, 2, resp.PerPage)
	assert.NotNil(t, resp.Filters)
}

func TestServer_AdministrationNormalizesPage(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	var resp sidecar.ListResponse
	rec := do(t, srv, http.MethodPost, "/sidecar/administration", `{"page":0,"per_page":0}`)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, 50, resp.PerPage)

	rec = do(t, srv, http.MethodPost, "/sidecar/administration", `{"page":2,"per_page":9000}`)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 500, resp.PerPage)
	assert.Empty(t, resp.Sidecars)
	assert.Equal(t, 3, resp.Total)
}

func TestServer_AdministrationHugePageDoesNotOverflow(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/sidecar/administration", `{"page":4611686018427387904,"per_page":2}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp sidecar.ListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.PerPage)
	assert.Equal(t, math.MaxInt/2, resp.Page)
	assert.Empty(t, resp.Sidecars)
	assert.Equal(t, 3, resp.Total)
}

func TestServer_AdministrationBadBody(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/sidecar/administration", `{`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"message"`)
}

func TestServer_BulkActionFansOut(t *testing.T) {
	t.Parallel()

	srv, st := newTestServer(t)
	rec := do(t, srv, http.MethodPut, "/sidecar/administration/action",
		`{"action":"restart","collectors":[{"sidecar_id":"a","collector_ids":["c1","c2"]},{"sidecar_id":"b","collector_ids":["c3"]}]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	a, err := st.FindActions(context.Background(), "a", false)
	require.NoError(t, err)
	require.Len(t, a.Actions, 2)
	assert.Equal(t, "c1", a.Actions[0].CollectorID)
	assert.Equal(t, map[string]any{"restart": true}, a.Actions[0].Properties)

	b, err := st.FindActions(context.Background(), "b", false)
	require.NoError(t, err)
	assert.Len(t, b.Actions, 1)
}

func TestServer_BulkActionValidation(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPut, "/sidecar/administration/action", `{"action":"explode","collectors":[{"sidecar_id":"a","collector_ids":["c1"]}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPut, "/sidecar/administration/action", `{"action":"stop","collectors":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPut, "/sidecar/administration/action", `{"action":"stop","collectors":[{"collector_ids":["c1"]}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ActionQueue(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/sidecar/action/a", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String(), "без очереди возвращается пустой список")

	rec = do(t, srv, http.MethodPut, "/sidecar/action/a", `[{"collector_id":"c9","properties":{"stop":true}}]`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, srv, http.MethodGet, "/sidecar/action/a", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"collector_id":"c9","properties":{"stop":true}}]`, rec.Body.String())

	rec = do(t, srv, http.MethodPut, "/sidecar/action/a", `null`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Register(t *testing.T) {
	t.Parallel()

	srv, st := newTestServer(t)
	rec := do(t, srv, http.MethodPut, "/sidecar/d", `{"node_name":"node-d","operating_system":"Linux","collectors":["filebeat"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	list, total, err := st.ListSidecars(context.Background(), storage.Filter{Query: "node-d"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.True(t, list[0].Active)
	assert.False(t, list[0].LastSeen.IsZero())

	rec = do(t, srv, http.MethodPut, "/sidecar/e", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_RegisterIDSharingStaticPrefix(t *testing.T) {
	t.Parallel()

	srv, st := newTestServer(t)
	for _, id := range []string{"actions-host", "admin-01"} {
		rec := do(t, srv, http.MethodPut, "/sidecar/"+id, `{"node_name":"`+id+`"}`)
		require.Equal(t, http.StatusAccepted, rec.Code, id)
	}

	_, total, err := st.ListSidecars(context.Background(), storage.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
}

func TestServer_CountTotal(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	do(t, srv, http.MethodGet, "/up", "")
	do(t, srv, http.MethodGet, "/up", "")

	rec := do(t, srv, http.MethodGet, "/count/total", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"events":3}`, rec.Body.String())
	assert.Equal(t, int64(3), srv.Events())
}

func TestServer_StorageFailure(t *testing.T) {
	t.Parallel()

	srv := NewServer(failingStorage{}, WithLogger(nil))

	rec := do(t, srv, http.MethodPost, "/sidecar/administration", `{}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down", "внутренняя ошибка не раскрывается клиенту")

	rec = do(t, srv, http.MethodGet, "/sidecar/action/a", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_TracingContinuesClientTrace(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	srv := NewServer(storage.NewMemoryStorage(), WithLogger(nil), WithTracerProvider(tp))

	req := httptest.NewRequest(http.MethodGet, "/sidecar/action/a", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	srv.ServeHTTP(httptest.NewRecorder(), req)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /sidecar/action/a", spans[0].Name)
	assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", spans[0].SpanContext.TraceID().String())
}

func TestServer_MetricsUseRoutePattern(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	srv := NewServer(storage.NewMemoryStorage(),
		WithLogger(nil),
		WithMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))),
	)
	do(t, srv, http.MethodGet, "/sidecar/action/a", "")
	do(t, srv, http.MethodGet, "/sidecar/action/b", "")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var requests int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "api.request.count" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				route, _ := dp.Attributes.Value(attribute.Key("http.route"))
				assert.Equal(t, "/sidecar/action/:sidecarId", route.AsString())
				requests += dp.Value
			}
		}
	}
	assert.Equal(t, int64(2), requests)
}
