package app

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/produce-ledger/internal/integrity"
	"github.com/odyssey-erp/produce-ledger/internal/ledger"
	"github.com/odyssey-erp/produce-ledger/internal/ledger/memory"
	"github.com/odyssey-erp/produce-ledger/internal/observability"
	"github.com/odyssey-erp/produce-ledger/internal/shared"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestRouter(t *testing.T, ready Pinger) (http.Handler, *observability.Metrics) {
	t.Helper()
	store := memory.New()
	clock := func() time.Time { return time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC) }
	metrics := observability.NewMetrics()
	svc := ledger.NewService(store, ledger.ServiceConfig{Clock: clock, Observer: metrics})
	auditor := integrity.NewAuditor(store, integrity.AuditorConfig{Clock: clock})
	cfg := &Config{AppEnv: "test", RateLimitPerMin: 1000, AppRequestTimeout: 5 * time.Second}
	return NewRouter(RouterParams{
		Config:           cfg,
		LedgerHandler:    ledger.NewHandler(nil, svc),
		IntegrityHandler: integrity.NewHandler(integrity.NewService(auditor, integrity.ServiceConfig{})),
		Metrics:          metrics,
		Ready:            ready,
	}), metrics
}

func TestRouterServesAPI(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	body := bytes.NewBufferString(`{"name":"Mango"}`)
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/items", body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/integrity/check", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `ledger_mutations_total{operation="item.register",outcome="ok"} 1`))
	require.Contains(t, rec.Body.String(), `route="/api/v1/items"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouterReadiness(t *testing.T) {
	healthy, _ := newTestRouter(t, pingFunc(func(context.Context) error { return nil }))
	rec := httptest.NewRecorder()
	healthy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	down, _ := newTestRouter(t, pingFunc(func(context.Context) error { return errors.New("pool closed") }))
	rec = httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouterIdempotency(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := memory.New()
	clock := func() time.Time { return time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC) }
	svc := ledger.NewService(store, ledger.ServiceConfig{Clock: clock})
	router := NewRouter(RouterParams{
		Config:        &Config{RateLimitPerMin: 1000},
		LedgerHandler: ledger.NewHandler(nil, svc),
		Idempotency:   shared.NewIdempotencyStore(client, time.Hour),
	})

	post := func(key, body string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/items", strings.NewReader(body))
		req.Header.Set(IdempotencyHeader, key)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusCreated, post("a", `{"name":"Mango"}`))
	require.Equal(t, http.StatusConflict, post("a", `{"name":"Mango"}`))

	require.Equal(t, http.StatusBadRequest, post("b", `{}`))
	require.Equal(t, http.StatusCreated, post("b", `{"name":"Banana"}`))
}
