package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/produce-ledger/internal/integrity"
	jobmetrics "github.com/odyssey-erp/produce-ledger/internal/jobs"
	"github.com/odyssey-erp/produce-ledger/internal/shared"
)

type fakeRunner struct {
	calls  []bool
	err    error
	report integrity.Report
}

func (f *fakeRunner) Run(_ context.Context, repair bool) (integrity.Report, error) {
	f.calls = append(f.calls, repair)
	return f.report, f.err
}

type fakeRoller struct {
	rows int
	err  error
}

func (f *fakeRoller) RolloverInventory(context.Context) (int, error) {
	return f.rows, f.err
}

func TestIntegrityCheckTaskPayload(t *testing.T) {
	at := time.Date(2024, 3, 10, 5, 0, 0, 0, time.UTC)
	task, err := NewIntegrityCheckTask(IntegrityCheckPayload{Repair: true, RequestedAt: at})
	require.NoError(t, err)
	require.Equal(t, TaskIntegrityCheck, task.Type())

	var payload IntegrityCheckPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.True(t, payload.Repair)
	require.True(t, payload.RequestedAt.Equal(at))
}

func TestIntegrityCheckJobRunsScan(t *testing.T) {
	runner := &fakeRunner{report: integrity.Report{RunID: "r1"}}
	job := NewIntegrityCheckJob(runner, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewIntegrityCheckTask(IntegrityCheckPayload{Repair: true})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	job.Repair = true
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIntegrityCheck, nil)))
	require.Equal(t, []bool{true, true}, runner.calls)
}

func TestIntegrityCheckJobErrors(t *testing.T) {
	ctx := context.Background()

	bad := asynq.NewTask(TaskIntegrityCheck, []byte("{"))
	err := NewIntegrityCheckJob(&fakeRunner{}, nil, nil).Handle(ctx, bad)
	require.ErrorIs(t, err, asynq.SkipRetry)

	busy := &fakeRunner{err: fmt.Errorf("scan: %w", shared.ErrConflict)}
	require.NoError(t, NewIntegrityCheckJob(busy, nil, nil).Handle(ctx, asynq.NewTask(TaskIntegrityCheck, nil)))

	boom := errors.New("db down")
	failing := &fakeRunner{err: boom}
	require.ErrorIs(t, NewIntegrityCheckJob(failing, nil, nil).Handle(ctx, asynq.NewTask(TaskIntegrityCheck, nil)), boom)

	var unset *IntegrityCheckJob
	require.Error(t, unset.Handle(ctx, asynq.NewTask(TaskIntegrityCheck, nil)))
}

func TestInventoryRolloverJob(t *testing.T) {
	ctx := context.Background()
	task, err := NewInventoryRolloverTask(time.Date(2024, 3, 10, 0, 5, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, TaskInventoryRollover, task.Type())

	require.NoError(t, NewInventoryRolloverJob(&fakeRoller{rows: 3}, nil, nil).Handle(ctx, task))

	boom := errors.New("locked")
	require.ErrorIs(t, NewInventoryRolloverJob(&fakeRoller{err: boom}, nil, nil).Handle(ctx, task), boom)
	require.Error(t, NewInventoryRolloverJob(nil, nil, nil).Handle(ctx, task))
}

type fakeEnqueuer struct {
	payloads []IntegrityCheckPayload
	err      error
}

func (f *fakeEnqueuer) EnqueueIntegrityCheck(_ context.Context, payload IntegrityCheckPayload) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.payloads = append(f.payloads, payload)
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault}, nil
}

func TestHandlerRoutes(t *testing.T) {
	enq := &fakeEnqueuer{}
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(nil, enq, nil).MountRoutes)

	call := func(method, path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		return rec
	}

	rec := call(http.MethodGet, "/jobs/health")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":0,"active":0,"retry":0}`, rec.Body.String())

	rec = call(http.MethodPost, "/jobs/integrity-check?repair=true")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.JSONEq(t, `{"task_id":"task-1","queue":"default"}`, rec.Body.String())
	require.Len(t, enq.payloads, 1)
	require.True(t, enq.payloads[0].Repair)

	require.Equal(t, http.StatusBadRequest, call(http.MethodPost, "/jobs/integrity-check?repair=soon").Code)

	enq.err = errors.New("redis down")
	require.Equal(t, http.StatusServiceUnavailable, call(http.MethodPost, "/jobs/integrity-check").Code)

	r2 := chi.NewRouter()
	r2.Route("/jobs", NewHandler(nil, nil, nil).MountRoutes)
	rec = httptest.NewRecorder()
	r2.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/integrity-check", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
