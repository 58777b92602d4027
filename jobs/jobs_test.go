package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/payalloc/internal/allocation"
	"github.com/odyssey-erp/payalloc/internal/invoicing"
	jobmetrics "github.com/odyssey-erp/payalloc/internal/jobs"
	"github.com/odyssey-erp/payalloc/internal/shared"
)

type stubRunService struct {
	calls  int
	actor  string
	req    invoicing.Request
	result invoicing.Run
	err    error
}

func (s *stubRunService) Run(ctx context.Context, req invoicing.Request) (invoicing.Run, error) {
	s.calls++
	s.actor = shared.ActorFromContext(ctx)
	s.req = req
	return s.result, s.err
}

type stubFlusher struct {
	version int64
	err     error
}

func (f *stubFlusher) FlushCache(context.Context) (int64, error) {
	f.version++
	return f.version, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func samplePayload() InvoiceRunPayload {
	return InvoiceRunPayload{
		Request: invoicing.Request{
			Payroll: allocation.PayrollParseResult{PayPeriod: "2024-03", Employees: []allocation.PayrollEmployee{{Name: "Ann", Salary: 10}}},
			Table: allocation.AllocationTable{
				Properties: []allocation.Property{{Key: "A"}},
				Employees:  []allocation.AllocationEmployee{{Name: "Ann", Allocations: map[string]any{"A": 100.0}}},
			},
		},
		RequestedBy: "cli:ops",
	}
}

func TestInvoiceRunJobHandle(t *testing.T) {
	svc := &stubRunService{result: invoicing.Run{ID: uuid.New(), PayPeriod: "2024-03"}}
	job := NewInvoiceRunJob(svc, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewInvoiceRunTask(samplePayload())
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if svc.calls != 1 {
		t.Fatalf("expected one service call, got %d", svc.calls)
	}
	if svc.actor != "cli:ops" {
		t.Fatalf("expected actor to flow from payload, got %q", svc.actor)
	}
	if svc.req.Payroll.PayPeriod != "2024-03" || len(svc.req.Table.Employees) != 1 {
		t.Fatalf("request not decoded: %+v", svc.req)
	}
}

func TestInvoiceRunJobSkipsRetryForBadInput(t *testing.T) {
	job := NewInvoiceRunJob(&stubRunService{}, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	err := job.Handle(context.Background(), asynq.NewTask(TaskInvoiceRun, []byte("{not json")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry for malformed payload, got %v", err)
	}

	svc := &stubRunService{err: fmt.Errorf("bad table: %w", shared.ErrInvalidInput)}
	job = NewInvoiceRunJob(svc, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	body, _ := json.Marshal(samplePayload())
	err = job.Handle(context.Background(), asynq.NewTask(TaskInvoiceRun, body))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry for invalid input, got %v", err)
	}
}

func TestInvoiceRunJobRetriesStorageFailures(t *testing.T) {
	boom := errors.New("db down")
	job := NewInvoiceRunJob(&stubRunService{err: boom}, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	body, _ := json.Marshal(samplePayload())
	err := job.Handle(context.Background(), asynq.NewTask(TaskInvoiceRun, body))
	if !errors.Is(err, boom) || errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestInvoiceRunJobRequiresService(t *testing.T) {
	var job *InvoiceRunJob
	if err := job.Handle(context.Background(), asynq.NewTask(TaskInvoiceRun, nil)); err == nil {
		t.Fatal("expected error for unconfigured job")
	}
}

func TestNewInvoiceRunTaskUsesFingerprintID(t *testing.T) {
	payload := samplePayload()
	task, err := NewInvoiceRunTask(payload)
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if task.Type() != TaskInvoiceRun {
		t.Fatalf("unexpected type %s", task.Type())
	}
	var decoded InvoiceRunPayload
	if err := json.Unmarshal(task.Payload(), &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.RequestedBy != payload.RequestedBy {
		t.Fatalf("payload mismatch: %+v", decoded)
	}
}

func TestCacheFlushJob(t *testing.T) {
	flusher := &stubFlusher{version: 1}
	job := NewCacheFlushJob(flusher, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	if err := job.Handle(context.Background(), NewCacheFlushTask()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if flusher.version != 2 {
		t.Fatalf("expected version bump, got %d", flusher.version)
	}

	flusher.err = errors.New("redis down")
	if err := job.Handle(context.Background(), NewCacheFlushTask()); err == nil {
		t.Fatal("expected flush error")
	}
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	if _, err := NewWorker(WorkerConfig{Logger: quietLogger()}); err == nil {
		t.Fatal("expected error without handlers")
	}
	worker, err := NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Logger:    quietLogger(),
		Handlers:  []TaskHandler{{Type: TaskCacheFlush, Handler: func(context.Context, *asynq.Task) error { return nil }}},
	})
	if err != nil || worker == nil {
		t.Fatalf("expected worker, got %v", err)
	}
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHealthHandler(t *testing.T) {
	cases := []struct {
		name      string
		inspector QueueInspector
		code      int
		body      string
	}{
		{"no inspector", nil, http.StatusOK, `"pending":0`},
		{"queue info", stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Archived: 1}}, http.StatusOK, `"pending":3`},
		{"redis down", stubInspector{err: errors.New("dial tcp")}, http.StatusServiceUnavailable, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			r.Route("/jobs", NewHandler(tc.inspector, quietLogger()).MountRoutes)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tc.body) {
				t.Fatalf("expected %q in %s", tc.body, rec.Body.String())
			}
		})
	}
}
