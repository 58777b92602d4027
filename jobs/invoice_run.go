package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/payalloc/internal/invoicing"
	jobmetrics "github.com/odyssey-erp/payalloc/internal/jobs"
	"github.com/odyssey-erp/payalloc/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// InvoiceRunService describes the service behaviour the job relies on.
type InvoiceRunService interface {
	Run(ctx context.Context, req invoicing.Request) (invoicing.Run, error)
}

// InvoiceRunJob executes queued invoice runs.
type InvoiceRunJob struct {
	Service InvoiceRunService
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewInvoiceRunJob constructs the job handler.
func NewInvoiceRunJob(service InvoiceRunService, logger *slog.Logger, metrics *jobmetrics.Metrics) *InvoiceRunJob {
	return &InvoiceRunJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one invoice run. Malformed payloads and inputs the service
// rejects are not retried.
func (j *InvoiceRunJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("invoice run: dependencies not configured")
	}
	tracker := j.metrics().Track(TaskInvoiceRun)

	var payload InvoiceRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		j.log().Warn("malformed payload", slog.Any("error", err))
		return tracker.Reject("malformed_payload", fmt.Errorf("invoice run: decode payload: %v: %w", err, asynq.SkipRetry))
	}
	if payload.RequestedBy != "" {
		ctx = shared.ContextWithActor(ctx, payload.RequestedBy)
	}

	start := j.now()
	run, err := j.Service.Run(ctx, payload.Request)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidInput) {
			j.log().Warn("invoice run rejected", slog.Any("error", err))
			return tracker.Reject("invalid_input", fmt.Errorf("invoice run: %v: %w", err, asynq.SkipRetry))
		}
		j.log().Error("invoice run", slog.String("pay_period", payload.Request.Payroll.PayPeriod), slog.Any("error", err))
		return tracker.End(err)
	}

	j.log().Info("invoice run completed",
		slog.String("run_id", run.ID.String()),
		slog.String("pay_period", run.PayPeriod),
		slog.Int("properties", len(run.Invoices)),
		slog.Int("unmatched", len(run.Unmatched)),
		slog.Duration("duration", j.now().Sub(start)))
	return tracker.End(nil)
}

func (j *InvoiceRunJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *InvoiceRunJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskInvoiceRun))
	}
	return slog.Default().With(slog.String("job", TaskInvoiceRun))
}

func (j *InvoiceRunJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *InvoiceRunJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
