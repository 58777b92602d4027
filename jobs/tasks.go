package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/payalloc/internal/invoicing"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInvoiceRun computes and stores the invoices for one payroll batch.
	TaskInvoiceRun = "invoice:run"
	// TaskCacheFlush invalidates every cached invoice run.
	TaskCacheFlush = "invoice:cache_flush"
)

// InvoiceRunPayload carries both engine inputs inline.
type InvoiceRunPayload struct {
	Request     invoicing.Request `json:"request"`
	RequestedBy string            `json:"requested_by,omitempty"`
}

// NewInvoiceRunTask constructs an invoice run task. The task id is derived
// from the input fingerprint so identical batches are not queued twice.
func NewInvoiceRunTask(payload InvoiceRunPayload, opts ...asynq.Option) (*asynq.Task, error) {
	fingerprint, err := invoicing.Fingerprint(payload.Request)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	options := append([]asynq.Option{
		asynq.Queue(QueueDefault),
		asynq.TaskID(fmt.Sprintf("%s:%s", TaskInvoiceRun, fingerprint)),
	}, opts...)
	return asynq.NewTask(TaskInvoiceRun, body, options...), nil
}

// NewCacheFlushTask constructs a cache invalidation task.
func NewCacheFlushTask() *asynq.Task {
	return asynq.NewTask(TaskCacheFlush, nil, asynq.Queue(QueueDefault))
}
