package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/payalloc/internal/shared"
	"github.com/odyssey-erp/payalloc/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers against the given Redis instance.
func NewJobsCLI(opts asynq.RedisClientOpt, maxRetry int) *JobsCLI {
	return &JobsCLI{client: jobs.NewClient(opts, maxRetry), inspector: asynq.NewInspector(opts)}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// EnqueueOptions defines the flags of the enqueue command.
type EnqueueOptions struct {
	PayrollPath    string
	AllocationPath string
	Period         string
	Stdout         io.Writer
	Stderr         io.Writer
}

// EnqueueCommand validates the inputs locally and queues an invoice run.
func (c *JobsCLI) EnqueueCommand(ctx context.Context, opts EnqueueOptions) int {
	stdout, stderr := streams(opts.Stdout, opts.Stderr)
	if c == nil || c.client == nil {
		_, _ = fmt.Fprintln(stderr, "enqueue: client not configured")
		return 1
	}
	req, err := LoadRequest(opts.PayrollPath, opts.AllocationPath, opts.Period)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "enqueue: %v\n", err)
		return 1
	}
	info, err := c.client.EnqueueInvoiceRun(ctx, jobs.InvoiceRunPayload{
		Request:     req,
		RequestedBy: "cli:" + shared.ActorFromContext(ctx),
	})
	if errors.Is(err, jobs.ErrAlreadyQueued) {
		_, _ = fmt.Fprintln(stdout, "identical invoice run already queued")
		return 0
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "enqueue: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "queued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	return 0
}

// FlushCacheCommand queues a run cache invalidation.
func (c *JobsCLI) FlushCacheCommand(ctx context.Context, stdout, stderr io.Writer) int {
	stdout, stderr = streams(stdout, stderr)
	info, err := c.client.EnqueueCacheFlush(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "flush-cache: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "queued %s id=%s\n", info.Type, info.ID)
	return 0
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats, nil
}

// QueueCommand prints queue statistics.
func (c *JobsCLI) QueueCommand(ctx context.Context, stdout, stderr io.Writer) int {
	stdout, stderr = streams(stdout, stderr)
	stats, err := c.InspectQueue(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "queue: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
		stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
	return 0
}

func streams(stdout, stderr io.Writer) (io.Writer, io.Writer) {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}
