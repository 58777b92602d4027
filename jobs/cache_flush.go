package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/payalloc/internal/jobs"
)

// CacheFlusher invalidates cached invoice runs.
type CacheFlusher interface {
	FlushCache(ctx context.Context) (int64, error)
}

// CacheFlushJob bumps the run cache version.
type CacheFlushJob struct {
	Flusher CacheFlusher
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCacheFlushJob constructs the job handler.
func NewCacheFlushJob(flusher CacheFlusher, logger *slog.Logger, metrics *jobmetrics.Metrics) *CacheFlushJob {
	return &CacheFlushJob{Flusher: flusher, Logger: logger, Metrics: metrics}
}

// Handle executes the flush.
func (j *CacheFlushJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Flusher == nil {
		return errors.New("cache flush: dependencies not configured")
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskCacheFlush)
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("job", TaskCacheFlush))

	version, err := j.Flusher.FlushCache(ctx)
	if err != nil {
		logger.Error("flush run cache", slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("run cache flushed", slog.Int64("version", version))
	return tracker.End(nil)
}
