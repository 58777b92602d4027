package invoicing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/payalloc/internal/allocation"
	"github.com/odyssey-erp/payalloc/internal/platform/events"
	"github.com/odyssey-erp/payalloc/internal/shared"
)

// Repository persists invoice runs.
type Repository interface {
	SaveRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, id uuid.UUID) (Run, error)
	FindRunByFingerprint(ctx context.Context, fingerprint string) (Run, error)
	ListRuns(ctx context.Context, payPeriod string, limit, offset int) ([]RunSummary, int, error)
}

// AuditRecorder writes audit trail entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Run sources reported to metrics.
const (
	SourceComputed = "computed"
	SourceStored   = "stored"
	SourceCached   = "cached"
)

// ServiceConfig collects the service dependencies. Only Repo is required
// for Run; Preview needs none of them.
type ServiceConfig struct {
	Repo    Repository
	Cache   *Cache
	Audit   AuditRecorder
	Events  events.Publisher
	Metrics *Metrics
	Logger  *slog.Logger
	Clock   func() time.Time
	NewID   func() uuid.UUID
}

// Service orchestrates engine runs around storage and side channels.
type Service struct {
	engine  *allocation.Engine
	repo    Repository
	cache   *Cache
	audit   AuditRecorder
	events  events.Publisher
	metrics *Metrics
	logger  *slog.Logger
	clock   func() time.Time
	newID   func() uuid.UUID
	group   singleflight.Group
}

// NewService constructs the invoicing service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		repo:    cfg.Repo,
		cache:   cfg.Cache,
		audit:   cfg.Audit,
		events:  cfg.Events,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		clock:   cfg.Clock,
		newID:   cfg.NewID,
	}
	s.engine = allocation.NewEngine(cfg.Logger)
	return s
}

// Preview computes a run without touching storage, cache or events.
func (s *Service) Preview(req Request) (Run, error) {
	fingerprint, err := Fingerprint(req)
	if err != nil {
		return Run{}, err
	}
	result := s.engine.Run(req.Payroll, req.Table)
	return newRun(s.id(), fingerprint, s.now(), result), nil
}

// Run computes, stores and announces the invoices for req. Identical inputs
// return the previously stored run. Concurrent identical requests share a
// single computation.
func (s *Service) Run(ctx context.Context, req Request) (Run, error) {
	if s == nil || s.repo == nil {
		return Run{}, errors.New("invoicing: repository not configured")
	}
	fingerprint, err := Fingerprint(req)
	if err != nil {
		return Run{}, err
	}

	key, err := s.cache.Key(ctx, fingerprint)
	if err != nil {
		s.log().Warn("run cache key", slog.Any("error", err))
		key = ""
	}
	if key != "" {
		run, hit, err := s.cache.Get(ctx, key)
		if err != nil {
			s.log().Warn("run cache get", slog.String("key", key), slog.Any("error", err))
		}
		if s.cache.enabled() {
			s.metrics.observeCache(hit)
		}
		if hit {
			s.metrics.observeSource(SourceCached)
			return run, nil
		}
	}

	resultCh := s.group.DoChan(fingerprint, func() (interface{}, error) {
		return s.compute(context.WithoutCancel(ctx), fingerprint, key, req)
	})
	select {
	case <-ctx.Done():
		return Run{}, ctx.Err()
	case res := <-resultCh:
		if res.Err != nil {
			return Run{}, res.Err
		}
		return res.Val.(Run), nil
	}
}

func (s *Service) compute(ctx context.Context, fingerprint, key string, req Request) (Run, error) {
	existing, err := s.repo.FindRunByFingerprint(ctx, fingerprint)
	switch {
	case err == nil:
		s.metrics.observeSource(SourceStored)
		s.remember(ctx, key, existing)
		return existing, nil
	case !errors.Is(err, shared.ErrRunNotFound):
		return Run{}, fmt.Errorf("invoicing: lookup run: %w", err)
	}

	start := time.Now()
	result := s.engine.Run(req.Payroll, req.Table)
	elapsed := time.Since(start)
	run := newRun(s.id(), fingerprint, s.now(), result)

	if err := s.repo.SaveRun(ctx, run); err != nil {
		if !errors.Is(err, shared.ErrDuplicateRun) {
			return Run{}, fmt.Errorf("invoicing: save run: %w", err)
		}
		stored, findErr := s.repo.FindRunByFingerprint(ctx, fingerprint)
		if findErr != nil {
			return Run{}, fmt.Errorf("invoicing: load concurrent run: %w", findErr)
		}
		s.metrics.observeSource(SourceStored)
		s.remember(ctx, key, stored)
		return stored, nil
	}

	s.metrics.observeSource(SourceComputed)
	s.metrics.observeResult(result, elapsed.Seconds())
	s.record(ctx, run)
	s.announce(ctx, run)
	s.remember(ctx, key, run)

	s.log().Info("invoice run stored",
		slog.String("run_id", run.ID.String()),
		slog.String("pay_period", run.PayPeriod),
		slog.Int("properties", len(run.Invoices)),
		slog.Int("unmatched", len(run.Unmatched)),
		slog.Duration("duration", elapsed))
	return run, nil
}

// Get returns a stored run or shared.ErrRunNotFound.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Run, error) {
	if s == nil || s.repo == nil {
		return Run{}, errors.New("invoicing: repository not configured")
	}
	return s.repo.GetRun(ctx, id)
}

// List returns one page of stored runs, newest first.
func (s *Service) List(ctx context.Context, filter RunFilter) (RunPage, error) {
	if s == nil || s.repo == nil {
		return RunPage{}, errors.New("invoicing: repository not configured")
	}
	page := shared.NewPagination(filter.Page, filter.PerPage, 0)
	runs, total, err := s.repo.ListRuns(ctx, strings.TrimSpace(filter.PayPeriod), page.PerPage, page.Offset())
	if err != nil {
		return RunPage{}, err
	}
	return RunPage{Runs: runs, Pagination: shared.NewPagination(page.Page, page.PerPage, total)}, nil
}

// FlushCache invalidates every cached run.
func (s *Service) FlushCache(ctx context.Context) (int64, error) {
	return s.cache.Bump(ctx)
}

func (s *Service) record(ctx context.Context, run Run) {
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{
		Actor:    shared.ActorFromContext(ctx),
		Action:   "invoice_run.create",
		Entity:   "invoice_run",
		EntityID: run.ID.String(),
		Meta: map[string]any{
			"pay_period":  run.PayPeriod,
			"fingerprint": run.Fingerprint,
			"properties":  len(run.Invoices),
			"unmatched":   run.Unmatched,
			"total":       run.Totals.Total,
		},
		At: run.CreatedAt,
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.log().Warn("audit invoice run", slog.String("run_id", run.ID.String()), slog.Any("error", err))
	}
}

func (s *Service) announce(ctx context.Context, run Run) {
	if s.events == nil {
		return
	}
	event := events.RunCompleted{
		RunID:       run.ID.String(),
		PayPeriod:   run.PayPeriod,
		Fingerprint: run.Fingerprint,
		Properties:  len(run.Invoices),
		Unmatched:   run.Unmatched,
		Total:       run.Totals.Total,
		OccurredAt:  run.CreatedAt,
	}
	if err := s.events.PublishRunCompleted(ctx, event); err != nil {
		s.log().Warn("publish invoice run", slog.String("run_id", event.RunID), slog.Any("error", err))
	}
}

func (s *Service) remember(ctx context.Context, key string, run Run) {
	if key == "" {
		return
	}
	if err := s.cache.Put(ctx, key, run); err != nil {
		s.log().Warn("run cache put", slog.String("key", key), slog.Any("error", err))
	}
}

func (s *Service) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger.With(slog.String("component", "invoicing"))
	}
	return slog.Default().With(slog.String("component", "invoicing"))
}

func (s *Service) now() time.Time {
	if s != nil && s.clock != nil {
		return s.clock()
	}
	return time.Now().UTC()
}

func (s *Service) id() uuid.UUID {
	if s != nil && s.newID != nil {
		return s.newID()
	}
	return uuid.New()
}
