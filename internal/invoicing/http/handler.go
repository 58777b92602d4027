package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/payalloc/internal/invoicing"
	"github.com/odyssey-erp/payalloc/internal/platform/httpx"
	"github.com/odyssey-erp/payalloc/internal/shared"
)

// RunService is the subset of the invoicing service the handler reads from.
type RunService interface {
	Get(ctx context.Context, id uuid.UUID) (invoicing.Run, error)
	List(ctx context.Context, filter invoicing.RunFilter) (invoicing.RunPage, error)
}

// Handler exposes stored invoice runs.
type Handler struct {
	logger  *slog.Logger
	service RunService
}

// NewHandler constructs the run handler.
func NewHandler(logger *slog.Logger, service RunService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger.With(slog.String("component", "invoicing.http")), service: service}
}

// MountRoutes registers run endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listRuns)
	r.Get("/{id}", h.getRun)
	r.Get("/{id}/ledger.csv", h.getLedger)
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, err := intParam(query.Get("page"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("page: %w", err))
		return
	}
	perPage, err := intParam(query.Get("per_page"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("per_page: %w", err))
		return
	}
	result, err := h.service.List(r.Context(), invoicing.RunFilter{
		PayPeriod: query.Get("pay_period"),
		Page:      page,
		PerPage:   perPage,
	})
	if err != nil {
		h.logger.Error("list runs", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.load(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}

func (h *Handler) getLedger(w http.ResponseWriter, r *http.Request) {
	run, ok := h.load(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := invoicing.WriteLedgerCSV(&buf, run); err != nil {
		h.logger.Error("render ledger csv", slog.String("run_id", run.ID.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	filename := fmt.Sprintf("ledger-%s.csv", run.ID)
	if period := strings.TrimSpace(run.PayPeriod); period != "" {
		filename = fmt.Sprintf("ledger-%s-%s.csv", sanitizeFilename(period), run.ID)
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("write ledger csv", slog.Any("error", err))
	}
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (invoicing.Run, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("run id %q: %w", chi.URLParam(r, "id"), shared.ErrInvalidInput))
		return invoicing.Run{}, false
	}
	run, err := h.service.Get(r.Context(), id)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			h.logger.Error("load run", slog.String("run_id", id.String()), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return invoicing.Run{}, false
	}
	return run, true
}

func intParam(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%q is not a non-negative integer: %w", raw, shared.ErrInvalidInput)
	}
	return v, nil
}

func sanitizeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, s)
}
