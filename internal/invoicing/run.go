// Package invoicing runs the allocation engine as a service: runs are
// fingerprinted, de-duplicated, cached, persisted, audited and announced.
package invoicing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/payalloc/internal/allocation"
	"github.com/odyssey-erp/payalloc/internal/shared"
)

// Request carries the two engine inputs.
type Request struct {
	Payroll allocation.PayrollParseResult `json:"payroll"`
	Table   allocation.AllocationTable    `json:"table"`
}

// Run is a stored engine execution.
type Run struct {
	ID          uuid.UUID                    `json:"id"`
	PayPeriod   string                       `json:"pay_period"`
	Fingerprint string                       `json:"fingerprint"`
	CreatedAt   time.Time                    `json:"created_at"`
	Invoices    []allocation.PropertyInvoice `json:"invoices"`
	Matches     []allocation.Match           `json:"matches"`
	Unmatched   []string                     `json:"unmatched"`
	Totals      allocation.BatchTotals       `json:"totals"`
}

// Result returns the engine view of the run.
func (r Run) Result() allocation.Result {
	return allocation.Result{
		PayPeriod: r.PayPeriod,
		Invoices:  r.Invoices,
		Matches:   r.Matches,
		Unmatched: r.Unmatched,
		Totals:    r.Totals,
	}
}

// Fingerprint hashes the canonical JSON form of the request. Map keys are
// emitted sorted by encoding/json, so equal inputs hash equally.
func Fingerprint(req Request) (string, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("invoicing: fingerprint: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func newRun(id uuid.UUID, fingerprint string, at time.Time, result allocation.Result) Run {
	return Run{
		ID:          id,
		PayPeriod:   result.PayPeriod,
		Fingerprint: fingerprint,
		CreatedAt:   at.UTC(),
		Invoices:    result.Invoices,
		Matches:     result.Matches,
		Unmatched:   result.Unmatched,
		Totals:      result.Totals,
	}
}

// RunSummary is the listing view of a stored run.
type RunSummary struct {
	ID          uuid.UUID `json:"id"`
	PayPeriod   string    `json:"pay_period"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
	Properties  int       `json:"properties"`
	Unmatched   int       `json:"unmatched"`
	Total       float64   `json:"total"`
}

// Summary returns the listing view of r.
func (r Run) Summary() RunSummary {
	return RunSummary{
		ID:          r.ID,
		PayPeriod:   r.PayPeriod,
		Fingerprint: r.Fingerprint,
		CreatedAt:   r.CreatedAt,
		Properties:  len(r.Invoices),
		Unmatched:   len(r.Unmatched),
		Total:       r.Totals.Total,
	}
}

// RunFilter narrows a run listing. Zero values list every run.
type RunFilter struct {
	PayPeriod string
	Page      int
	PerPage   int
}

// RunPage is one page of run summaries, newest first.
type RunPage struct {
	Runs       []RunSummary      `json:"runs"`
	Pagination shared.Pagination `json:"pagination"`
}
