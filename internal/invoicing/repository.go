package invoicing

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/payalloc/internal/allocation"
	"github.com/odyssey-erp/payalloc/internal/platform/db"
	"github.com/odyssey-erp/payalloc/internal/shared"
)

//go:embed schema.sql
var schemaSQL string

const fingerprintConstraint = "invoice_runs_fingerprint_key"

// PGRepository stores runs in Postgres.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Postgres-backed repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// EnsureSchema creates the run tables when missing.
func (r *PGRepository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return errors.New("invoicing repo not initialised")
	}
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("invoicing: ensure schema: %w", err)
	}
	return nil
}

// SaveRun inserts the run and all of its invoices in one transaction.
func (r *PGRepository) SaveRun(ctx context.Context, run Run) error {
	if r == nil || r.pool == nil {
		return errors.New("invoicing repo not initialised")
	}
	matches, err := json.Marshal(run.Matches)
	if err != nil {
		return err
	}
	unmatched, err := json.Marshal(nonNil(run.Unmatched))
	if err != nil {
		return err
	}
	totals, err := json.Marshal(run.Totals)
	if err != nil {
		return err
	}

	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		const insertRun = `INSERT INTO invoice_runs (id, pay_period, fingerprint, created_at, matches, unmatched, totals)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
		if _, err := tx.Exec(ctx, insertRun, run.ID.String(), run.PayPeriod, run.Fingerprint, run.CreatedAt, matches, unmatched, totals); err != nil {
			return err
		}
		const insertInvoice = `INSERT INTO property_invoices (run_id, position, property_key, label, name,
salary_recoverable, salary_non_recoverable, overtime, holiday_recoverable, holiday_non_recoverable,
employer_retirement, total, breakdown)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
		batch := &pgx.Batch{}
		for i, inv := range run.Invoices {
			breakdown, err := json.Marshal(inv.Breakdown)
			if err != nil {
				return err
			}
			batch.Queue(insertInvoice, run.ID.String(), i, inv.PropertyKey, inv.Label, inv.Name,
				inv.SalaryRecoverable, inv.SalaryNonRecoverable, inv.Overtime, inv.HolidayRecoverable,
				inv.HolidayNonRecoverable, inv.EmployerRetirement, inv.Total, breakdown)
		}
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		if shared.IsUniqueViolation(err, fingerprintConstraint) || shared.IsUniqueViolation(err, "invoice_runs_pkey") {
			return shared.ErrDuplicateRun
		}
		return fmt.Errorf("invoicing: save run: %w", err)
	}
	return nil
}

// GetRun loads a run and its invoices.
func (r *PGRepository) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	if r == nil || r.pool == nil {
		return Run{}, errors.New("invoicing repo not initialised")
	}
	const query = `SELECT id::text, pay_period, fingerprint, created_at, matches, unmatched, totals
FROM invoice_runs WHERE id = $1`
	run, err := scanRun(r.pool.QueryRow(ctx, query, id.String()))
	if err != nil {
		return Run{}, err
	}
	if run.Invoices, err = r.invoices(ctx, run.ID); err != nil {
		return Run{}, err
	}
	return run, nil
}

// FindRunByFingerprint loads the run stored for identical inputs.
func (r *PGRepository) FindRunByFingerprint(ctx context.Context, fingerprint string) (Run, error) {
	if r == nil || r.pool == nil {
		return Run{}, errors.New("invoicing repo not initialised")
	}
	const query = `SELECT id::text, pay_period, fingerprint, created_at, matches, unmatched, totals
FROM invoice_runs WHERE fingerprint = $1`
	run, err := scanRun(r.pool.QueryRow(ctx, query, fingerprint))
	if err != nil {
		return Run{}, err
	}
	if run.Invoices, err = r.invoices(ctx, run.ID); err != nil {
		return Run{}, err
	}
	return run, nil
}

// ListRuns returns one page of run summaries, newest first, and the number
// of runs matching the filter.
func (r *PGRepository) ListRuns(ctx context.Context, payPeriod string, limit, offset int) ([]RunSummary, int, error) {
	if r == nil || r.pool == nil {
		return nil, 0, errors.New("invoicing repo not initialised")
	}
	const query = `SELECT id::text, pay_period, fingerprint, created_at, jsonb_array_length(unmatched), totals,
COUNT(*) OVER ()
FROM invoice_runs
WHERE ($1 = '' OR pay_period = $1)
ORDER BY created_at DESC, id
LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, payPeriod, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("invoicing: list runs: %w", err)
	}
	defer rows.Close()
	summaries := make([]RunSummary, 0, limit)
	total := 0
	for rows.Next() {
		var (
			summary RunSummary
			id      string
			totals  []byte
			batch   allocation.BatchTotals
		)
		if err := rows.Scan(&id, &summary.PayPeriod, &summary.Fingerprint, &summary.CreatedAt, &summary.Unmatched, &totals, &total); err != nil {
			return nil, 0, err
		}
		if summary.ID, err = uuid.Parse(id); err != nil {
			return nil, 0, fmt.Errorf("invoicing: run id %q: %w", id, err)
		}
		if err := json.Unmarshal(totals, &batch); err != nil {
			return nil, 0, fmt.Errorf("invoicing: decode totals: %w", err)
		}
		summary.CreatedAt = summary.CreatedAt.UTC()
		summary.Properties = batch.Properties
		summary.Total = batch.Total
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(summaries) == 0 && offset > 0 {
		if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM invoice_runs WHERE ($1 = '' OR pay_period = $1)`, payPeriod).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("invoicing: count runs: %w", err)
		}
	}
	return summaries, total, nil
}

func (r *PGRepository) invoices(ctx context.Context, runID uuid.UUID) ([]allocation.PropertyInvoice, error) {
	const query = `SELECT property_key, label, name, salary_recoverable, salary_non_recoverable, overtime,
holiday_recoverable, holiday_non_recoverable, employer_retirement, total, breakdown
FROM property_invoices WHERE run_id = $1 ORDER BY position`
	rows, err := r.pool.Query(ctx, query, runID.String())
	if err != nil {
		return nil, fmt.Errorf("invoicing: list invoices: %w", err)
	}
	defer rows.Close()
	invoices := make([]allocation.PropertyInvoice, 0)
	for rows.Next() {
		var inv allocation.PropertyInvoice
		var breakdown []byte
		if err := rows.Scan(&inv.PropertyKey, &inv.Label, &inv.Name, &inv.SalaryRecoverable, &inv.SalaryNonRecoverable,
			&inv.Overtime, &inv.HolidayRecoverable, &inv.HolidayNonRecoverable, &inv.EmployerRetirement,
			&inv.Total, &breakdown); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(breakdown, &inv.Breakdown); err != nil {
			return nil, fmt.Errorf("invoicing: decode breakdown %s: %w", inv.PropertyKey, err)
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func scanRun(row pgx.Row) (Run, error) {
	var (
		run                        Run
		id                         string
		createdAt                  time.Time
		matches, unmatched, totals []byte
	)
	if err := row.Scan(&id, &run.PayPeriod, &run.Fingerprint, &createdAt, &matches, &unmatched, &totals); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Run{}, shared.ErrRunNotFound
		}
		return Run{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Run{}, fmt.Errorf("invoicing: run id %q: %w", id, err)
	}
	run.ID = parsed
	run.CreatedAt = createdAt.UTC()
	if err := json.Unmarshal(matches, &run.Matches); err != nil {
		return Run{}, fmt.Errorf("invoicing: decode matches: %w", err)
	}
	if err := json.Unmarshal(unmatched, &run.Unmatched); err != nil {
		return Run{}, fmt.Errorf("invoicing: decode unmatched: %w", err)
	}
	if err := json.Unmarshal(totals, &run.Totals); err != nil {
		return Run{}, fmt.Errorf("invoicing: decode totals: %w", err)
	}
	return run, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
