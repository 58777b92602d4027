package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/odyssey-erp/payalloc/internal/allocation"
	"github.com/odyssey-erp/payalloc/internal/intake"
	"github.com/odyssey-erp/payalloc/internal/invoicing"
)

// ExitUnmatched is returned by strict runs that leave payroll employees
// without an allocation record.
const ExitUnmatched = 10

// RunOptions defines the flags of the run command.
type RunOptions struct {
	PayrollPath    string
	AllocationPath string
	Period         string
	LedgerPath     string
	JSONOutput     bool
	Strict         bool
	Stdout         io.Writer
	Stderr         io.Writer
	Logger         *slog.Logger
}

// RunCommand computes invoices locally without touching Postgres, Redis or
// Kafka, and prints a per-property summary.
func RunCommand(opts RunOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	req, err := LoadRequest(opts.PayrollPath, opts.AllocationPath, opts.Period)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "run: %v\n", err)
		return 1
	}
	run, err := invoicing.NewService(invoicing.ServiceConfig{Logger: opts.Logger}).Preview(req)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "run: %v\n", err)
		return 1
	}
	if opts.LedgerPath != "" {
		if err := writeLedgerFile(opts.LedgerPath, run); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "run: ledger: %v\n", err)
			return 1
		}
	}
	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(run); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "run: encode json: %v\n", err)
			return 1
		}
	} else {
		renderRunHuman(opts.Stdout, run)
	}
	if opts.Strict && len(run.Unmatched) > 0 {
		return ExitUnmatched
	}
	return 0
}

// LoadRequest decodes the payroll register and allocation table files.
func LoadRequest(payrollPath, allocationPath, period string) (invoicing.Request, error) {
	if strings.TrimSpace(payrollPath) == "" || strings.TrimSpace(allocationPath) == "" {
		return invoicing.Request{}, fmt.Errorf("-payroll and -allocation are required")
	}
	payrollFile, err := os.Open(payrollPath)
	if err != nil {
		return invoicing.Request{}, err
	}
	defer payrollFile.Close()
	payroll, err := intake.DecodePayrollCSV(payrollFile, period)
	if err != nil {
		return invoicing.Request{}, err
	}

	tableFile, err := os.Open(allocationPath)
	if err != nil {
		return invoicing.Request{}, err
	}
	defer tableFile.Close()
	table, err := intake.DecodeAllocationTable(tableFile)
	if err != nil {
		return invoicing.Request{}, err
	}
	return invoicing.Request{Payroll: payroll, Table: table}, nil
}

func writeLedgerFile(path string, run invoicing.Run) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := invoicing.WriteLedgerCSV(f, run); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func renderRunHuman(w io.Writer, run invoicing.Run) {
	period := run.PayPeriod
	if period == "" {
		period = "-"
	}
	_, _ = fmt.Fprintf(w, "Pay period: %s\n", period)
	_, _ = fmt.Fprintf(w, "Fingerprint: %s\n\n", run.Fingerprint)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	_, _ = fmt.Fprintln(tw, "Property\tSal R\tSal NR\tOT\tHol R\tHol NR\tER\tTotal\t")
	for _, inv := range run.Invoices {
		_, _ = fmt.Fprintf(tw, "%s\t", inv.PropertyKey)
		for _, c := range allocation.LineCategories {
			_, _ = fmt.Fprintf(tw, "%.2f\t", inv.Amount(c))
		}
		_, _ = fmt.Fprintf(tw, "%.2f\t\n", inv.Total)
	}
	_, _ = fmt.Fprint(tw, "Totals\t")
	for _, c := range allocation.LineCategories {
		_, _ = fmt.Fprintf(tw, "%.2f\t", run.Totals.ByCategory[c])
	}
	_, _ = fmt.Fprintf(tw, "%.2f\t\n", run.Totals.Total)
	_ = tw.Flush()

	if len(run.Unmatched) == 0 {
		_, _ = fmt.Fprintln(w, "\nAll payroll employees matched.")
		return
	}
	_, _ = fmt.Fprintf(w, "\nUnmatched employees (%d):\n", len(run.Unmatched))
	for _, name := range run.Unmatched {
		_, _ = fmt.Fprintf(w, "  - %s\n", name)
	}
}
