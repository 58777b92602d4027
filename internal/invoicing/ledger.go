package invoicing

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/payalloc/internal/allocation"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

var categoryHeaders = map[allocation.LineCategory]string{
	allocation.SalaryRecoverable:     "Salary Recoverable",
	allocation.SalaryNonRecoverable:  "Salary Non-Recoverable",
	allocation.Overtime:              "Overtime",
	allocation.HolidayRecoverable:    "Holiday Recoverable",
	allocation.HolidayNonRecoverable: "Holiday Non-Recoverable",
	allocation.EmployerRetirement:    "Employer Retirement",
}

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	flushEvery   int
	pendingLines int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer, flushEvery: csvFlushEvery}
}

// writeComment emits a raw "# ..." metadata line. It must only be called
// before the first row or right after a Flush.
func (s *csvStreamer) writeComment(line string) error {
	line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
	_, err := s.buf.WriteString(line + "\r\n")
	return err
}

func (s *csvStreamer) writeRow(row []string) error {
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.flushEvery > 0 && s.pendingLines >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

func (s *csvStreamer) Flush() error {
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pendingLines = 0
	return nil
}

// WriteLedgerCSV renders a run as an accounting ledger: metadata comments,
// one summary row per property invoice, then one provenance row per
// employee contribution.
func WriteLedgerCSV(w io.Writer, run Run) error {
	streamer := newCSVStreamer(w)
	if err := writeLedgerMetadata(streamer, run); err != nil {
		return err
	}

	header := []string{"Property Key", "Label", "Name"}
	for _, c := range allocation.LineCategories {
		header = append(header, categoryHeaders[c])
	}
	header = append(header, "Total")
	if err := streamer.writeRow(header); err != nil {
		return err
	}
	for _, inv := range run.Invoices {
		row := []string{inv.PropertyKey, inv.Label, inv.Name}
		for _, c := range allocation.LineCategories {
			row = append(row, formatMoney(inv.Amount(c)))
		}
		row = append(row, formatMoney(inv.Total))
		if err := streamer.writeRow(row); err != nil {
			return err
		}
	}
	totals := []string{"Totals", "", ""}
	for _, c := range allocation.LineCategories {
		totals = append(totals, formatMoney(run.Totals.ByCategory[c]))
	}
	totals = append(totals, formatMoney(run.Totals.Total))
	if err := streamer.writeRow(totals); err != nil {
		return err
	}

	if err := streamer.writeRow([]string{""}); err != nil {
		return err
	}
	if err := streamer.writeRow([]string{"Property Key", "Category", "Employee", "Allocated Fraction", "Base Amount", "Amount"}); err != nil {
		return err
	}
	for _, inv := range run.Invoices {
		for _, c := range allocation.LineCategories {
			for _, contrib := range inv.Breakdown[c] {
				if err := streamer.writeRow([]string{
					inv.PropertyKey,
					categoryHeaders[c],
					contrib.Employee,
					strconv.FormatFloat(contrib.AllocatedFraction, 'f', 6, 64),
					formatMoney(contrib.BaseAmount),
					formatMoney(contrib.Amount),
				}); err != nil {
					return err
				}
			}
		}
	}
	return streamer.Flush()
}

func writeLedgerMetadata(streamer *csvStreamer, run Run) error {
	unmatched := "none"
	if len(run.Unmatched) > 0 {
		unmatched = strings.Join(run.Unmatched, "; ")
	}
	lines := []string{
		"# Report: Payroll Allocation Ledger",
		fmt.Sprintf("# Pay Period: %s", orDash(run.PayPeriod)),
		fmt.Sprintf("# Run ID: %s", run.ID),
		fmt.Sprintf("# Fingerprint: %s", orDash(run.Fingerprint)),
		fmt.Sprintf("# Generated At: %s", run.CreatedAt.UTC().Format(time.RFC3339)),
		fmt.Sprintf("# Unmatched Employees: %s", unmatched),
	}
	for _, line := range lines {
		if err := streamer.writeComment(line); err != nil {
			return err
		}
	}
	return nil
}

func formatMoney(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
