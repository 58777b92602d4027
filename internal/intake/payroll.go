// Package intake decodes the structured payroll register and allocation
// table documents consumed by the allocation engine.
package intake

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/payalloc/internal/allocation"
	"github.com/odyssey-erp/payalloc/internal/shared"
)

var validate = validator.New()

// payrollRow mirrors one register line before money parsing.
type payrollRow struct {
	Name               string `csv:"name"`
	Salary             string `csv:"salary"`
	Overtime           string `csv:"overtime"`
	Holiday            string `csv:"holiday"`
	EmployerRetirement string `csv:"employer_retirement"`
}

type payrollEntry struct {
	Name               string  `validate:"required"`
	Salary             float64 `validate:"gte=0"`
	Overtime           float64 `validate:"gte=0"`
	Holiday            float64 `validate:"gte=0"`
	EmployerRetirement float64 `validate:"gte=0"`
}

// DecodePayrollCSV reads a payroll register with the columns
// name, salary, overtime, holiday and employer_retirement. Header names are
// matched case-insensitively; blank money cells count as zero and fully
// blank rows are skipped.
func DecodePayrollCSV(r io.Reader, payPeriod string) (allocation.PayrollParseResult, error) {
	reader := newHeaderReader(r)
	var rows []*payrollRow
	if err := gocsv.UnmarshalCSV(reader, &rows); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return allocation.PayrollParseResult{}, fmt.Errorf("intake: payroll csv is empty: %w", shared.ErrInvalidInput)
		}
		return allocation.PayrollParseResult{}, fmt.Errorf("intake: read payroll csv: %v: %w", err, shared.ErrInvalidInput)
	}
	if !reader.hasColumn("name") {
		return allocation.PayrollParseResult{}, fmt.Errorf("intake: payroll csv has no name column: %w", shared.ErrInvalidInput)
	}

	result := allocation.PayrollParseResult{
		PayPeriod: strings.TrimSpace(payPeriod),
		Employees: make([]allocation.PayrollEmployee, 0, len(rows)),
	}
	for i, row := range rows {
		if row == nil || row.blank() {
			continue
		}
		entry, err := row.entry()
		if err != nil {
			return allocation.PayrollParseResult{}, fmt.Errorf("intake: payroll row %d: %v: %w", i+1, err, shared.ErrInvalidInput)
		}
		if err := validate.Struct(entry); err != nil {
			return allocation.PayrollParseResult{}, fmt.Errorf("intake: payroll row %d: %s: %w", i+1, describeValidation(err), shared.ErrInvalidInput)
		}
		result.Employees = append(result.Employees, allocation.PayrollEmployee(entry))
	}
	return result, nil
}

func (r *payrollRow) blank() bool {
	for _, cell := range []string{r.Name, r.Salary, r.Overtime, r.Holiday, r.EmployerRetirement} {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func (r *payrollRow) entry() (payrollEntry, error) {
	entry := payrollEntry{Name: strings.TrimSpace(r.Name)}
	fields := []struct {
		column string
		raw    string
		dest   *float64
	}{
		{"salary", r.Salary, &entry.Salary},
		{"overtime", r.Overtime, &entry.Overtime},
		{"holiday", r.Holiday, &entry.Holiday},
		{"employer_retirement", r.EmployerRetirement, &entry.EmployerRetirement},
	}
	for _, f := range fields {
		v, err := ParseMoney(f.raw)
		if err != nil {
			return payrollEntry{}, fmt.Errorf("%s: %w", f.column, err)
		}
		*f.dest = v
	}
	return entry, nil
}

// ParseMoney reads a currency cell such as "$1,250.50". Blank cells are zero.
func ParseMoney(raw string) (float64, error) {
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(strings.TrimSpace(raw))
	if cleaned == "" || cleaned == "-" {
		return 0, nil
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	return d.InexactFloat64(), nil
}

func describeValidation(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", strings.ToLower(fe.Field())))
		case "required_without":
			msgs = append(msgs, fmt.Sprintf("%s is required without %s", strings.ToLower(fe.Field()), strings.ToLower(fe.Param())))
		case "gte":
			msgs = append(msgs, fmt.Sprintf("%s must not be negative", strings.ToLower(fe.Field())))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// headerReader normalizes the first record so "Employer Retirement" and
// "employer_retirement" bind to the same field.
type headerReader struct {
	csv    *csv.Reader
	header []string
}

func newHeaderReader(r io.Reader) *headerReader {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return &headerReader{csv: reader}
}

func (h *headerReader) Read() ([]string, error) {
	record, err := h.csv.Read()
	if err != nil {
		return nil, err
	}
	if h.header == nil {
		for i, cell := range record {
			record[i] = normalizeHeader(cell)
		}
		h.header = record
	}
	return record, nil
}

func (h *headerReader) ReadAll() ([][]string, error) {
	var records [][]string
	for {
		record, err := h.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
}

func (h *headerReader) hasColumn(name string) bool {
	for _, col := range h.header {
		if col == name {
			return true
		}
	}
	return false
}

func normalizeHeader(cell string) string {
	cell = strings.TrimPrefix(cell, "\ufeff")
	cell = strings.ToLower(strings.TrimSpace(cell))
	return strings.Join(strings.FieldsFunc(cell, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	}), "_")
}
