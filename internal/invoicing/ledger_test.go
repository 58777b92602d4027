package invoicing

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/payalloc/internal/allocation"
)

func TestWriteLedgerCSV(t *testing.T) {
	id := uuid.MustParse("6f1d0c4e-2f6b-4a39-9a43-1b2c3d4e5f60")
	svc := NewService(ServiceConfig{Clock: func() time.Time { return fixedNow }, NewID: func() uuid.UUID { return id }})
	run, err := svc.Preview(sampleRequest())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteLedgerCSV(&buf, run))
	out := buf.String()
	lines := strings.Split(strings.TrimSuffix(out, "\r\n"), "\r\n")

	require.Equal(t, "# Report: Payroll Allocation Ledger", lines[0])
	require.Equal(t, "# Pay Period: 2024-03-31", lines[1])
	require.Equal(t, "# Run ID: "+id.String(), lines[2])
	require.Equal(t, "# Generated At: 2024-04-02T09:30:00Z", lines[4])
	require.Equal(t, "# Unmatched Employees: Ghost Writer", lines[5])
	require.Equal(t, "Property Key,Label,Name,Salary Recoverable,Salary Non-Recoverable,Overtime,Holiday Recoverable,Holiday Non-Recoverable,Employer Retirement,Total", lines[6])
	require.Equal(t, "PROP1,P1,,0.00,500.00,25.00,0.00,0.00,0.00,525.00", lines[7])
	require.Equal(t, "PROP2,P2,,0.00,500.00,25.00,0.00,0.00,0.00,525.00", lines[8])
	require.Equal(t, "Totals,,,0.00,1000.00,50.00,0.00,0.00,0.00,1050.00", lines[9])
	require.Equal(t, "", lines[10])
	require.Equal(t, "Property Key,Category,Employee,Allocated Fraction,Base Amount,Amount", lines[11])
	require.Equal(t, "PROP1,Salary Non-Recoverable,Pat Quinn,0.500000,1000.00,500.00", lines[12])
	require.Equal(t, "PROP1,Overtime,Pat Quinn,0.500000,50.00,25.00", lines[13])
	require.Len(t, lines, 16)
}

func TestWriteLedgerCSVEmptyRun(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLedgerCSV(&buf, Run{Totals: allocation.Summarize(nil)}))
	require.Contains(t, buf.String(), "# Pay Period: -\r\n")
	require.Contains(t, buf.String(), "# Unmatched Employees: none\r\n")
	require.Contains(t, buf.String(), "Totals,,,0.00,0.00,0.00,0.00,0.00,0.00,0.00\r\n")
}
