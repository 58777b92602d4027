package intake

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/payalloc/internal/allocation"
	"github.com/odyssey-erp/payalloc/internal/shared"
)

func TestDecodePayrollCSV(t *testing.T) {
	in := "\ufeffName, Salary ,Overtime,Holiday,Employer Retirement\r\n" +
		"\"Smith, John\",\"$2,500.00\",12.34,,99.99\r\n" +
		",,,,\r\n" +
		"Ann Lee,3333.33,0,77.77,-\r\n"

	got, err := DecodePayrollCSV(strings.NewReader(in), " 2024-04-01 ")
	require.NoError(t, err)
	require.Equal(t, "2024-04-01", got.PayPeriod)
	require.Equal(t, []allocation.PayrollEmployee{
		{Name: "Smith, John", Salary: 2500, Overtime: 12.34, Holiday: 0, EmployerRetirement: 99.99},
		{Name: "Ann Lee", Salary: 3333.33, Overtime: 0, Holiday: 77.77, EmployerRetirement: 0},
	}, got.Employees)
}

func TestDecodePayrollCSVRejectsBadRows(t *testing.T) {
	cases := map[string]string{
		"missing name":    "name,salary\n,100\n",
		"negative amount": "name,salary\nAnn,-5\n",
		"garbage amount":  "name,salary\nAnn,lots\n",
		"no name column":  "employee,salary\nAnn,5\n",
		"empty":           "",
	}
	for label, in := range cases {
		_, err := DecodePayrollCSV(strings.NewReader(in), "")
		require.Errorf(t, err, label)
		require.Truef(t, errors.Is(err, shared.ErrInvalidInput), "%s: %v", label, err)
	}
}

func TestDecodePayrollCSVReportsRowNumber(t *testing.T) {
	_, err := DecodePayrollCSV(strings.NewReader("name,salary\nAnn,1\nBen,-1\n"), "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "row 2")
	require.Contains(t, err.Error(), "salary must not be negative")
}

func TestParseMoney(t *testing.T) {
	for in, want := range map[string]float64{"$1,250.50": 1250.5, " 42 ": 42, "": 0, "-": 0, "0.10": 0.1} {
		got, err := ParseMoney(in)
		require.NoError(t, err)
		require.Equal(t, want, got, in)
	}
	_, err := ParseMoney("12abc")
	require.Error(t, err)
}

const sampleTable = `
properties:
  - {key: PROP1, label: P1, name: Harbor View}
  - {key: PROP2, label: P2}
employees:
  - name: Quinn, Pat
    recoverable: "N"
    allocations: {PROP1: 0.5, marketing: "50%"}
  - name: Ann Lee
    recoverable: yes
    allocations:
      EASTCO: 100
prs:
  recoverable:
    EASTCO: {PROP1: "1", PROP2: 3}
  nonRecoverable:
    GROUPX: {PROP2: "$100"}
marketing:
  GROUPX: 1
`

func TestDecodeAllocationTable(t *testing.T) {
	table, err := DecodeAllocationTable(strings.NewReader(sampleTable))
	require.NoError(t, err)

	require.Len(t, table.Properties, 2)
	require.Equal(t, allocation.Property{Key: "PROP1", Label: "P1", Name: "Harbor View"}, table.Properties[0])

	require.Len(t, table.Employees, 2)
	require.Equal(t, "Quinn, Pat", table.Employees[0].Name)
	require.False(t, table.Employees[0].Recoverable)
	require.Equal(t, "50%", table.Employees[0].Allocations["marketing"])
	require.True(t, table.Employees[1].Recoverable)

	require.Equal(t, allocation.Split{"PROP1": 1, "PROP2": 3}, table.PRS.Recoverable["EASTCO"])
	require.Equal(t, allocation.Split{"PROP2": 100}, table.PRS.NonRecoverable["GROUPX"])
	require.Equal(t, allocation.MarketingCascade{"GROUPX": 1}, table.Marketing)
}

func TestDecodeAllocationTableAcceptsJSON(t *testing.T) {
	in := `{"properties":[{"key":"A"}],"employees":[{"name":"Ann","recoverable":true,"allocations":{"A":100}}]}`
	table, err := DecodeAllocationTable(strings.NewReader(in))
	require.NoError(t, err)
	require.Equal(t, "A", table.Properties[0].Key)
	require.True(t, table.Employees[0].Recoverable)

	res := allocation.NewEngine(nil).Run(allocation.PayrollParseResult{Employees: []allocation.PayrollEmployee{{Name: "Ann", Salary: 10}}}, table)
	require.Equal(t, 10.0, res.Invoices[0].SalaryRecoverable)
}

func TestDecodeAllocationTableLabelOnlyProperty(t *testing.T) {
	in := "properties:\n  - {key: PROP1}\n  - {label: ' HQ '}\n"
	table, err := DecodeAllocationTable(strings.NewReader(in))
	require.NoError(t, err)
	require.Equal(t, allocation.Property{Label: "HQ"}, table.Properties[1])

	res := allocation.NewEngine(nil).Run(allocation.PayrollParseResult{}, table)
	require.Len(t, res.Invoices, 2)
	require.Equal(t, "HQ", res.Invoices[0].Label)
	require.Empty(t, res.Invoices[0].PropertyKey)
}

func TestDecodeAllocationTableRejects(t *testing.T) {
	cases := map[string]string{
		"duplicate key":   "properties:\n  - {key: A}\n  - {key: a}\n",
		"missing key":     "properties:\n  - {name: Harbor View}\n",
		"label collides":  "properties:\n  - {key: HQ}\n  - {label: hq}\n",
		"nameless":        "employees:\n  - {recoverable: true}\n",
		"bad flag":        "employees:\n  - {name: Ann, recoverable: maybe}\n",
		"unknown section": "propertys: []\n",
		"empty document":  "",
		"malformed":       "properties: [",
	}
	for label, in := range cases {
		_, err := DecodeAllocationTable(strings.NewReader(in))
		require.Errorf(t, err, label)
		require.Truef(t, errors.Is(err, shared.ErrInvalidInput), "%s: %v", label, err)
	}
}
