package allocation

// PayrollEmployee is one row of the payroll register for a pay period.
type PayrollEmployee struct {
	Name               string  `json:"name"`
	Salary             float64 `json:"salary"`
	Overtime           float64 `json:"overtime"`
	Holiday            float64 `json:"holiday"`
	EmployerRetirement float64 `json:"employer_retirement"`
}

// PayrollParseResult is the parsed payroll register.
type PayrollParseResult struct {
	PayPeriod string            `json:"pay_period"`
	Employees []PayrollEmployee `json:"employees"`
}

// AllocationEmployee is one row of the allocation sheet. Allocation values are raw
// percents as they appeared in the sheet: numbers or strings such as "25%".
type AllocationEmployee struct {
	Name        string         `json:"name"`
	Recoverable bool           `json:"recoverable"`
	Allocations map[string]any `json:"allocations"`
}

// Property is an invoice grouping key.
type Property struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Name  string `json:"name,omitempty"`
}

// AllocationTable bundles everything parsed from the allocation sheet.
type AllocationTable struct {
	Properties []Property           `json:"properties"`
	Employees  []AllocationEmployee `json:"employees"`
	PRS        PRSTables            `json:"prs"`
	Marketing  MarketingCascade     `json:"marketing"`
}

// LineCategory names one financial line of a property invoice.
type LineCategory string

const (
	SalaryRecoverable     LineCategory = "salaryRecoverable"
	SalaryNonRecoverable  LineCategory = "salaryNonRecoverable"
	Overtime              LineCategory = "overtime"
	HolidayRecoverable    LineCategory = "holidayRecoverable"
	HolidayNonRecoverable LineCategory = "holidayNonRecoverable"
	EmployerRetirement    LineCategory = "employerRetirement"
)

// LineCategories lists every category in invoice column order.
var LineCategories = []LineCategory{
	SalaryRecoverable,
	SalaryNonRecoverable,
	Overtime,
	HolidayRecoverable,
	HolidayNonRecoverable,
	EmployerRetirement,
}

// Contribution records how much one employee put into one invoice line.
type Contribution struct {
	Employee          string  `json:"employee"`
	Amount            float64 `json:"amount"`
	AllocatedFraction float64 `json:"allocated_fraction"`
	BaseAmount        float64 `json:"base_amount"`
}

// PropertyInvoice is the assembled invoice for a single property.
type PropertyInvoice struct {
	PropertyKey           string                          `json:"property_key"`
	Label                 string                          `json:"label"`
	Name                  string                          `json:"name,omitempty"`
	SalaryRecoverable     float64                         `json:"salary_recoverable"`
	SalaryNonRecoverable  float64                         `json:"salary_non_recoverable"`
	Overtime              float64                         `json:"overtime"`
	HolidayRecoverable    float64                         `json:"holiday_recoverable"`
	HolidayNonRecoverable float64                         `json:"holiday_non_recoverable"`
	EmployerRetirement    float64                         `json:"employer_retirement"`
	Total                 float64                         `json:"total"`
	Breakdown             map[LineCategory][]Contribution `json:"breakdown"`
}

// Amount returns the invoice field for the category.
func (p PropertyInvoice) Amount(c LineCategory) float64 {
	switch c {
	case SalaryRecoverable:
		return p.SalaryRecoverable
	case SalaryNonRecoverable:
		return p.SalaryNonRecoverable
	case Overtime:
		return p.Overtime
	case HolidayRecoverable:
		return p.HolidayRecoverable
	case HolidayNonRecoverable:
		return p.HolidayNonRecoverable
	case EmployerRetirement:
		return p.EmployerRetirement
	}
	return 0
}

func (p *PropertyInvoice) setAmount(c LineCategory, v float64) {
	switch c {
	case SalaryRecoverable:
		p.SalaryRecoverable = v
	case SalaryNonRecoverable:
		p.SalaryNonRecoverable = v
	case Overtime:
		p.Overtime = v
	case HolidayRecoverable:
		p.HolidayRecoverable = v
	case HolidayNonRecoverable:
		p.HolidayNonRecoverable = v
	case EmployerRetirement:
		p.EmployerRetirement = v
	}
}

// Result is the complete output of one engine run.
type Result struct {
	PayPeriod string            `json:"pay_period"`
	Invoices  []PropertyInvoice `json:"invoices"`
	Matches   []Match           `json:"matches"`
	Unmatched []string          `json:"unmatched"`
	Totals    BatchTotals       `json:"totals"`
}
