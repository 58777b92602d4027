package allocation

// contributionThreshold suppresses floating point dust in the breakdown.
const contributionThreshold = 0.005

type propertyLines struct {
	amounts   map[LineCategory]float64
	breakdown map[LineCategory][]Contribution
	slots     map[LineCategory]map[string]int // employee -> breakdown position
}

// accumulator sums employee pay into per-property lines. It belongs to a
// single run and is never shared.
type accumulator struct {
	lines map[string]*propertyLines
}

func newAccumulator() *accumulator {
	return &accumulator{lines: make(map[string]*propertyLines)}
}

// add books one payroll employee against their resolved expansion. The
// recoverable flag picks the salary and holiday lines; overtime and employer
// retirement have a single line each. Rows sharing an employee name merge into
// one contribution per line; dust is dropped at assembly.
func (a *accumulator) add(emp PayrollEmployee, recoverable bool, expansion Expansion) {
	salaryLine, holidayLine := SalaryNonRecoverable, HolidayNonRecoverable
	if recoverable {
		salaryLine, holidayLine = SalaryRecoverable, HolidayRecoverable
	}
	components := []struct {
		line LineCategory
		base float64
	}{
		{salaryLine, emp.Salary},
		{Overtime, emp.Overtime},
		{holidayLine, emp.Holiday},
		{EmployerRetirement, emp.EmployerRetirement},
	}
	for _, s := range expansion {
		lines := a.property(s.PropertyKey)
		for _, c := range components {
			amount := s.Fraction * c.base
			lines.amounts[c.line] += amount
			lines.contribute(c.line, emp.Name, amount, s.Fraction, c.base)
		}
	}
}

func (l *propertyLines) contribute(line LineCategory, employee string, amount, fraction, base float64) {
	slots, ok := l.slots[line]
	if !ok {
		slots = make(map[string]int)
		l.slots[line] = slots
	}
	if i, ok := slots[employee]; ok {
		l.breakdown[line][i].Amount += amount
		l.breakdown[line][i].BaseAmount += base
		return
	}
	slots[employee] = len(l.breakdown[line])
	l.breakdown[line] = append(l.breakdown[line], Contribution{
		Employee:          employee,
		Amount:            amount,
		AllocatedFraction: fraction,
		BaseAmount:        base,
	})
}

func (a *accumulator) property(key string) *propertyLines {
	lines, ok := a.lines[key]
	if !ok {
		lines = &propertyLines{
			amounts:   make(map[LineCategory]float64, len(LineCategories)),
			breakdown: make(map[LineCategory][]Contribution),
			slots:     make(map[LineCategory]map[string]int),
		}
		a.lines[key] = lines
	}
	return lines
}
