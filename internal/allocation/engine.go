package allocation

import "log/slog"

// Engine turns a payroll register and an allocation table into per-property
// invoices. It performs no I/O and keeps no state between runs.
type Engine struct {
	logger *slog.Logger
}

// NewEngine constructs an engine. A nil logger falls back to slog.Default.
func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{logger: logger}
}

// Run resolves every payroll employee to an allocation record, expands the
// record into property fractions and books the pay components against them.
// Unmatched employees and empty allocations are reported in the result and
// never fail the run.
func (e *Engine) Run(payroll PayrollParseResult, table AllocationTable) Result {
	expander := NewExpander(table.Properties, table.PRS, table.Marketing)
	resolver := NewResolver(table.Employees)
	acc := newAccumulator()

	result := Result{
		PayPeriod: payroll.PayPeriod,
		Matches:   make([]Match, 0, len(payroll.Employees)),
		Unmatched: make([]string, 0),
	}
	for _, emp := range payroll.Employees {
		alloc, match, ok := resolver.Resolve(emp.Name)
		result.Matches = append(result.Matches, match)
		if !ok {
			result.Unmatched = append(result.Unmatched, emp.Name)
			e.log().Info("payroll employee has no allocation record", slog.String("employee", emp.Name))
			continue
		}
		if match.Method == MatchTieBreak {
			e.log().Debug("resolved by tie-break",
				slog.String("employee", emp.Name),
				slog.String("allocation", match.AllocationName),
				slog.Int("candidates", match.Candidates))
		}
		expansion := expander.Expand(alloc)
		if len(expansion) == 0 {
			e.log().Debug("allocation resolves to no property", slog.String("employee", emp.Name))
			continue
		}
		acc.add(emp, alloc.Recoverable, expansion)
	}

	result.Invoices = assemble(acc, expander.indexed())
	result.Totals = Summarize(result.Invoices)
	e.log().Debug("allocation run complete",
		slog.String("pay_period", payroll.PayPeriod),
		slog.Int("employees", len(payroll.Employees)),
		slog.Int("unmatched", len(result.Unmatched)),
		slog.Int("properties", len(result.Invoices)))
	return result
}

func (e *Engine) log() *slog.Logger {
	if e != nil && e.logger != nil {
		return e.logger.With(slog.String("component", "allocation_engine"))
	}
	return slog.Default().With(slog.String("component", "allocation_engine"))
}
