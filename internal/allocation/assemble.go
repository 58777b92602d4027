package allocation

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// RoundCents rounds half away from zero to two decimals, which is round
// half-up for the non-negative amounts payroll produces.
func RoundCents(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// assemble turns accumulated lines into invoices: one per known property, zero
// filled when idle, plus any property only the accumulator has seen.
func assemble(acc *accumulator, properties []indexedProperty) []PropertyInvoice {
	seeded := make(map[string]struct{}, len(properties))
	invoices := make([]PropertyInvoice, 0, len(properties))
	for _, p := range properties {
		if _, dup := seeded[p.index]; dup {
			continue
		}
		seeded[p.index] = struct{}{}
		invoices = append(invoices, buildInvoice(p.Property, acc.lines[p.index]))
	}
	for _, key := range sortedKeys(acc.lines) {
		if _, ok := seeded[key]; ok {
			continue
		}
		invoices = append(invoices, buildInvoice(Property{Key: key, Label: key}, acc.lines[key]))
	}
	sort.SliceStable(invoices, func(i, j int) bool {
		return sortKey(invoices[i]) < sortKey(invoices[j])
	})
	return invoices
}

func buildInvoice(p Property, lines *propertyLines) PropertyInvoice {
	inv := PropertyInvoice{
		PropertyKey: p.Key,
		Label:       p.Label,
		Name:        p.Name,
		Breakdown:   make(map[LineCategory][]Contribution),
	}
	if inv.Label == "" {
		inv.Label = p.Key
	}
	total := decimal.Zero
	for _, c := range LineCategories {
		var amount decimal.Decimal
		if lines != nil {
			amount = decimal.NewFromFloat(lines.amounts[c]).Round(2)
			for _, contrib := range lines.breakdown[c] {
				if math.Abs(contrib.Amount) < contributionThreshold {
					continue
				}
				inv.Breakdown[c] = append(inv.Breakdown[c], contrib)
			}
		}
		inv.setAmount(c, amount.InexactFloat64())
		total = total.Add(amount)
	}
	inv.Total = total.Round(2).InexactFloat64()
	return inv
}

func sortKey(inv PropertyInvoice) string {
	if inv.PropertyKey != "" {
		return inv.PropertyKey
	}
	return inv.Label
}
