package allocation

import "github.com/shopspring/decimal"

// BatchTotals is the whole-batch view of a set of invoices.
type BatchTotals struct {
	Properties int                      `json:"properties"`
	ByCategory map[LineCategory]float64 `json:"by_category"`
	Total      float64                  `json:"total"`
}

// Summarize adds up already rounded invoice fields, so the batch total always
// equals the sum of the invoice totals.
func Summarize(invoices []PropertyInvoice) BatchTotals {
	sums := make(map[LineCategory]decimal.Decimal, len(LineCategories))
	grand := decimal.Zero
	for _, inv := range invoices {
		for _, c := range LineCategories {
			sums[c] = sums[c].Add(decimal.NewFromFloat(inv.Amount(c)))
		}
		grand = grand.Add(decimal.NewFromFloat(inv.Total))
	}
	out := BatchTotals{
		Properties: len(invoices),
		ByCategory: make(map[LineCategory]float64, len(LineCategories)),
		Total:      grand.Round(2).InexactFloat64(),
	}
	for _, c := range LineCategories {
		out.ByCategory[c] = sums[c].Round(2).InexactFloat64()
	}
	return out
}
