package allocation

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// percentScaleThreshold separates fractional encodings (0.25) from whole-number
// percents (25). Values in (1, 1.5] stay fractional; see DESIGN.md.
const percentScaleThreshold = 1.5

// NormalizePercent converts a raw sheet value into a fraction of pay. Numbers
// above the scale threshold are read as whole percents. Strings may carry a
// percent sign, currency symbol, thousands separators or surrounding spaces; an
// explicit percent sign always means a whole percent and bypasses the scale
// threshold, so "1%" is 0.01 while a bare 1 or "1" stays 1.0. Anything
// unparseable, negative or non-finite yields 0.
func NormalizePercent(v any) float64 {
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		return scalePercent(n)
	case float32:
		return scalePercent(float64(n))
	case int:
		return scalePercent(float64(n))
	case int64:
		return scalePercent(float64(n))
	case int32:
		return scalePercent(float64(n))
	case uint:
		return scalePercent(float64(n))
	case uint64:
		return scalePercent(float64(n))
	case json.Number:
		return normalizePercentString(n.String())
	case decimal.Decimal:
		return scalePercent(n.InexactFloat64())
	case string:
		return normalizePercentString(n)
	}
	return 0
}

func normalizePercentString(raw string) float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0
	}
	explicit := strings.HasSuffix(s, "%")
	s = strings.NewReplacer("%", "", "$", "", ",", "", " ", "").Replace(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	f := d.InexactFloat64()
	if explicit {
		if !validFraction(f) {
			return 0
		}
		return f / 100
	}
	return scalePercent(f)
}

func scalePercent(f float64) float64 {
	if !validFraction(f) {
		return 0
	}
	if f > percentScaleThreshold {
		return f / 100
	}
	return f
}

func validFraction(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f > 0
}

// NormalizeSplit rescales a weighted split so that its values sum to 1.
// Non-positive and non-finite weights are dropped. A split with no usable
// weight normalizes to an empty map.
func NormalizeSplit(split map[string]float64) map[string]float64 {
	var sum float64
	for _, w := range split {
		if validFraction(w) {
			sum += w
		}
	}
	if sum == 0 || math.IsInf(sum, 0) {
		return map[string]float64{}
	}
	out := make(map[string]float64, len(split))
	for key, w := range split {
		if !validFraction(w) {
			continue
		}
		out[key] = w / sum
	}
	return out
}

// ParseWeight reads a split weight without rescaling: 25, "25", "25%" and
// "$25" all read as 25. Weights only matter relative to their siblings, so
// NormalizeSplit is applied afterwards. Unparseable values read as 0.
func ParseWeight(v any) float64 {
	switch n := v.(type) {
	case string:
		s := strings.NewReplacer("%", "", "$", "", ",", "", " ", "").Replace(strings.TrimSpace(n))
		d, err := decimal.NewFromString(s)
		if err != nil {
			return 0
		}
		return d.InexactFloat64()
	case json.Number:
		return ParseWeight(n.String())
	case decimal.Decimal:
		return n.InexactFloat64()
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	}
	return 0
}
