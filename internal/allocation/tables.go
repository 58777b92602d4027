package allocation

import (
	"sort"
	"strings"
)

// Regime selects which PRS table a group is redistributed through.
type Regime string

const (
	RegimeRecoverable    Regime = "recoverable"
	RegimeNonRecoverable Regime = "nonRecoverable"
)

// RegimeFor returns the regime matching an employee's recoverable flag.
func RegimeFor(recoverable bool) Regime {
	if recoverable {
		return RegimeRecoverable
	}
	return RegimeNonRecoverable
}

// Split is a weighted distribution keyed by property or group. Weights are raw
// and are normalized before use.
type Split map[string]float64

// PRSTables holds the proportional redistribution share tables, one per regime,
// each mapping a group to its property split.
type PRSTables struct {
	Recoverable    map[string]Split `json:"recoverable" yaml:"recoverable"`
	NonRecoverable map[string]Split `json:"nonRecoverable" yaml:"nonRecoverable"`
}

// Lookup returns the raw split for a group under the regime.
func (t PRSTables) Lookup(regime Regime, group string) (Split, bool) {
	var table map[string]Split
	switch regime {
	case RegimeRecoverable:
		table = t.Recoverable
	case RegimeNonRecoverable:
		table = t.NonRecoverable
	}
	split, ok := table[group]
	return split, ok
}

// Groups lists every group named by either regime, sorted.
func (t PRSTables) Groups() []string {
	seen := make(map[string]struct{})
	for group := range t.Recoverable {
		seen[group] = struct{}{}
	}
	for group := range t.NonRecoverable {
		seen[group] = struct{}{}
	}
	return sortedKeys(seen)
}

// MarketingCascade distributes the marketing percent across groups.
type MarketingCascade map[string]float64

// MarketingTarget is the allocation-sheet column that triggers the cascade.
const MarketingTarget = "marketing"

// share is one resolved leg of a normalized split.
type share struct {
	key      string
	fraction float64
}

// normalizedShares normalizes the split and returns its legs in key order so
// that floating point accumulation is reproducible.
func normalizedShares(split Split) []share {
	norm := NormalizeSplit(split)
	out := make([]share, 0, len(norm))
	for key, f := range norm {
		out = append(out, share{key: key, fraction: f})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

func canonicalKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
