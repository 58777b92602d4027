package allocation

import (
	"sort"
	"strings"
)

// TargetKind tags what an allocation-sheet column points at.
type TargetKind int

const (
	TargetProperty TargetKind = iota + 1
	TargetGroup
	TargetMarketing
)

func (k TargetKind) String() string {
	switch k {
	case TargetProperty:
		return "property"
	case TargetGroup:
		return "group"
	case TargetMarketing:
		return "marketing"
	}
	return "unknown"
}

// Target is a classified allocation column. Key holds the property key or the
// group name as declared in the tables.
type Target struct {
	Kind TargetKind
	Key  string
}

// PropertyShare is the fraction of one employee's pay that lands on a property.
type PropertyShare struct {
	PropertyKey string  `json:"property_key"`
	Fraction    float64 `json:"fraction"`
}

// Expansion is an employee's resolved property distribution, ordered by key.
type Expansion []PropertyShare

// Total sums the resolved fractions.
func (e Expansion) Total() float64 {
	var sum float64
	for _, s := range e {
		sum += s.Fraction
	}
	return sum
}

// Expander resolves allocation maps into property fractions. It is built once
// per run from immutable tables and holds no mutable state afterwards, so a
// single Expander may serve concurrent callers.
type Expander struct {
	properties map[string]Property // keyed by index key
	propIndex  map[string]string
	groupIndex map[string]string
	splits     map[Regime]map[string][]share // keyed by canonical group
	marketing  []share
}

// NewExpander indexes the property list and pre-normalizes every PRS split and
// the marketing cascade.
func NewExpander(properties []Property, prs PRSTables, marketing MarketingCascade) *Expander {
	e := &Expander{
		properties: make(map[string]Property),
		propIndex:  make(map[string]string),
		groupIndex: make(map[string]string),
		splits: map[Regime]map[string][]share{
			RegimeRecoverable:    {},
			RegimeNonRecoverable: {},
		},
	}
	for _, p := range properties {
		e.addProperty(p)
	}
	for _, regime := range []Regime{RegimeRecoverable, RegimeNonRecoverable} {
		var table map[string]Split
		if regime == RegimeRecoverable {
			table = prs.Recoverable
		} else {
			table = prs.NonRecoverable
		}
		for _, group := range sortedKeys(table) {
			if _, ok := e.groupIndex[canonicalKey(group)]; !ok {
				e.groupIndex[canonicalKey(group)] = group
			}
			legs := normalizedShares(table[group])
			resolved := legs[:0]
			for _, leg := range legs {
				// PRS tables may name properties the sheet never lists.
				if leg.key = e.discoverProperty(leg.key); leg.key != "" {
					resolved = append(resolved, leg)
				}
			}
			e.splits[regime][canonicalKey(group)] = resolved
		}
	}
	e.marketing = normalizedShares(Split(marketing))
	return e
}

// addProperty registers p under its key, or under its label when it has no
// key, and returns the index key callers should accumulate under. Keys are
// exact identities; the folded index only serves column and PRS matching and
// keeps the first property registered for a folded key.
func (e *Expander) addProperty(p Property) string {
	p.Key = strings.TrimSpace(p.Key)
	p.Label = strings.TrimSpace(p.Label)
	index := p.Key
	if index == "" {
		index = p.Label
	}
	if index == "" {
		return ""
	}
	if _, ok := e.properties[index]; ok {
		return index
	}
	if p.Label == "" {
		p.Label = p.Key
	}
	e.properties[index] = p
	if canon := canonicalKey(index); canon != "" {
		if _, ok := e.propIndex[canon]; !ok {
			e.propIndex[canon] = index
		}
	}
	return index
}

// lookupProperty finds a known property by exact key first, then folded.
func (e *Expander) lookupProperty(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if _, ok := e.properties[name]; ok && name != "" {
		return name, true
	}
	index, ok := e.propIndex[canonicalKey(name)]
	return index, ok
}

// discoverProperty resolves a PRS leg to a known property, registering it
// when the sheet never listed it.
func (e *Expander) discoverProperty(key string) string {
	if index, ok := e.lookupProperty(key); ok {
		return index
	}
	return e.addProperty(Property{Key: key})
}

// indexedProperty pairs a property with the key its lines accumulate under.
type indexedProperty struct {
	index string
	Property
}

func (e *Expander) indexed() []indexedProperty {
	out := make([]indexedProperty, 0, len(e.properties))
	for _, index := range sortedKeys(e.properties) {
		out = append(out, indexedProperty{index: index, Property: e.properties[index]})
	}
	return out
}

// Properties returns every known property, sheet-declared or PRS-discovered,
// ordered by key. A property without a key is ordered by its label.
func (e *Expander) Properties() []Property {
	indexed := e.indexed()
	out := make([]Property, 0, len(indexed))
	for _, p := range indexed {
		out = append(out, p.Property)
	}
	return out
}

// Classify resolves a sheet column. Property keys win over the marketing
// literal, which wins over PRS groups. Unknown columns report false.
func (e *Expander) Classify(column string) (Target, bool) {
	canon := canonicalKey(column)
	if canon == "" {
		return Target{}, false
	}
	if index, ok := e.lookupProperty(column); ok {
		return Target{Kind: TargetProperty, Key: index}, true
	}
	if strings.EqualFold(canon, MarketingTarget) {
		return Target{Kind: TargetMarketing, Key: MarketingTarget}, true
	}
	if group, ok := e.groupIndex[canon]; ok {
		return Target{Kind: TargetGroup, Key: group}, true
	}
	return Target{}, false
}

// Expand fans one employee's allocation map out to properties: direct
// properties take the percent as is, groups go through the PRS table of the
// employee's regime, and marketing goes through the cascade and then the
// non-recoverable PRS table of every cascade group.
func (e *Expander) Expand(emp AllocationEmployee) Expansion {
	out := make(map[string]float64)
	regime := RegimeFor(emp.Recoverable)
	for _, column := range sortedKeys(emp.Allocations) {
		p := NormalizePercent(emp.Allocations[column])
		if p == 0 {
			continue
		}
		target, ok := e.Classify(column)
		if !ok {
			continue
		}
		switch target.Kind {
		case TargetProperty:
			out[target.Key] += p
		case TargetGroup:
			for _, leg := range e.splits[regime][canonicalKey(target.Key)] {
				out[leg.key] += p * leg.fraction
			}
		case TargetMarketing:
			for _, g := range e.marketing {
				for _, leg := range e.splits[RegimeNonRecoverable][canonicalKey(g.key)] {
					out[leg.key] += p * g.fraction * leg.fraction
				}
			}
		}
	}
	expansion := make(Expansion, 0, len(out))
	for key, f := range out {
		if f == 0 {
			continue
		}
		expansion = append(expansion, PropertyShare{PropertyKey: key, Fraction: f})
	}
	sort.Slice(expansion, func(i, j int) bool { return expansion[i].PropertyKey < expansion[j].PropertyKey })
	return expansion
}

// AllocatedPercent sums the normalized percents of an allocation map, the upper
// bound for the total of its expansion.
func AllocatedPercent(emp AllocationEmployee) float64 {
	var sum float64
	for _, column := range sortedKeys(emp.Allocations) {
		sum += NormalizePercent(emp.Allocations[column])
	}
	return sum
}
