package allocation

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MatchMethod records how a payroll name was tied to an allocation record.
type MatchMethod string

const (
	MatchExact     MatchMethod = "exact"
	MatchLastName  MatchMethod = "last_name"
	MatchInitial   MatchMethod = "first_initial"
	MatchTieBreak  MatchMethod = "tie_break"
	MatchUnmatched MatchMethod = "unmatched"
)

// Match is the audit record of one resolution.
type Match struct {
	PayrollName    string      `json:"payroll_name"`
	AllocationName string      `json:"allocation_name,omitempty"`
	Method         MatchMethod `json:"method"`
	Candidates     int         `json:"candidates"`
}

var nameSuffixes = map[string]struct{}{
	"jr": {}, "sr": {}, "ii": {}, "iii": {}, "iv": {}, "v": {},
}

// Resolver maps payroll display names onto allocation records.
//
// Resolution order: exact normalized name, then the unique record sharing the
// last name. When several records share the last name the first initial
// narrows them; any tie left is broken by the most non-zero allocation entries
// and then by sheet order. Names with no candidate resolve to nothing.
type Resolver struct {
	employees []AllocationEmployee
	exact     map[string]int
	byLast    map[string][]int
}

// NewResolver indexes allocation employees in sheet order. When two records
// normalize to the same full name the first one is kept for exact matching.
func NewResolver(employees []AllocationEmployee) *Resolver {
	r := &Resolver{
		employees: employees,
		exact:     make(map[string]int, len(employees)),
		byLast:    make(map[string][]int),
	}
	for i, emp := range employees {
		normalized := NormalizeName(emp.Name)
		if normalized == "" {
			continue
		}
		if _, ok := r.exact[normalized]; !ok {
			r.exact[normalized] = i
		}
		if last := lastNameKey(normalized); last != "" {
			r.byLast[last] = append(r.byLast[last], i)
		}
	}
	return r
}

// Resolve finds the allocation record for a payroll name. The boolean is false
// when no record matches; that is an expected outcome, not an error.
func (r *Resolver) Resolve(payrollName string) (AllocationEmployee, Match, bool) {
	match := Match{PayrollName: payrollName, Method: MatchUnmatched}
	normalized := NormalizeName(payrollName)
	if r == nil || normalized == "" {
		return AllocationEmployee{}, match, false
	}
	if idx, ok := r.exact[normalized]; ok {
		return r.found(idx, match, MatchExact, 1)
	}
	candidates := r.byLast[lastNameKey(normalized)]
	switch len(candidates) {
	case 0:
		return AllocationEmployee{}, match, false
	case 1:
		return r.found(candidates[0], match, MatchLastName, 1)
	}

	pool := candidates
	if initial := firstInitial(normalized); initial != 0 {
		filtered := make([]int, 0, len(candidates))
		for _, idx := range candidates {
			if firstInitial(NormalizeName(r.employees[idx].Name)) == initial {
				filtered = append(filtered, idx)
			}
		}
		if len(filtered) == 1 {
			return r.found(filtered[0], match, MatchInitial, len(candidates))
		}
		if len(filtered) > 1 {
			pool = filtered
		}
	}
	best := pool[0]
	for _, idx := range pool[1:] {
		if nonZeroEntries(r.employees[idx]) > nonZeroEntries(r.employees[best]) {
			best = idx
		}
	}
	return r.found(best, match, MatchTieBreak, len(candidates))
}

func (r *Resolver) found(idx int, match Match, method MatchMethod, candidates int) (AllocationEmployee, Match, bool) {
	emp := r.employees[idx]
	match.AllocationName = emp.Name
	match.Method = method
	match.Candidates = candidates
	return emp, match, true
}

var diacriticFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName canonicalizes a person's name for matching: "Last, First" is
// reordered, diacritics are folded, the result is lowercased, everything
// outside [a-z0-9] and whitespace is dropped, whitespace is collapsed and a
// trailing generational suffix is removed.
func NormalizeName(raw string) string {
	if before, after, ok := strings.Cut(raw, ","); ok {
		if tail := cleanName(after); tail != "" && !allSuffixes(tail) {
			raw = after + " " + before
		} else {
			raw = before + " " + after
		}
	}
	tokens := strings.Fields(cleanName(raw))
	for len(tokens) > 1 {
		if _, ok := nameSuffixes[tokens[len(tokens)-1]]; !ok {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

func cleanName(raw string) string {
	folded, _, err := transform.String(diacriticFolder, raw)
	if err != nil {
		folded = raw
	}
	folded = strings.ToLower(folded)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func allSuffixes(name string) bool {
	for _, tok := range strings.Fields(name) {
		if _, ok := nameSuffixes[tok]; !ok {
			return false
		}
	}
	return true
}

// lastNameKey is the last token that contains a letter.
func lastNameKey(normalized string) string {
	tokens := strings.Fields(normalized)
	for i := len(tokens) - 1; i >= 0; i-- {
		if strings.IndexFunc(tokens[i], unicode.IsLetter) >= 0 {
			return tokens[i]
		}
	}
	return ""
}

// firstInitial is the first letter of the first token of a multi-token name.
func firstInitial(normalized string) byte {
	tokens := strings.Fields(normalized)
	if len(tokens) < 2 {
		return 0
	}
	return tokens[0][0]
}

func nonZeroEntries(emp AllocationEmployee) int {
	n := 0
	for _, v := range emp.Allocations {
		if NormalizePercent(v) > 0 {
			n++
		}
	}
	return n
}
