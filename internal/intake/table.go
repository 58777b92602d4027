package intake

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/payalloc/internal/allocation"
	"github.com/odyssey-erp/payalloc/internal/shared"
)

type tableDocument struct {
	Properties []propertyDoc  `yaml:"properties" validate:"dive"`
	Employees  []employeeDoc  `yaml:"employees" validate:"dive"`
	PRS        prsDoc         `yaml:"prs"`
	Marketing  map[string]any `yaml:"marketing"`
}

type propertyDoc struct {
	Key   string `yaml:"key" validate:"required_without=Label"`
	Label string `yaml:"label"`
	Name  string `yaml:"name"`
}

type employeeDoc struct {
	Name        string         `yaml:"name" validate:"required"`
	Recoverable recoverability `yaml:"recoverable"`
	Allocations map[string]any `yaml:"allocations"`
}

type prsDoc struct {
	Recoverable    map[string]map[string]any `yaml:"recoverable"`
	NonRecoverable map[string]map[string]any `yaml:"nonRecoverable"`
}

// recoverability accepts YAML booleans as well as the spreadsheet spellings
// "Y", "yes", "R" and "recoverable".
type recoverability bool

func (r *recoverability) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: recoverable must be a scalar", node.Line)
	}
	switch strings.ToLower(strings.TrimSpace(node.Value)) {
	case "true", "yes", "y", "r", "1", "recoverable":
		*r = true
	case "false", "no", "n", "nr", "0", "", "non-recoverable", "nonrecoverable":
		*r = false
	default:
		return fmt.Errorf("line %d: unrecognised recoverable flag %q", node.Line, node.Value)
	}
	return nil
}

// DecodeAllocationTable reads an allocation table document. YAML and JSON are
// both accepted. Unknown top-level fields are rejected so that misspelt
// sections do not silently drop data.
func DecodeAllocationTable(r io.Reader) (allocation.AllocationTable, error) {
	var doc tableDocument
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return allocation.AllocationTable{}, fmt.Errorf("intake: allocation table is empty: %w", shared.ErrInvalidInput)
		}
		return allocation.AllocationTable{}, fmt.Errorf("intake: decode allocation table: %v: %w", err, shared.ErrInvalidInput)
	}
	if err := validate.Struct(doc); err != nil {
		return allocation.AllocationTable{}, fmt.Errorf("intake: allocation table: %s: %w", describeValidation(err), shared.ErrInvalidInput)
	}
	return doc.table()
}

func (d tableDocument) table() (allocation.AllocationTable, error) {
	table := allocation.AllocationTable{
		Properties: make([]allocation.Property, 0, len(d.Properties)),
		Employees:  make([]allocation.AllocationEmployee, 0, len(d.Employees)),
		PRS: allocation.PRSTables{
			Recoverable:    splits(d.PRS.Recoverable),
			NonRecoverable: splits(d.PRS.NonRecoverable),
		},
		Marketing: make(allocation.MarketingCascade, len(d.Marketing)),
	}
	seen := make(map[string]struct{}, len(d.Properties))
	for _, p := range d.Properties {
		key := strings.TrimSpace(p.Key)
		index := key
		if index == "" {
			index = strings.TrimSpace(p.Label)
		}
		canonical := strings.ToUpper(index)
		if _, dup := seen[canonical]; dup {
			return allocation.AllocationTable{}, fmt.Errorf("intake: duplicate property key %q: %w", index, shared.ErrInvalidInput)
		}
		seen[canonical] = struct{}{}
		table.Properties = append(table.Properties, allocation.Property{
			Key:   key,
			Label: strings.TrimSpace(p.Label),
			Name:  strings.TrimSpace(p.Name),
		})
	}
	for _, e := range d.Employees {
		allocations := make(map[string]any, len(e.Allocations))
		for target, raw := range e.Allocations {
			allocations[target] = raw
		}
		table.Employees = append(table.Employees, allocation.AllocationEmployee{
			Name:        strings.TrimSpace(e.Name),
			Recoverable: bool(e.Recoverable),
			Allocations: allocations,
		})
	}
	for group, raw := range d.Marketing {
		table.Marketing[group] = allocation.ParseWeight(raw)
	}
	return table, nil
}

func splits(in map[string]map[string]any) map[string]allocation.Split {
	out := make(map[string]allocation.Split, len(in))
	for group, legs := range in {
		split := make(allocation.Split, len(legs))
		for property, raw := range legs {
			split[property] = allocation.ParseWeight(raw)
		}
		out[group] = split
	}
	return out
}
