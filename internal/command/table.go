package command

import (
	"errors"
	"fmt"
	"sort"
)

// ErrCommandNotFound is returned by Lookup for names absent from the table.
var ErrCommandNotFound = errors.New("command not found")

// Table is an immutable name → Spec mapping built once per device session.
// It is safe for concurrent use.
type Table struct {
	name  string
	specs map[string]Spec
}

// New builds a table from records in order. When two records share a name
// the later one replaces the earlier one, mirroring table-load order.
func New(records []Record) (*Table, error) {
	return NewNamed("", records)
}

// NewNamed is New with a table name used in diagnostics.
func NewNamed(name string, records []Record) (*Table, error) {
	t := &Table{
		name:  name,
		specs: make(map[string]Spec, len(records)),
	}
	for i, r := range records {
		s, err := NewSpec(r)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		t.specs[s.Name] = s
	}
	return t, nil
}

// Lookup resolves a command by exact, case-sensitive name.
func (t *Table) Lookup(name string) (Spec, error) {
	s, ok := t.specs[name]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", ErrCommandNotFound, name)
	}
	return s, nil
}

// Name returns the table name, if one was given.
func (t *Table) Name() string {
	return t.name
}

// Len returns the number of commands.
func (t *Table) Len() int {
	return len(t.specs)
}

// Names returns all command names, sorted.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.specs))
	for n := range t.specs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Specs returns all specs sorted by name.
func (t *Table) Specs() []Spec {
	out := make([]Spec, 0, len(t.specs))
	for _, n := range t.Names() {
		out = append(out, t.specs[n])
	}
	return out
}

// Reports returns the names of report commands, sorted.
func (t *Table) Reports() []string {
	var names []string
	for _, n := range t.Names() {
		if t.specs[n].IsReport() {
			names = append(names, n)
		}
	}
	return names
}
