package entity

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/workset/internal/errs"
)

// Strategy selects how identifiers are generated.
type Strategy int

const (
	// Identity identifiers are generated by the store during INSERT.
	Identity Strategy = iota + 1
	// Sequence identifiers are fetched from a store-side counter before INSERT.
	Sequence
)

// String returns the lower-case strategy name.
func (s Strategy) String() string {
	switch s {
	case Identity:
		return "identity"
	case Sequence:
		return "sequence"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy parses "identity" or "sequence" (case-insensitive).
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "identity":
		return Identity, nil
	case "sequence":
		return Sequence, nil
	default:
		return 0, errs.Configuration("unknown identifier strategy %q", s)
	}
}

// Column is one persistent field of a descriptor.
type Column struct {
	// Field is the declared field name; columns are ordered by it.
	Field string

	// Name is the column name in the table.
	Name string

	// ID marks the identifier column.
	ID bool

	ref func(record any) any
}

// Ref returns a pointer to the column's field inside record.
func (c Column) Ref(record any) any {
	return c.ref(record)
}

// Descriptor is the resolved persistence metadata of one record type.
type Descriptor struct {
	typeID    string
	table     string
	strategy  Strategy
	columns   []Column
	values    []Column
	idIndex   int
	byName    map[string]int
	goType    reflect.Type
	newRecord func() any
	accepts   func(record any) bool
}

// columnSpec is the unvalidated input of newDescriptor.
type columnSpec struct {
	field    string
	name     string
	id       bool
	strategy Strategy
	ref      func(record any) any
}

func newDescriptor(typeID, table string, goType reflect.Type, specs []columnSpec) (*Descriptor, error) {
	typeID = strings.TrimSpace(typeID)
	if typeID == "" {
		return nil, errs.Configuration("entity has no type name")
	}
	table = norm.NFC.String(strings.TrimSpace(table))
	if table == "" {
		return nil, errs.Configuration("entity has no table binding").For(typeID, nil)
	}

	cols := make([]Column, 0, len(specs))
	seen := make(map[string]string, len(specs))
	var strategy Strategy
	ids := 0
	for _, spec := range specs {
		name := spec.name
		if name == "" {
			name = spec.field
		}
		name = norm.NFC.String(strings.TrimSpace(name))
		if name == "" {
			return nil, errs.Configuration("column for field %q has no name", spec.field).For(typeID, nil)
		}
		if prev, dup := seen[name]; dup {
			return nil, errs.Configuration("duplicate column name %q (fields %q and %q)", name, prev, spec.field).For(typeID, nil)
		}
		seen[name] = spec.field
		if spec.ref == nil {
			return nil, errs.Configuration("column %q has no accessor", name).For(typeID, nil)
		}
		if spec.id {
			ids++
			strategy = spec.strategy
		}
		cols = append(cols, Column{Field: spec.field, Name: name, ID: spec.id, ref: spec.ref})
	}
	switch {
	case ids == 0:
		return nil, errs.Configuration("entity has no identifier column").For(typeID, nil)
	case ids > 1:
		return nil, errs.Configuration("entity has %d identifier columns, want exactly one", ids).For(typeID, nil)
	}
	if strategy != Identity && strategy != Sequence {
		return nil, errs.Configuration("identifier has unknown strategy %s", strategy).For(typeID, nil)
	}

	sort.SliceStable(cols, func(i, j int) bool { return cols[i].Field < cols[j].Field })

	d := &Descriptor{
		typeID:   typeID,
		table:    table,
		strategy: strategy,
		columns:  cols,
		byName:   make(map[string]int, len(cols)),
		goType:   goType,
	}
	for i, c := range cols {
		d.byName[c.Name] = i
		if c.ID {
			d.idIndex = i
			continue
		}
		d.values = append(d.values, c)
	}
	return d, nil
}

// TypeID returns the registered type name.
func (d *Descriptor) TypeID() string { return d.typeID }

// Table returns the table name.
func (d *Descriptor) Table() string { return d.table }

// Strategy returns the identifier generation strategy.
func (d *Descriptor) Strategy() Strategy { return d.strategy }

// IDColumn returns the identifier column.
func (d *Descriptor) IDColumn() Column { return d.columns[d.idIndex] }

// Columns returns all columns, identifier included, in declared-field order.
func (d *Descriptor) Columns() []Column {
	return append([]Column(nil), d.columns...)
}

// ValueColumns returns the non-identifier columns in declared-field order.
// Snapshot positions and write parameters follow this order.
func (d *Descriptor) ValueColumns() []Column {
	return append([]Column(nil), d.values...)
}

// GoType returns the record type bound by Define or FromStruct, or nil for rows.
func (d *Descriptor) GoType() reflect.Type { return d.goType }

// Lookup finds a column by name, falling back to a case-insensitive match.
func (d *Descriptor) Lookup(name string) (Column, bool) {
	if i, ok := d.byName[name]; ok {
		return d.columns[i], true
	}
	for _, c := range d.columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// New returns an empty record of the descriptor's type.
func (d *Descriptor) New() any { return d.newRecord() }

// Accepts reports whether record is a non-nil record of this descriptor.
func (d *Descriptor) Accepts(record any) bool {
	return record != nil && d.accepts(record)
}

// Values returns the non-identifier column values of record in column order.
func (d *Descriptor) Values(record any) []any {
	out := make([]any, len(d.values))
	for i, c := range d.values {
		out[i] = cloneValue(deref(c.ref(record)))
	}
	return out
}

// ID returns the normalized identifier value of record.
func (d *Descriptor) ID(record any) any {
	return NormalizeID(deref(d.IDColumn().ref(record)))
}

// SetID assigns id to record's identifier field.
func (d *Descriptor) SetID(record any, id any) error {
	if err := assign(d.IDColumn().ref(record), id); err != nil {
		return errs.Configuration("set identifier: %v", err).For(d.typeID, id)
	}
	return nil
}

// String implements fmt.Stringer.
func (d *Descriptor) String() string {
	return fmt.Sprintf("%s(%s)", d.typeID, d.table)
}
