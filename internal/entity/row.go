package entity

import (
	"fmt"
)

// Row is a generic record whose columns are described by a mapping file
// rather than a Go struct. Values are held in descriptor column order.
type Row struct {
	desc   *Descriptor
	values []any
}

func newRow(d *Descriptor) *Row {
	return &Row{desc: d, values: make([]any, len(d.columns))}
}

// Descriptor returns the row's descriptor.
func (r *Row) Descriptor() *Descriptor { return r.desc }

// Get returns the value of a column.
func (r *Row) Get(column string) (any, bool) {
	i, ok := r.desc.byName[column]
	if !ok {
		return nil, false
	}
	return r.values[i], true
}

// Set assigns the value of a column.
func (r *Row) Set(column string, value any) error {
	i, ok := r.desc.byName[column]
	if !ok {
		return fmt.Errorf("%s has no column %q", r.desc.typeID, column)
	}
	r.values[i] = value
	return nil
}

// Map returns the row as column name -> value.
func (r *Row) Map() map[string]any {
	out := make(map[string]any, len(r.values))
	for i, c := range r.desc.columns {
		out[c.Name] = r.values[i]
	}
	return out
}

func rowRef(name string) func(any) any {
	return func(record any) any {
		r := record.(*Row)
		return &r.values[r.desc.byName[name]]
	}
}
