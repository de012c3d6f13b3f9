package entity

import (
	"reflect"

	"github.com/roach88/workset/internal/errs"
)

// Registry holds the descriptors known to a session factory. It is built
// once and read concurrently afterwards.
type Registry struct {
	byName map[string]*Descriptor
	byType map[reflect.Type]*Descriptor
	order  []*Descriptor
}

// NewRegistry registers descs. Duplicate type names or Go types are
// configuration errors.
func NewRegistry(descs ...*Descriptor) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]*Descriptor, len(descs)),
		byType: make(map[reflect.Type]*Descriptor, len(descs)),
	}
	for _, d := range descs {
		if d == nil {
			return nil, errs.Configuration("nil descriptor")
		}
		if _, dup := r.byName[d.typeID]; dup {
			return nil, errs.Configuration("entity registered twice").For(d.typeID, nil)
		}
		if d.goType != nil {
			if prev, dup := r.byType[d.goType]; dup {
				return nil, errs.Configuration("type %s already registered as %s", d.goType, prev.typeID).For(d.typeID, nil)
			}
			r.byType[d.goType] = d
		}
		r.byName[d.typeID] = d
		r.order = append(r.order, d)
	}
	return r, nil
}

// Lookup returns the descriptor registered under typeID.
func (r *Registry) Lookup(typeID string) (*Descriptor, error) {
	if d, ok := r.byName[typeID]; ok {
		return d, nil
	}
	return nil, errs.Configuration("entity is not registered").For(typeID, nil)
}

// ForType returns the descriptor bound to the Go record type t (a pointer type).
func (r *Registry) ForType(t reflect.Type) (*Descriptor, error) {
	if d, ok := r.byType[t]; ok {
		return d, nil
	}
	return nil, errs.Configuration("type %v is not registered", t)
}

// Of returns the descriptor of record.
func (r *Registry) Of(record any) (*Descriptor, error) {
	if record == nil {
		return nil, errs.IllegalArgument("nil record")
	}
	if row, ok := record.(*Row); ok {
		if row == nil {
			return nil, errs.IllegalArgument("nil record")
		}
		if d, ok := r.byName[row.desc.typeID]; ok && d == row.desc {
			return d, nil
		}
		return nil, errs.Configuration("row descriptor is not registered").For(row.desc.typeID, nil)
	}
	d, err := r.ForType(reflect.TypeOf(record))
	if err != nil {
		return nil, err
	}
	if !d.Accepts(record) {
		return nil, errs.IllegalArgument("nil record").For(d.typeID, nil)
	}
	return d, nil
}

// Descriptors returns the registered descriptors in registration order.
func (r *Registry) Descriptors() []*Descriptor {
	return append([]*Descriptor(nil), r.order...)
}
