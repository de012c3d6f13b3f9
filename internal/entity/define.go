package entity

import (
	"reflect"
)

// Definition builds a Descriptor for *T from explicit field accessors.
//
//	d, err := entity.Define[Person]("Person", "persons").
//		ID("ID", "id", entity.Sequence, func(p *Person) any { return &p.ID }).
//		Column("FirstName", "first_name", func(p *Person) any { return &p.FirstName }).
//		Build()
//
// Accessors return a pointer to the field; it is used both to read the value
// and as a database/sql scan destination.
type Definition[T any] struct {
	typeID string
	table  string
	specs  []columnSpec
}

// Define starts a definition for records of type *T. An empty typeID
// defaults to T's type name.
func Define[T any](typeID, table string) *Definition[T] {
	if typeID == "" {
		typeID = reflect.TypeFor[T]().Name()
	}
	return &Definition[T]{typeID: typeID, table: table}
}

// ID declares the identifier column.
func (d *Definition[T]) ID(field, column string, strategy Strategy, ref func(*T) any) *Definition[T] {
	d.specs = append(d.specs, columnSpec{
		field:    field,
		name:     column,
		id:       true,
		strategy: strategy,
		ref:      wrapRef(ref),
	})
	return d
}

// Column declares a persistent non-identifier column.
func (d *Definition[T]) Column(field, column string, ref func(*T) any) *Definition[T] {
	d.specs = append(d.specs, columnSpec{field: field, name: column, ref: wrapRef(ref)})
	return d
}

// Build validates the definition and returns the descriptor.
func (d *Definition[T]) Build() (*Descriptor, error) {
	desc, err := newDescriptor(d.typeID, d.table, reflect.TypeFor[*T](), d.specs)
	if err != nil {
		return nil, err
	}
	desc.newRecord = func() any { return new(T) }
	desc.accepts = func(record any) bool {
		p, ok := record.(*T)
		return ok && p != nil
	}
	return desc, nil
}

// MustBuild is like Build but panics on error. Intended for package-level
// registration of static definitions.
func (d *Definition[T]) MustBuild() *Descriptor {
	desc, err := d.Build()
	if err != nil {
		panic(err)
	}
	return desc
}

func wrapRef[T any](ref func(*T) any) func(any) any {
	if ref == nil {
		return nil
	}
	return func(record any) any { return ref(record.(*T)) }
}
