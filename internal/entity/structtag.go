package entity

import (
	"reflect"
	"strings"

	"github.com/roach88/workset/internal/errs"
)

// Tabler binds a struct type to its table.
type Tabler interface {
	TableName() string
}

// FromStruct derives a descriptor for *T from struct tags.
//
// Persistent fields carry a `db` tag naming the column (an empty name falls
// back to the field name). The identifier adds one option:
//
//	ID        int64  `db:"id,sequence"`   // or "identity"; bare "id" option means identity
//	FirstName string `db:"first_name"`
//
// The table comes from T's TableName method. Field indexes are resolved once
// here; later accesses go straight to the indexed field.
func FromStruct[T any]() (*Descriptor, error) {
	t := reflect.TypeFor[T]()
	if t.Kind() != reflect.Struct {
		return nil, errs.Configuration("%s is not a struct type", t)
	}

	var zero T
	tabler, ok := any(&zero).(Tabler)
	if !ok {
		return nil, errs.Configuration("%s has no table binding (missing TableName method)", t).For(t.Name(), nil)
	}

	var specs []columnSpec
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag, ok := f.Tag.Lookup("db")
		if !ok || tag == "-" {
			continue
		}
		if !f.IsExported() {
			return nil, errs.Configuration("field %s is tagged but unexported", f.Name).For(t.Name(), nil)
		}
		name, opts, _ := strings.Cut(tag, ",")
		spec := columnSpec{field: f.Name, name: name, ref: fieldRef(f.Index)}
		if opts != "" {
			for _, opt := range strings.Split(opts, ",") {
				switch strings.TrimSpace(opt) {
				case "id", "identity":
					spec.id, spec.strategy = true, Identity
				case "sequence":
					spec.id, spec.strategy = true, Sequence
				default:
					return nil, errs.Configuration("field %s has unknown db tag option %q", f.Name, opt).For(t.Name(), nil)
				}
			}
		}
		specs = append(specs, spec)
	}

	desc, err := newDescriptor(t.Name(), tabler.TableName(), reflect.PointerTo(t), specs)
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

// MustFromStruct is like FromStruct but panics on error.
func MustFromStruct[T any]() *Descriptor {
	d, err := FromStruct[T]()
	if err != nil {
		panic(err)
	}
	return d
}

func fieldRef(index []int) func(any) any {
	return func(record any) any {
		return reflect.ValueOf(record).Elem().FieldByIndex(index).Addr().Interface()
	}
}
