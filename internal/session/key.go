package session

import (
	"fmt"

	"github.com/roach88/workset/internal/entity"
)

// Key identifies one logical row within a session: a descriptor plus a
// normalized identifier. Keys are comparable and used as map keys.
type Key struct {
	desc *entity.Descriptor
	id   any
}

// NewKey builds the key for id under d. The identifier is normalized so that,
// for example, int(1) and int64(1) produce equal keys.
func NewKey(d *entity.Descriptor, id any) Key {
	return Key{desc: d, id: entity.NormalizeID(id)}
}

// Descriptor returns the key's descriptor.
func (k Key) Descriptor() *entity.Descriptor { return k.desc }

// ID returns the normalized identifier.
func (k Key) ID() any { return k.id }

// String renders the key as Type#id.
func (k Key) String() string {
	if k.desc == nil {
		return fmt.Sprintf("?#%v", k.id)
	}
	return fmt.Sprintf("%s#%v", k.desc.TypeID(), k.id)
}

// Snapshot is the non-identifier column values of a record, in descriptor
// column order, as they were last read from or written to the store.
type Snapshot []any

func takeSnapshot(d *entity.Descriptor, record any) Snapshot {
	return Snapshot(d.Values(record))
}

// Matches reports whether values equal the snapshot position by position.
func (s Snapshot) Matches(values []any) bool {
	if len(s) != len(values) {
		return false
	}
	for i := range s {
		if !entity.Equal(s[i], values[i]) {
			return false
		}
	}
	return true
}
