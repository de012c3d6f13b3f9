package session

import (
	"context"
)

// ActionKind distinguishes pending writes.
type ActionKind int

const (
	// ActionInsert writes a new row.
	ActionInsert ActionKind = iota + 1
	// ActionUpdate rewrites the columns of an existing row.
	ActionUpdate
	// ActionDelete removes a row.
	ActionDelete
)

func (k ActionKind) String() string {
	switch k {
	case ActionInsert:
		return "insert"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Action is one pending write.
type Action struct {
	Kind   ActionKind
	Key    Key
	Record any
}

// ActionQueue holds pending writes grouped by kind.
//
// Within a kind, actions keep their enqueue order. Execute drains the groups
// in the fixed order Insert, Update, Delete regardless of how enqueues were
// interleaved.
//
// Not safe for concurrent use; it is owned by a single Session.
type ActionQueue struct {
	inserts []Action
	updates []Action
	deletes []Action

	pending map[pendingKey]int
}

type pendingKey struct {
	kind ActionKind
	key  Key
}

// NewActionQueue creates an empty queue.
func NewActionQueue() *ActionQueue {
	return &ActionQueue{pending: make(map[pendingKey]int)}
}

// Add appends a to the group for its kind.
func (q *ActionQueue) Add(a Action) {
	switch a.Kind {
	case ActionInsert:
		q.inserts = append(q.inserts, a)
	case ActionUpdate:
		q.updates = append(q.updates, a)
	case ActionDelete:
		q.deletes = append(q.deletes, a)
	default:
		return
	}
	q.pending[pendingKey{a.Kind, a.Key}]++
}

// Has reports whether an action of kind is pending for key.
func (q *ActionQueue) Has(kind ActionKind, key Key) bool {
	return q.pending[pendingKey{kind, key}] > 0
}

// Len returns the number of pending actions.
func (q *ActionQueue) Len() int {
	return len(q.inserts) + len(q.updates) + len(q.deletes)
}

// Insertions returns a copy of the pending inserts.
func (q *ActionQueue) Insertions() []Action { return append([]Action(nil), q.inserts...) }

// Updates returns a copy of the pending updates.
func (q *ActionQueue) Updates() []Action { return append([]Action(nil), q.updates...) }

// Deletions returns a copy of the pending deletes.
func (q *ActionQueue) Deletions() []Action { return append([]Action(nil), q.deletes...) }

// Clear drops every pending action.
func (q *ActionQueue) Clear() {
	q.inserts, q.updates, q.deletes = nil, nil, nil
	clear(q.pending)
}

// Execute runs every pending action through fn: all inserts, then all
// updates, then all deletes.
//
// The first error halts execution. Actions that already ran are dropped; the
// failing action and everything after it stay queued.
func (q *ActionQueue) Execute(ctx context.Context, fn func(context.Context, Action) error) error {
	for _, kind := range []ActionKind{ActionInsert, ActionUpdate, ActionDelete} {
		group := q.group(kind)
		for i, a := range *group {
			if err := ctx.Err(); err != nil {
				*group = (*group)[i:]
				return err
			}
			if err := fn(ctx, a); err != nil {
				*group = (*group)[i:]
				return err
			}
			q.done(a)
		}
		*group = nil
	}
	return nil
}

func (q *ActionQueue) done(a Action) {
	id := pendingKey{a.Kind, a.Key}
	if q.pending[id] <= 1 {
		delete(q.pending, id)
		return
	}
	q.pending[id]--
}

func (q *ActionQueue) group(kind ActionKind) *[]Action {
	switch kind {
	case ActionInsert:
		return &q.inserts
	case ActionUpdate:
		return &q.updates
	default:
		return &q.deletes
	}
}
