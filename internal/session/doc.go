// Package session implements the unit of work: a per-session identity map,
// snapshot-based dirty checking and a deferred action queue executed against
// one transactional connection.
//
// A Session owns exactly one *sql.Conn for its whole life and is not safe for
// concurrent use. The Factory that creates sessions is.
//
// # Write Ordering
//
// Writes are queued and executed at flush time in the fixed order
// Insert -> Update -> Delete, FIFO within each kind. Two writes bypass the
// deferral:
//   - identity-strategy inserts run at Persist time, because the generated
//     key is needed to place the record in the identity map
//   - sequence values are fetched at Persist time; only the row write waits
//
// # Staleness Window
//
// Delete evicts a record from the identity map only when the queued Delete
// executes. Until the next flush, Find returns the still-tracked record.
package session
