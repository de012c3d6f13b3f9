// Package entity resolves per-type persistence metadata.
//
// A Descriptor binds a record type to a table: the table name, the ordered
// column list, the identifier column and its generation strategy. Each column
// carries an accessor returning a pointer to the field inside a record; the
// pointer is read for parameter values and snapshots and handed to
// database/sql as a scan destination when a row is loaded.
//
// Descriptors come from three sources, all validated by the same constructor:
//   - Define: an explicit builder with typed field-pointer accessors
//   - FromStruct: `db` struct tags plus a TableName method
//   - mapping files (YAML or CUE) describing generic *Row records
//
// # Column Ordering
//
// Columns are sorted by declared field name. The same order drives INSERT and
// UPDATE parameter lists and snapshot positions, so a snapshot value at index
// i always belongs to ValueColumns()[i].
//
// Descriptors are immutable after construction and safe for concurrent use.
// A Registry holds the descriptors known to one session factory.
package entity
