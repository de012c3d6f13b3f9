// Package store opens the database a session factory works against and
// prepares the infrastructure schema the persister relies on.
//
// Supported drivers:
//   - sqlite3: github.com/mattn/go-sqlite3 (default)
//   - sqlite: modernc.org/sqlite (pure Go)
//   - pgx: github.com/jackc/pgx/v5/stdlib
//   - mysql: github.com/go-sql-driver/mysql
//
// # SQLite Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - One open connection: a session holds it for its whole unit of work
//
// The sequence strategy is backed by a single-row orm_sequence table on
// SQLite and MySQL and by a real sequence of the same name on Postgres.
//
// User tables are never created or migrated by this package; ApplyScript
// runs a caller-supplied DDL script verbatim.
package store
