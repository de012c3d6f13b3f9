package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/roach88/workset/internal/errs"
	"github.com/roach88/workset/internal/persister"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - orm_sequence table created, no row
// 1 - orm_sequence seeded with its single row
const currentSchemaVersion = 1

// DefaultDriver is used when Config.Driver is empty.
const DefaultDriver = "sqlite3"

// Config selects the database to open.
type Config struct {
	// Driver is a database/sql driver name: sqlite3, sqlite, pgx or mysql.
	Driver string
	// DSN is the driver-specific data source (a file path for SQLite).
	DSN string
}

// Store is an opened database plus the dialect its statements use.
type Store struct {
	db      *sql.DB
	dialect persister.Dialect
}

// Open connects to the configured database and prepares the infrastructure
// schema. It is idempotent - safe to call repeatedly on the same database.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Driver == "" {
		cfg.Driver = DefaultDriver
	}
	dialect, err := persister.ForDriver(cfg.Driver)
	if err != nil {
		return nil, errs.Configuration("%v", err)
	}
	if cfg.DSN == "" {
		return nil, errs.Configuration("no data source given for driver %q", cfg.Driver)
	}

	if dialect.Name == persister.MySQL.Name {
		dsn, err := mysqlDSN(cfg.DSN)
		if err != nil {
			return nil, errs.Configuration("parse mysql data source: %v", err)
		}
		cfg.DSN = dsn
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, errs.Connection("open database", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errs.Connection("connect to database", err)
	}

	if dialect.Name == persister.SQLite.Name {
		// SQLite only supports one writer at a time.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	s, err := Attach(ctx, db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Attach prepares the infrastructure schema on an already opened database.
func Attach(ctx context.Context, db *sql.DB, dialect persister.Dialect) (*Store, error) {
	switch dialect.Name {
	case persister.SQLite.Name:
		if err := applyPragmas(ctx, db); err != nil {
			return nil, errs.Connection("apply pragmas", err)
		}
		if err := applySchema(ctx, db); err != nil {
			return nil, errs.Connection("apply schema", err)
		}
	case persister.Postgres.Name:
		if _, err := db.ExecContext(ctx, "CREATE SEQUENCE IF NOT EXISTS "+persister.SequenceName); err != nil {
			return nil, errs.Connection("create sequence", err)
		}
	case persister.MySQL.Name:
		for _, stmt := range mysqlSchema {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return nil, errs.Connection("apply schema", err)
			}
		}
	default:
		return nil, errs.Configuration("unsupported dialect %q", dialect.Name)
	}
	return &Store{db: db, dialect: dialect}, nil
}

var mysqlSchema = []string{
	"CREATE TABLE IF NOT EXISTS " + persister.SequenceName + " (value BIGINT NOT NULL)",
	"INSERT INTO " + persister.SequenceName + " (value) SELECT 0 FROM DUAL WHERE NOT EXISTS (SELECT 1 FROM " + persister.SequenceName + ")",
}

// mysqlDSN makes UPDATE report matched rather than changed rows, which the
// affected-row check relies on, and allows multi-statement DDL scripts.
func mysqlDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	cfg.ClientFoundRows = true
	cfg.MultiStatements = true
	return cfg.FormatDSN(), nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the dialect matching the store's driver.
func (s *Store) Dialect() persister.Dialect {
	return s.dialect
}

// ApplyScript executes a DDL script, typically the CREATE TABLE statements
// for mapped entities.
func (s *Store) ApplyScript(ctx context.Context, script string) error {
	if _, err := s.db.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("apply script: %w", err)
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates infrastructure tables if they don't exist and runs
// migrations.
func applySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(ctx, db); err != nil {
			return err
		}
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// migrateToV1 seeds the single orm_sequence row.
func migrateToV1(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO orm_sequence (value)
		SELECT 0 WHERE NOT EXISTS (SELECT 1 FROM orm_sequence)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
