// Package persister translates entity descriptors and records into SQL
// statements and result rows back into records.
//
// A Persister is stateless apart from a per-descriptor statement cache and is
// shared by every session of a factory. All values are bound as parameters;
// only identifiers taken from descriptors are interpolated into SQL text.
package persister

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/roach88/workset/internal/entity"
	"github.com/roach88/workset/internal/errs"
)

// Executor is the statement surface the persister needs. *sql.Tx, *sql.Conn
// and *sql.DB satisfy it.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Statements are the SQL texts generated for one descriptor.
type Statements struct {
	// Select loads one row by identifier.
	Select string
	// Insert writes all columns; the identifier is bound last.
	Insert string
	// IdentityInsert writes the non-identifier columns and leaves the key to the store.
	IdentityInsert string
	// Update rewrites the non-identifier columns of one row.
	Update string
	// Delete removes one row by identifier.
	Delete string
}

// Persister generates and executes row statements.
type Persister struct {
	dialect Dialect

	mu    sync.Mutex
	cache map[*entity.Descriptor]*Statements
}

// New creates a Persister for the given dialect.
func New(d Dialect) *Persister {
	return &Persister{dialect: d, cache: make(map[*entity.Descriptor]*Statements)}
}

// Dialect returns the persister's dialect.
func (p *Persister) Dialect() Dialect { return p.dialect }

// Statements returns the (memoized) statements for d.
func (p *Persister) Statements(d *entity.Descriptor) *Statements {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok := p.cache[d]; ok {
		return st
	}
	st := buildStatements(p.dialect, d)
	p.cache[d] = st
	return st
}

func buildStatements(dialect Dialect, d *entity.Descriptor) *Statements {
	table := d.Table()
	idCol := d.IDColumn().Name
	var names []string
	for _, c := range d.ValueColumns() {
		names = append(names, c.Name)
	}

	st := &Statements{}

	next := dialect.placeholders()
	st.Select = fmt.Sprintf("SELECT * FROM %s WHERE %s=%s", table, idCol, next())

	next = dialect.placeholders()
	all := append(append([]string(nil), names...), idCol)
	st.Insert = fmt.Sprintf("INSERT INTO %s(%s) VALUES(%s)",
		table, strings.Join(all, ", "), marks(next, len(all)))

	next = dialect.placeholders()
	if len(names) == 0 {
		st.IdentityInsert = fmt.Sprintf("INSERT INTO %s %s", table, dialect.emptyValues())
	} else {
		st.IdentityInsert = fmt.Sprintf("INSERT INTO %s(%s) VALUES(%s)",
			table, strings.Join(names, ", "), marks(next, len(names)))
	}
	if dialect.Returning {
		st.IdentityInsert += " RETURNING " + idCol
	}

	next = dialect.placeholders()
	sets := make([]string, 0, len(names))
	for _, n := range names {
		sets = append(sets, n+"="+next())
	}
	if len(sets) == 0 {
		// Nothing but the key: rewrite the key to itself so the row-count
		// postcondition still applies.
		sets = append(sets, idCol+"="+next())
	}
	st.Update = fmt.Sprintf("UPDATE %s SET %s WHERE %s=%s", table, strings.Join(sets, ", "), idCol, next())

	next = dialect.placeholders()
	st.Delete = fmt.Sprintf("DELETE FROM %s WHERE %s=%s", table, idCol, next())

	return st
}

func marks(next func() string, n int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = next()
	}
	return strings.Join(out, ", ")
}

// Load reads the row with identifier id into a new record. It returns a nil
// record when no row matches.
func (p *Persister) Load(ctx context.Context, ex Executor, d *entity.Descriptor, id any) (any, error) {
	st := p.Statements(d)
	rows, err := ex.QueryContext(ctx, st.Select, id)
	if err != nil {
		return nil, errs.Persistence(d.TypeID(), id, "load row", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, errs.Persistence(d.TypeID(), id, "load row", err)
		}
		return nil, nil
	}

	names, err := rows.Columns()
	if err != nil {
		return nil, errs.Persistence(d.TypeID(), id, "read result columns", err)
	}
	record := d.New()
	dest := make([]any, len(names))
	seen := make(map[string]bool, len(names))
	for i, name := range names {
		c, ok := d.Lookup(name)
		if !ok || seen[c.Name] {
			dest[i] = new(any)
			continue
		}
		seen[c.Name] = true
		dest[i] = c.Ref(record)
	}
	for _, c := range d.Columns() {
		if !seen[c.Name] {
			return nil, errs.Persistence(d.TypeID(), id, fmt.Sprintf("result has no column %q", c.Name), nil)
		}
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, errs.Persistence(d.TypeID(), id, "map row", err)
	}
	if err := rows.Close(); err != nil {
		return nil, errs.Persistence(d.TypeID(), id, "load row", err)
	}
	return record, nil
}

// Insert writes record with the already-assigned identifier id.
func (p *Persister) Insert(ctx context.Context, ex Executor, d *entity.Descriptor, id any, record any) error {
	st := p.Statements(d)
	args := append(d.Values(record), id)
	res, err := ex.ExecContext(ctx, st.Insert, args...)
	if err != nil {
		return errs.Persistence(d.TypeID(), id, "insert row", err)
	}
	return expectOne(res, d, id, "insert row")
}

// InsertIdentity writes record, lets the store generate its key, assigns the
// key to the record and returns it.
func (p *Persister) InsertIdentity(ctx context.Context, ex Executor, d *entity.Descriptor, record any) (any, error) {
	st := p.Statements(d)
	args := d.Values(record)

	var id any
	if p.dialect.Returning {
		rows, err := ex.QueryContext(ctx, st.IdentityInsert, args...)
		if err != nil {
			return nil, errs.Persistence(d.TypeID(), nil, "insert row", err)
		}
		defer rows.Close()
		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return nil, errs.Persistence(d.TypeID(), nil, "insert row", err)
			}
			return nil, errs.Persistence(d.TypeID(), nil, "insert row: no generated key returned", nil)
		}
		if err := rows.Scan(&id); err != nil {
			return nil, errs.Persistence(d.TypeID(), nil, "read generated key", err)
		}
		if err := rows.Close(); err != nil {
			return nil, errs.Persistence(d.TypeID(), nil, "insert row", err)
		}
	} else {
		res, err := ex.ExecContext(ctx, st.IdentityInsert, args...)
		if err != nil {
			return nil, errs.Persistence(d.TypeID(), nil, "insert row", err)
		}
		if err := expectOne(res, d, nil, "insert row"); err != nil {
			return nil, err
		}
		lastID, err := res.LastInsertId()
		if err != nil {
			return nil, errs.Persistence(d.TypeID(), nil, "read generated key", err)
		}
		id = lastID
	}

	id = entity.NormalizeID(id)
	if err := d.SetID(record, id); err != nil {
		return nil, err
	}
	return id, nil
}

// Update rewrites the non-identifier columns of the row keyed by id.
func (p *Persister) Update(ctx context.Context, ex Executor, d *entity.Descriptor, id any, record any) error {
	st := p.Statements(d)
	args := d.Values(record)
	if len(args) == 0 {
		args = append(args, id)
	}
	args = append(args, id)
	res, err := ex.ExecContext(ctx, st.Update, args...)
	if err != nil {
		return errs.Persistence(d.TypeID(), id, "update row", err)
	}
	return expectOne(res, d, id, "update row")
}

// Delete removes the row keyed by id.
func (p *Persister) Delete(ctx context.Context, ex Executor, d *entity.Descriptor, id any) error {
	st := p.Statements(d)
	res, err := ex.ExecContext(ctx, st.Delete, id)
	if err != nil {
		return errs.Persistence(d.TypeID(), id, "delete row", err)
	}
	return expectOne(res, d, id, "delete row")
}

// NextSequenceValue fetches the next identifier from the shared sequence.
func (p *Persister) NextSequenceValue(ctx context.Context, ex Executor, d *entity.Descriptor) (any, error) {
	if p.dialect.AdvanceSequenceSQL != "" {
		if _, err := ex.ExecContext(ctx, p.dialect.AdvanceSequenceSQL); err != nil {
			return nil, errs.Persistence(d.TypeID(), nil, "advance sequence", err)
		}
	}
	rows, err := ex.QueryContext(ctx, p.dialect.NextSequenceSQL)
	if err != nil {
		return nil, errs.Persistence(d.TypeID(), nil, "next sequence value", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, errs.Persistence(d.TypeID(), nil, "next sequence value", err)
		}
		return nil, errs.Persistence(d.TypeID(), nil, "next sequence value: sequence returned no row", nil)
	}
	// Scanned as int64: text-protocol drivers return untyped bytes.
	var v int64
	if err := rows.Scan(&v); err != nil {
		return nil, errs.Persistence(d.TypeID(), nil, "next sequence value", err)
	}
	if err := rows.Close(); err != nil {
		return nil, errs.Persistence(d.TypeID(), nil, "next sequence value", err)
	}
	return v, nil
}

func expectOne(res sql.Result, d *entity.Descriptor, id any, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errs.Persistence(d.TypeID(), id, op+": rows affected", err)
	}
	if n != 1 {
		return errs.Persistence(d.TypeID(), id, fmt.Sprintf("%s: expected exactly one affected row, got %d", op, n), nil)
	}
	return nil
}
