package session

import (
	"context"
	"database/sql/driver"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/workset/internal/entity"
	"github.com/roach88/workset/internal/store"
	"github.com/roach88/workset/internal/store/storetest"
)

type person struct {
	ID        int64
	FirstName string
	LastName  string
}

type address struct {
	ID          int64
	City        string
	AddressLine string
}

func personDescriptor() *entity.Descriptor {
	return entity.Define[person]("Person", "persons").
		ID("ID", "id", entity.Sequence, func(p *person) any { return &p.ID }).
		Column("FirstName", "first_name", func(p *person) any { return &p.FirstName }).
		Column("LastName", "last_name", func(p *person) any { return &p.LastName }).
		MustBuild()
}

func addressDescriptor() *entity.Descriptor {
	return entity.Define[address]("Address", "address").
		ID("ID", "id", entity.Identity, func(a *address) any { return &a.ID }).
		Column("City", "city", func(a *address) any { return &a.City }).
		Column("AddressLine", "address_line", func(a *address) any { return &a.AddressLine }).
		MustBuild()
}

const testSchema = `
CREATE TABLE persons (id INTEGER PRIMARY KEY, first_name TEXT, last_name TEXT);
CREATE TABLE address (id INTEGER PRIMARY KEY AUTOINCREMENT, city TEXT, address_line TEXT);
`

func newTestRegistry(t *testing.T) *entity.Registry {
	t.Helper()
	reg, err := entity.NewRegistry(personDescriptor(), addressDescriptor())
	require.NoError(t, err)
	return reg
}

// createTestFactory opens a SQLite store with the test schema.
//
// The store allows one connection, so a test must close a session before
// creating the next one or touching st.DB() directly.
func createTestFactory(t *testing.T, opts ...Option) (*Factory, *store.Store) {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, store.Config{DSN: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.ApplyScript(ctx, testSchema))

	f, err := FromStore(st, newTestRegistry(t), opts...)
	require.NoError(t, err)
	return f, st
}

// createTestSession opens a session that is closed at test cleanup if the
// test left it open.
func createTestSession(t *testing.T, f *Factory) *Session {
	t.Helper()
	s, err := f.CreateSession(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() {
		if !s.IsClosed() {
			_ = s.Close(context.Background())
		}
	})
	return s
}

func seedPerson(t *testing.T, st *store.Store, id int64, first, last string) {
	t.Helper()
	_, err := st.DB().Exec(`INSERT INTO persons (id, first_name, last_name) VALUES (?, ?, ?)`, id, first, last)
	require.NoError(t, err)
}

func countRows(t *testing.T, st *store.Store, table string) int {
	t.Helper()
	var n int
	require.NoError(t, st.DB().QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

// createStubFactory builds a factory over the recording stub driver. rows
// answers SELECTs on persons by id; the sequence counts up from 100.
func createStubFactory(t *testing.T, rows map[int64][2]string, opts ...Option) (*Factory, *storetest.Conn) {
	t.Helper()
	db, stub := storetest.NewDB()
	t.Cleanup(func() { db.Close() })

	seq := int64(100)
	stub.Handler = func(kind, query string, args []any) storetest.Result {
		if kind != "query" {
			return storetest.Result{RowsAffected: 1}
		}
		switch {
		case storetest.HasPrefix(query, "UPDATE orm_sequence"):
			seq++
			return storetest.Result{Columns: []string{"value"}, Rows: [][]driver.Value{{seq}}}
		case storetest.HasPrefix(query, "SELECT * FROM persons"):
			res := storetest.Result{Columns: []string{"id", "first_name", "last_name"}}
			id := args[0].(int64)
			if r, ok := rows[id]; ok {
				res.Rows = [][]driver.Value{{id, r[0], r[1]}}
			}
			return res
		}
		return storetest.Result{}
	}

	f, err := NewFactory(db, newTestRegistry(t), opts...)
	require.NoError(t, err)
	return f, stub
}

// writes filters recorded statements down to row writes.
func writes(stub *storetest.Conn) []string {
	var out []string
	for _, call := range stub.Calls() {
		if call.Kind == "exec" {
			out = append(out, call.Query)
		}
	}
	return out
}
