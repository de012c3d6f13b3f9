// Package storetest provides a recording database/sql driver for tests that
// need to observe statements or inject store failures without a real server.
package storetest

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

// Call is one interaction observed by the stub.
type Call struct {
	Kind  string // "exec", "query", "begin", "commit" or "rollback"
	Query string
	Args  []any
}

// Result is the scripted outcome of a statement.
type Result struct {
	Columns      []string
	Rows         [][]driver.Value
	RowsAffected int64
	LastInsertID int64
	Err          error
}

// Handler scripts the outcome of a statement. kind is "exec" or "query".
type Handler func(kind, query string, args []any) Result

// Conn records every call made through databases opened by NewDB.
type Conn struct {
	mu    sync.Mutex
	calls []Call

	// Handler scripts statement results. When nil, execs affect one row and
	// queries return no rows.
	Handler Handler

	FailBegin    error
	FailCommit   error
	FailRollback error
}

var seq atomic.Int64

// NewDB registers a fresh stub driver and opens a *sql.DB on it.
func NewDB() (*sql.DB, *Conn) {
	conn := &Conn{}
	name := fmt.Sprintf("storetest%d", seq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

// Calls returns a copy of the recorded calls.
func (c *Conn) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Statements returns the SQL text of recorded execs and queries, in order.
func (c *Conn) Statements() []string {
	var out []string
	for _, call := range c.Calls() {
		if call.Kind == "exec" || call.Kind == "query" {
			out = append(out, call.Query)
		}
	}
	return out
}

// Events returns the kinds of all recorded calls, in order.
func (c *Conn) Events() []string {
	var out []string
	for _, call := range c.Calls() {
		out = append(out, call.Kind)
	}
	return out
}

// Reset forgets recorded calls.
func (c *Conn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
}

func (c *Conn) record(kind, query string, args []driver.NamedValue) []any {
	vals := make([]any, len(args))
	for i, a := range args {
		vals[i] = a.Value
	}
	c.mu.Lock()
	c.calls = append(c.calls, Call{Kind: kind, Query: query, Args: vals})
	c.mu.Unlock()
	return vals
}

func (c *Conn) handle(kind, query string, args []any) (Result, bool) {
	c.mu.Lock()
	handler := c.Handler
	c.mu.Unlock()
	if handler == nil {
		return Result{}, false
	}
	return handler(kind, query, args), true
}

type stubDriver struct {
	conn *Conn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return &stubConn{c: d.conn}, nil
}

type stubConn struct {
	c *Conn
}

// Prepare implements driver.Conn.
func (s *stubConn) Prepare(string) (driver.Stmt, error) {
	return nil, fmt.Errorf("storetest: prepare not supported")
}

// Close implements driver.Conn.
func (s *stubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (s *stubConn) Begin() (driver.Tx, error) {
	return s.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx implements driver.ConnBeginTx.
func (s *stubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	s.c.record("begin", "", nil)
	if s.c.FailBegin != nil {
		return nil, s.c.FailBegin
	}
	return &stubTx{c: s.c}, nil
}

// ExecContext implements driver.ExecerContext.
func (s *stubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	vals := s.c.record("exec", query, args)
	res, ok := s.c.handle("exec", query, vals)
	if !ok {
		return stubResult{affected: 1}, nil
	}
	if res.Err != nil {
		return nil, res.Err
	}
	return stubResult{affected: res.RowsAffected, lastID: res.LastInsertID}, nil
}

// QueryContext implements driver.QueryerContext.
func (s *stubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	vals := s.c.record("query", query, args)
	res, _ := s.c.handle("query", query, vals)
	if res.Err != nil {
		return nil, res.Err
	}
	return &stubRows{cols: res.Columns, rows: res.Rows}, nil
}

type stubTx struct {
	c *Conn
}

func (t *stubTx) Commit() error {
	t.c.record("commit", "", nil)
	return t.c.FailCommit
}

func (t *stubTx) Rollback() error {
	t.c.record("rollback", "", nil)
	return t.c.FailRollback
}

type stubResult struct {
	affected int64
	lastID   int64
}

func (r stubResult) LastInsertId() (int64, error) { return r.lastID, nil }
func (r stubResult) RowsAffected() (int64, error) { return r.affected, nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

// HasPrefix reports whether query starts with prefix, ignoring case and
// leading space. Handlers use it to route statements.
func HasPrefix(query, prefix string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), strings.ToUpper(prefix))
}
