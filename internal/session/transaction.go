package session

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/roach88/workset/internal/errs"
)

// TxState is the lifecycle state of a Transaction.
type TxState int

const (
	TxInactive TxState = iota
	TxActive
	TxCommitted
	TxRolledBack
)

func (s TxState) String() string {
	switch s {
	case TxInactive:
		return "inactive"
	case TxActive:
		return "active"
	case TxCommitted:
		return "committed"
	case TxRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// Transaction wraps the physical transaction on a session's connection.
//
// States: Inactive -> Active -> {Committed, RolledBack}. Commit and Rollback
// outside Active are no-ops, so calling either twice is safe. Begin from a
// terminal state opens a new physical transaction on the same connection.
type Transaction struct {
	conn   *sql.Conn
	tx     *sql.Tx
	state  TxState
	closed func() bool
	logger *slog.Logger
}

func newTransaction(conn *sql.Conn, closed func() bool, logger *slog.Logger) *Transaction {
	return &Transaction{conn: conn, closed: closed, logger: logger}
}

// State returns the current state.
func (t *Transaction) State() TxState { return t.state }

// IsActive reports whether a physical transaction is open.
func (t *Transaction) IsActive() bool { return t.state == TxActive }

// Begin opens a physical transaction. It fails if the owning session is
// closed or a transaction is already active.
//
// Cancelling ctx does not end the transaction; it lives until Commit or
// Rollback. Each statement is bound to the context of its own call.
func (t *Transaction) Begin(ctx context.Context) error {
	if t.closed() {
		return errs.IllegalState("begin: session is closed")
	}
	if t.state == TxActive {
		return errs.IllegalState("begin: transaction already active")
	}
	tx, err := t.conn.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return errs.Persistence("", nil, "begin transaction", err)
	}
	t.tx = tx
	t.state = TxActive
	t.logger.Debug("transaction begun")
	return nil
}

// Commit commits the active transaction.
func (t *Transaction) Commit() error {
	if t.state != TxActive {
		return nil
	}
	err := t.tx.Commit()
	t.tx = nil
	if err != nil {
		// database/sql considers the transaction finished even when
		// Commit fails.
		t.state = TxRolledBack
		t.logger.Debug("commit failed", "error", err)
		return errs.Persistence("", nil, "commit transaction", err)
	}
	t.state = TxCommitted
	t.logger.Debug("transaction committed")
	return nil
}

// Rollback aborts the active transaction.
func (t *Transaction) Rollback() error {
	if t.state != TxActive {
		return nil
	}
	err := t.tx.Rollback()
	t.tx = nil
	t.state = TxRolledBack
	if err != nil {
		t.logger.Debug("rollback failed", "error", err)
		return errs.Persistence("", nil, "rollback transaction", err)
	}
	t.logger.Debug("transaction rolled back")
	return nil
}

// executor returns the statement surface of the active transaction.
func (t *Transaction) executor() (*sql.Tx, error) {
	if t.state != TxActive {
		return nil, errs.IllegalState("no active transaction (state %s)", t.state)
	}
	return t.tx, nil
}
