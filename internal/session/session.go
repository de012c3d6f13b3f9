package session

import (
	"context"
	"database/sql"
	"log/slog"
	"reflect"
	"time"

	"github.com/roach88/workset/internal/entity"
	"github.com/roach88/workset/internal/errs"
	"github.com/roach88/workset/internal/metrics"
	"github.com/roach88/workset/internal/persister"
)

// Session is one unit of work bound to one connection and transaction.
//
// INVARIANTS:
//   - at most one record per Key (the identity map)
//   - a record is tracked under at most one Key
//   - identity-map iteration follows insertion order, so flushes are
//     deterministic
//
// A Session is not safe for concurrent use.
type Session struct {
	id        string
	registry  *entity.Registry
	persister *persister.Persister
	metrics   *metrics.Collector
	logger    *slog.Logger

	conn *sql.Conn
	tx   *Transaction

	identity  map[Key]any // nil value: cached absent row
	order     []Key
	byRecord  map[any]Key
	snapshots map[Key]Snapshot
	queue     *ActionQueue
	stats     Stats

	readOnly bool
	closed   bool
}

// PendingActions is a copy of the action queue grouped by kind.
type PendingActions struct {
	Inserts []Action
	Updates []Action
	Deletes []Action
}

// Len returns the total number of pending actions.
func (p PendingActions) Len() int {
	return len(p.Inserts) + len(p.Updates) + len(p.Deletes)
}

// Find returns the record of entity typeID with identifier id, or nil if no
// such row exists. Repeated finds for the same identifier, including absent
// ones, are answered from the identity map without touching the store.
func (s *Session) Find(ctx context.Context, typeID string, id any) (any, error) {
	if err := s.ensureOpen("find"); err != nil {
		return nil, err
	}
	d, err := s.registry.Lookup(typeID)
	if err != nil {
		return nil, err
	}
	return s.find(ctx, d, id)
}

// Find is the typed form of Session.Find for entities defined over a Go
// struct T. It returns nil when no row matches.
func Find[T any](ctx context.Context, s *Session, id any) (*T, error) {
	if err := s.ensureOpen("find"); err != nil {
		return nil, err
	}
	d, err := s.registry.ForType(reflect.TypeFor[*T]())
	if err != nil {
		return nil, err
	}
	record, err := s.find(ctx, d, id)
	if err != nil || record == nil {
		return nil, err
	}
	return record.(*T), nil
}

func (s *Session) find(ctx context.Context, d *entity.Descriptor, id any) (any, error) {
	if id == nil {
		return nil, errs.IllegalArgument("find: nil identifier").For(d.TypeID(), nil)
	}
	key := NewKey(d, id)
	if !reflect.TypeOf(key.ID()).Comparable() {
		return nil, errs.IllegalArgument("find: identifier of type %T cannot key the identity map", id).For(d.TypeID(), nil)
	}
	if record, ok := s.identity[key]; ok {
		s.metrics.Hit(d.TypeID())
		s.logger.Debug("identity map hit", "key", key.String(), "absent", record == nil)
		return record, nil
	}

	ex, err := s.executor()
	if err != nil {
		return nil, err
	}
	record, err := s.persister.Load(ctx, ex, d, key.ID())
	if err != nil {
		return nil, err
	}
	s.metrics.Load(d.TypeID(), record != nil)
	s.track(key, record)
	if record != nil && !s.readOnly {
		s.snapshots[key] = takeSnapshot(d, record)
	}
	s.logger.Debug("row loaded", "key", key.String(), "found", record != nil)
	return record, nil
}

// Persist makes a new record managed by the session.
//
// Identity-strategy records are inserted immediately so the generated key can
// be assigned. Sequence-strategy records receive the next sequence value now
// and are written at the next flush. Persisting a record that is already
// tracked is a no-op.
func (s *Session) Persist(ctx context.Context, record any) error {
	if err := s.ensureOpen("persist"); err != nil {
		return err
	}
	if _, ok := s.keyOf(record); ok {
		return nil
	}
	d, err := s.registry.Of(record)
	if err != nil {
		return err
	}
	ex, err := s.executor()
	if err != nil {
		return err
	}

	var key Key
	switch d.Strategy() {
	case entity.Identity:
		id, err := s.persister.InsertIdentity(ctx, ex, d, record)
		if err != nil {
			return err
		}
		key = NewKey(d, id)
		if err := s.claim(key, record); err != nil {
			// The row is already written inside the open transaction.
			return errs.IllegalState("persist: row %s was inserted but its key is already tracked by another record; roll back the transaction", key).For(d.TypeID(), id)
		}
		s.metrics.Action(ActionInsert.String(), d.TypeID())
		s.logger.Debug("row inserted", "key", key.String(), "strategy", d.Strategy().String())
	default:
		id, err := s.persister.NextSequenceValue(ctx, ex, d)
		if err != nil {
			return err
		}
		if err := d.SetID(record, id); err != nil {
			return err
		}
		key = NewKey(d, id)
		if err := s.claim(key, record); err != nil {
			return err
		}
		s.queue.Add(Action{Kind: ActionInsert, Key: key, Record: record})
		s.logger.Debug("insert queued", "key", key.String(), "strategy", d.Strategy().String())
	}
	if !s.readOnly {
		s.snapshots[key] = takeSnapshot(d, record)
	}
	return nil
}

// Update dirty-checks a tracked record against its snapshot and queues an
// Update when any column changed. A record without a snapshot is always
// considered dirty. Records with a pending Insert or Delete are left alone;
// the pending write already covers them.
func (s *Session) Update(record any) error {
	if err := s.ensureOpen("update"); err != nil {
		return err
	}
	key, ok := s.keyOf(record)
	if !ok {
		return errs.IllegalState("update: record is not tracked by this session")
	}
	if s.queue.Has(ActionInsert, key) || s.queue.Has(ActionDelete, key) {
		return nil
	}
	if snap, ok := s.snapshots[key]; ok && snap.Matches(key.Descriptor().Values(record)) {
		return nil
	}
	s.enqueueUpdate(key, record)
	return nil
}

// Delete queues the removal of a tracked record. The record stays in the
// identity map until the Delete executes.
func (s *Session) Delete(record any) error {
	if err := s.ensureOpen("delete"); err != nil {
		return err
	}
	key, ok := s.keyOf(record)
	if !ok {
		return errs.IllegalArgument("delete: record is not tracked by this session")
	}
	if s.queue.Has(ActionDelete, key) {
		return nil
	}
	s.queue.Add(Action{Kind: ActionDelete, Key: key, Record: record})
	s.logger.Debug("delete queued", "key", key.String())
	return nil
}

// Flush dirty-checks every tracked record and executes the action queue.
//
// On error the queue keeps the failed action and everything after it; the
// caller is expected to roll back the transaction and discard the session.
func (s *Session) Flush(ctx context.Context) error {
	if err := s.ensureOpen("flush"); err != nil {
		return err
	}
	return s.flush(ctx)
}

func (s *Session) flush(ctx context.Context) error {
	s.detectChanges()
	if s.queue.Len() == 0 {
		return nil
	}
	ex, err := s.executor()
	if err != nil {
		return err
	}

	pending := s.queue.Len()
	start := time.Now()
	err = s.queue.Execute(ctx, func(ctx context.Context, a Action) error {
		return s.execute(ctx, ex, a)
	})
	s.metrics.ObserveFlush(time.Since(start), err)
	if err != nil {
		s.logger.Debug("flush failed", "remaining", s.queue.Len(), "error", err)
		return err
	}
	s.logger.Debug("flushed", "actions", pending)
	return nil
}

// detectChanges queues an Update for every snapshotted record whose values
// differ from its snapshot.
func (s *Session) detectChanges() {
	for _, key := range s.order {
		record := s.identity[key]
		if record == nil {
			continue
		}
		if s.queue.Has(ActionInsert, key) || s.queue.Has(ActionDelete, key) {
			continue
		}
		snap, ok := s.snapshots[key]
		if !ok {
			continue
		}
		if !snap.Matches(key.Descriptor().Values(record)) {
			s.enqueueUpdate(key, record)
		}
	}
}

func (s *Session) enqueueUpdate(key Key, record any) {
	if s.queue.Has(ActionUpdate, key) {
		return
	}
	s.queue.Add(Action{Kind: ActionUpdate, Key: key, Record: record})
	s.logger.Debug("update queued", "key", key.String())
}

func (s *Session) execute(ctx context.Context, ex persister.Executor, a Action) error {
	d := a.Key.Descriptor()
	switch a.Kind {
	case ActionInsert:
		if err := s.persister.Insert(ctx, ex, d, a.Key.ID(), a.Record); err != nil {
			return err
		}
		s.refreshSnapshot(a.Key, a.Record)
	case ActionUpdate:
		if err := s.persister.Update(ctx, ex, d, a.Key.ID(), a.Record); err != nil {
			return err
		}
		s.refreshSnapshot(a.Key, a.Record)
	case ActionDelete:
		if err := s.persister.Delete(ctx, ex, d, a.Key.ID()); err != nil {
			return err
		}
		s.evict(a.Key)
	}
	s.metrics.Action(a.Kind.String(), d.TypeID())
	s.logger.Debug("action executed", "action", a.Kind.String(), "key", a.Key.String())
	return nil
}

// SetReadOnly switches read-only mode. Records loaded or written while
// read-only get no snapshot and are skipped by automatic change detection.
// Snapshots taken earlier are kept and still move forward when their record
// is written.
func (s *Session) SetReadOnly(readOnly bool) error {
	if err := s.ensureOpen("set read-only"); err != nil {
		return err
	}
	s.readOnly = readOnly
	return nil
}

// Close flushes, commits and releases the connection. If the flush or the
// commit fails the transaction is rolled back, the session is still closed,
// and the error is returned.
func (s *Session) Close(ctx context.Context) error {
	if s.closed {
		return errs.IllegalState("close: session is already closed")
	}
	s.closed = true

	err := s.flush(ctx)
	if err == nil {
		err = s.tx.Commit()
	}
	if err != nil {
		if rbErr := s.tx.Rollback(); rbErr != nil {
			s.logger.Debug("rollback after failed close", "error", rbErr)
		}
	}

	s.clear()
	if cerr := s.conn.Close(); cerr != nil && err == nil {
		err = errs.Connection("release connection", cerr)
	}
	s.metrics.SessionClosed()
	s.logger.Debug("session closed",
		"queries", s.stats.Queries,
		"execs", s.stats.Execs,
		"ok", err == nil,
	)
	return err
}

// ID returns the session identifier used in log records.
func (s *Session) ID() string { return s.id }

// IsClosed reports whether Close has been called.
func (s *Session) IsClosed() bool { return s.closed }

// IsReadOnly reports whether the session is in read-only mode.
func (s *Session) IsReadOnly() bool { return s.readOnly }

// Transaction returns the session's transaction.
func (s *Session) Transaction() *Transaction { return s.tx }

// Stats returns the statements issued through the session so far.
func (s *Session) Stats() Stats { return s.stats }

// Contains reports whether record is tracked by the session.
func (s *Session) Contains(record any) bool {
	_, ok := s.keyOf(record)
	return ok
}

// KeyOf returns the key a tracked record is stored under.
func (s *Session) KeyOf(record any) (Key, bool) {
	return s.keyOf(record)
}

// IdentityMap returns a copy of the identity map. Absent rows appear with a
// nil record.
func (s *Session) IdentityMap() map[Key]any {
	out := make(map[Key]any, len(s.identity))
	for k, v := range s.identity {
		out[k] = v
	}
	return out
}

// Snapshot returns a copy of the snapshot held for key.
func (s *Session) Snapshot(key Key) (Snapshot, bool) {
	snap, ok := s.snapshots[key]
	if !ok {
		return nil, false
	}
	return append(Snapshot(nil), snap...), true
}

// PendingActions returns a copy of the action queue.
func (s *Session) PendingActions() PendingActions {
	return PendingActions{
		Inserts: s.queue.Insertions(),
		Updates: s.queue.Updates(),
		Deletes: s.queue.Deletions(),
	}
}

func (s *Session) ensureOpen(op string) error {
	if s.closed {
		return errs.IllegalState("%s: session is closed", op)
	}
	return nil
}

func (s *Session) executor() (persister.Executor, error) {
	tx, err := s.tx.executor()
	if err != nil {
		return nil, err
	}
	return countingExecutor{ex: tx, stats: &s.stats}, nil
}

// keyOf looks a record up by reference. Only pointers can be tracked.
func (s *Session) keyOf(record any) (Key, bool) {
	if record == nil || reflect.TypeOf(record).Kind() != reflect.Pointer {
		return Key{}, false
	}
	key, ok := s.byRecord[record]
	return key, ok
}

func (s *Session) track(key Key, record any) {
	if _, ok := s.identity[key]; !ok {
		s.order = append(s.order, key)
	}
	s.identity[key] = record
	if record != nil {
		s.byRecord[record] = key
	}
}

// claim tracks a newly persisted record. A cached absent entry under the same
// key is replaced; a different live record is an error.
func (s *Session) claim(key Key, record any) error {
	if existing := s.identity[key]; existing != nil && existing != record {
		return errs.IllegalState("key %s is already tracked by another record", key)
	}
	s.track(key, record)
	return nil
}

// refreshSnapshot records the values just written. In read-only mode only a
// snapshot taken earlier is moved forward.
func (s *Session) refreshSnapshot(key Key, record any) {
	if _, ok := s.snapshots[key]; !ok && s.readOnly {
		return
	}
	s.snapshots[key] = takeSnapshot(key.Descriptor(), record)
}

func (s *Session) evict(key Key) {
	if record := s.identity[key]; record != nil {
		delete(s.byRecord, record)
	}
	delete(s.identity, key)
	delete(s.snapshots, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *Session) clear() {
	s.identity = make(map[Key]any)
	s.order = nil
	s.byRecord = make(map[any]Key)
	s.snapshots = make(map[Key]Snapshot)
	s.queue.Clear()
}
