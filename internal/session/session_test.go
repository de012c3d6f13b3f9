package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/workset/internal/entity"
	"github.com/roach88/workset/internal/errs"
)

func TestFind_ReturnsSameRecordWithoutReload(t *testing.T) {
	ctx := context.Background()
	f, st := createTestFactory(t)
	seedPerson(t, st, 1, "Andrii", "Bobrov")
	s := createTestSession(t, f)

	first, err := s.Find(ctx, "Person", int64(1))
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, &person{ID: 1, FirstName: "Andrii", LastName: "Bobrov"}, first)
	assert.Equal(t, 1, s.Stats().Queries)

	// int and int64 identifiers address the same key.
	second, err := s.Find(ctx, "Person", 1)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, s.Stats().Queries, "second find must not reach the store")

	typed, err := Find[person](ctx, s, int64(1))
	require.NoError(t, err)
	assert.Same(t, first, typed)
}

func TestFind_CachesAbsent(t *testing.T) {
	ctx := context.Background()
	f, _ := createTestFactory(t)
	s := createTestSession(t, f)

	got, err := s.Find(ctx, "Person", int64(42))
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = s.Find(ctx, "Person", int64(42))
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 1, s.Stats().Queries)

	typed, err := Find[person](ctx, s, int64(42))
	require.NoError(t, err)
	assert.Nil(t, typed)

	m := s.IdentityMap()
	rec, ok := m[NewKey(personDescriptor(), int64(42))]
	assert.False(t, ok, "keys from a different descriptor value must not match")
	assert.Nil(t, rec)

	d, err := f.Registry().Lookup("Person")
	require.NoError(t, err)
	rec, ok = m[NewKey(d, int64(42))]
	assert.True(t, ok)
	assert.Nil(t, rec)
}

func TestFind_Errors(t *testing.T) {
	ctx := context.Background()
	f, _ := createTestFactory(t)
	s := createTestSession(t, f)

	_, err := s.Find(ctx, "Ghost", int64(1))
	assert.True(t, errs.IsConfiguration(err))

	_, err = s.Find(ctx, "Person", nil)
	assert.True(t, errs.IsIllegalArgument(err))

	type stranger struct{ ID int64 }
	_, err = Find[stranger](ctx, s, int64(1))
	assert.True(t, errs.IsConfiguration(err))

	type composite struct{ Parts []int }
	for _, id := range []any{[]int{1}, composite{Parts: []int{1}}, map[string]int{"id": 1}} {
		assert.NotPanics(t, func() {
			_, err = s.Find(ctx, "Person", id)
		})
		assert.True(t, errs.IsIllegalArgument(err), "id %v: %v", id, err)
	}
	assert.Empty(t, s.IdentityMap())
}

func TestFlush_DetectsChangesOnce(t *testing.T) {
	ctx := context.Background()
	f, st := createTestFactory(t)
	seedPerson(t, st, 1, "Andrii", "Bobrov")
	s := createTestSession(t, f)

	rec, err := Find[person](ctx, s, int64(1))
	require.NoError(t, err)
	rec.FirstName = "Andrii2"

	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, 1, s.Stats().Execs)
	assert.Zero(t, s.PendingActions().Len())

	snap, ok := s.Snapshot(mustKey(t, s, rec))
	require.True(t, ok)
	assert.Equal(t, Snapshot{"Andrii2", "Bobrov"}, snap)

	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, 1, s.Stats().Execs, "idempotent flush issues no further updates")
}

func TestUpdate_DirtyCheck(t *testing.T) {
	ctx := context.Background()
	f, st := createTestFactory(t)
	seedPerson(t, st, 1, "Andrii", "Bobrov")
	s := createTestSession(t, f)

	rec, err := Find[person](ctx, s, int64(1))
	require.NoError(t, err)

	require.NoError(t, s.Update(rec))
	assert.Empty(t, s.PendingActions().Updates, "clean record produces no action")

	rec.LastName = "Bobrova"
	require.NoError(t, s.Update(rec))
	require.NoError(t, s.Update(rec))
	updates := s.PendingActions().Updates
	require.Len(t, updates, 1)
	assert.Equal(t, ActionUpdate, updates[0].Kind)
	assert.Same(t, rec, updates[0].Record)

	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, 1, s.Stats().Execs)
}

func TestUntrackedRecords(t *testing.T) {
	ctx := context.Background()
	f, _ := createTestFactory(t)
	s := createTestSession(t, f)

	detached := &person{ID: 1, FirstName: "Andrii"}
	assert.True(t, errs.IsIllegalState(s.Update(detached)))
	assert.True(t, errs.IsIllegalArgument(s.Delete(detached)))
	assert.True(t, errs.IsIllegalArgument(s.Delete(nil)))
	assert.True(t, errs.IsIllegalState(s.Update(person{ID: 1})))
	assert.False(t, s.Contains(detached))

	assert.True(t, errs.IsIllegalArgument(s.Persist(ctx, nil)))
	assert.True(t, errs.IsConfiguration(s.Persist(ctx, &struct{ ID int64 }{})))
}

func TestPersist_IdentityInsertsImmediately(t *testing.T) {
	ctx := context.Background()
	f, st := createTestFactory(t)
	s := createTestSession(t, f)

	a := &address{City: "Lviv", AddressLine: "Shevchenka 1"}
	require.NoError(t, s.Persist(ctx, a))
	assert.NotZero(t, a.ID)
	assert.Equal(t, 1, s.Stats().Execs)
	assert.Zero(t, s.PendingActions().Len())
	assert.True(t, s.Contains(a))

	found, err := Find[address](ctx, s, a.ID)
	require.NoError(t, err)
	assert.Same(t, a, found)

	require.NoError(t, s.Close(ctx))
	assert.Equal(t, 1, countRows(t, st, "address"))
}

func TestPersist_SequenceDefersWrite(t *testing.T) {
	ctx := context.Background()
	f, st := createTestFactory(t)
	s := createTestSession(t, f)

	p := &person{FirstName: "Andrii", LastName: "Bobrov"}
	require.NoError(t, s.Persist(ctx, p))
	assert.Equal(t, int64(1), p.ID)
	assert.Zero(t, s.Stats().Execs, "row write waits for flush")

	inserts := s.PendingActions().Inserts
	require.Len(t, inserts, 1)
	assert.Equal(t, NewKey(mustKey(t, s, p).Descriptor(), int64(1)), inserts[0].Key)

	// Persisting a managed record again is a no-op.
	require.NoError(t, s.Persist(ctx, p))
	assert.Len(t, s.PendingActions().Inserts, 1)

	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, 1, s.Stats().Execs)
	assert.Zero(t, s.PendingActions().Len())

	require.NoError(t, s.Close(ctx))
	assert.Equal(t, 1, countRows(t, st, "persons"))
}

func TestPersist_MutationBeforeFlushIsWrittenByInsert(t *testing.T) {
	ctx := context.Background()
	f, _ := createTestFactory(t)
	s := createTestSession(t, f)

	p := &person{FirstName: "Andrii", LastName: "Bobrov"}
	require.NoError(t, s.Persist(ctx, p))
	p.FirstName = "Andrii2"
	require.NoError(t, s.Update(p))
	assert.Empty(t, s.PendingActions().Updates)
	require.NoError(t, s.Close(ctx))

	s2 := createTestSession(t, f)
	got, err := Find[person](ctx, s2, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Andrii2", got.FirstName)
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	f, _ := createTestFactory(t)

	s := createTestSession(t, f)
	p := &person{FirstName: "Andrii", LastName: "Bobrov"}
	a := &address{City: "Kyiv", AddressLine: "Khreshchatyk 22"}
	require.NoError(t, s.Persist(ctx, p))
	require.NoError(t, s.Persist(ctx, a))
	require.NoError(t, s.Flush(ctx))
	require.NoError(t, s.Close(ctx))

	s2 := createTestSession(t, f)
	gotP, err := Find[person](ctx, s2, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p, gotP)
	assert.NotSame(t, p, gotP)

	gotA, err := s2.Find(ctx, "Address", a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, gotA)
}

func TestScenario_UpdateCommittedOnClose(t *testing.T) {
	ctx := context.Background()
	f, st := createTestFactory(t)
	seedPerson(t, st, 1, "Andrii", "Bobrov")

	s := createTestSession(t, f)
	rec, err := Find[person](ctx, s, int64(1))
	require.NoError(t, err)
	assert.Equal(t, &person{ID: 1, FirstName: "Andrii", LastName: "Bobrov"}, rec)
	rec.FirstName = "Andrii2"
	require.NoError(t, s.Close(ctx))
	assert.Equal(t, TxCommitted, s.Transaction().State())

	s2 := createTestSession(t, f)
	got, err := Find[person](ctx, s2, int64(1))
	require.NoError(t, err)
	assert.Equal(t, "Andrii2", got.FirstName)
}

func TestScenario_DeleteThenFindAbsent(t *testing.T) {
	ctx := context.Background()
	f, st := createTestFactory(t)
	seedPerson(t, st, 1, "Andrii", "Bobrov")

	s := createTestSession(t, f)
	rec, err := Find[person](ctx, s, int64(1))
	require.NoError(t, err)
	require.NoError(t, s.Delete(rec))
	require.NoError(t, s.Flush(ctx))
	require.NoError(t, s.Close(ctx))

	s2 := createTestSession(t, f)
	got, err := Find[person](ctx, s2, int64(1))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDelete_EvictsOnlyAtExecution(t *testing.T) {
	ctx := context.Background()
	f, st := createTestFactory(t)
	seedPerson(t, st, 1, "Andrii", "Bobrov")
	s := createTestSession(t, f)

	rec, err := Find[person](ctx, s, int64(1))
	require.NoError(t, err)
	key := mustKey(t, s, rec)

	require.NoError(t, s.Delete(rec))
	require.NoError(t, s.Delete(rec))
	assert.Len(t, s.PendingActions().Deletes, 1)

	// Staleness window: the pending delete has not executed yet.
	again, err := Find[person](ctx, s, int64(1))
	require.NoError(t, err)
	assert.Same(t, rec, again)

	// A mutation of a record pending deletion is not written.
	rec.FirstName = "ignored"
	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, 1, s.Stats().Execs)

	assert.False(t, s.Contains(rec))
	_, ok := s.IdentityMap()[key]
	assert.False(t, ok)
	_, ok = s.Snapshot(key)
	assert.False(t, ok)
}

func TestReadOnly(t *testing.T) {
	ctx := context.Background()
	f, st := createTestFactory(t)
	seedPerson(t, st, 1, "Andrii", "Bobrov")
	s := createTestSession(t, f)

	require.NoError(t, s.SetReadOnly(true))
	assert.True(t, s.IsReadOnly())

	rec, err := Find[person](ctx, s, int64(1))
	require.NoError(t, err)
	_, ok := s.Snapshot(mustKey(t, s, rec))
	assert.False(t, ok, "read-only loads take no snapshot")

	rec.FirstName = "Andrii2"
	require.NoError(t, s.Flush(ctx))
	assert.Zero(t, s.Stats().Execs, "automatic detection skips records without a snapshot")

	// An explicit update of an unsnapshotted record is unconditionally dirty.
	require.NoError(t, s.Update(rec))
	assert.Len(t, s.PendingActions().Updates, 1)
	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, 1, s.Stats().Execs)
	_, ok = s.Snapshot(mustKey(t, s, rec))
	assert.False(t, ok)
}

func TestReadOnly_EarlierSnapshotMovesForward(t *testing.T) {
	ctx := context.Background()
	f, st := createTestFactory(t)
	seedPerson(t, st, 1, "Andrii", "Bobrov")
	s := createTestSession(t, f)

	rec, err := Find[person](ctx, s, int64(1))
	require.NoError(t, err)
	require.NoError(t, s.SetReadOnly(true))

	rec.FirstName = "Andrii2"
	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, 1, s.Stats().Execs)

	require.NoError(t, s.Flush(ctx))
	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, 1, s.Stats().Execs, "a flushed change is not written again")

	snap, ok := s.Snapshot(mustKey(t, s, rec))
	require.True(t, ok)
	assert.Equal(t, Snapshot{"Andrii2", "Bobrov"}, snap)
}

func TestRowRecords(t *testing.T) {
	ctx := context.Background()
	descs, err := entity.LoadMappings("../entity/testdata/mappings/people.yaml")
	require.NoError(t, err)
	reg, err := entity.NewRegistry(descs...)
	require.NoError(t, err)

	_, st := createTestFactory(t)
	seedPerson(t, st, 50, "Andrii", "Bobrov")
	f, err := FromStore(st, reg)
	require.NoError(t, err)

	s := createTestSession(t, f)
	rec, err := s.Find(ctx, "Person", int64(50))
	require.NoError(t, err)
	row := rec.(*entity.Row)
	require.NoError(t, row.Set("first_name", "Andrii2"))

	fresh := descs[0].New().(*entity.Row)
	require.NoError(t, fresh.Set("first_name", "Olena"))
	require.NoError(t, fresh.Set("last_name", "Bobrova"))
	require.NoError(t, s.Persist(ctx, fresh))
	require.NoError(t, s.Close(ctx))

	s2 := createTestSession(t, f)
	rec, err = s2.Find(ctx, "Person", int64(50))
	require.NoError(t, err)
	v, _ := rec.(*entity.Row).Get("first_name")
	assert.Equal(t, "Andrii2", v)

	id := descs[0].ID(fresh)
	rec, err = s2.Find(ctx, "Person", id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	v, _ = rec.(*entity.Row).Get("last_name")
	assert.Equal(t, "Bobrova", v)
}

func TestClose_RejectsFurtherUse(t *testing.T) {
	ctx := context.Background()
	f, _ := createTestFactory(t)
	s := createTestSession(t, f)
	require.NoError(t, s.Close(ctx))

	assert.True(t, s.IsClosed())
	assert.Empty(t, s.IdentityMap())

	_, err := s.Find(ctx, "Person", int64(1))
	assert.True(t, errs.IsIllegalState(err))
	_, err = Find[person](ctx, s, int64(1))
	assert.True(t, errs.IsIllegalState(err))
	assert.True(t, errs.IsIllegalState(s.Persist(ctx, &person{})))
	assert.True(t, errs.IsIllegalState(s.Update(&person{})))
	assert.True(t, errs.IsIllegalState(s.Delete(&person{})))
	assert.True(t, errs.IsIllegalState(s.Flush(ctx)))
	assert.True(t, errs.IsIllegalState(s.SetReadOnly(true)))
	assert.True(t, errs.IsIllegalState(s.Close(ctx)))
	assert.True(t, errs.IsIllegalState(s.Transaction().Begin(ctx)))
}

func mustKey(t *testing.T, s *Session, record any) Key {
	t.Helper()
	key, ok := s.KeyOf(record)
	require.True(t, ok, "record is not tracked")
	return key
}
