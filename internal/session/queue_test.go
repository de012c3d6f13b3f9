package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionQueue_ExecutesByKindThenFIFO(t *testing.T) {
	d := personDescriptor()
	q := NewActionQueue()
	q.Add(Action{Kind: ActionDelete, Key: NewKey(d, 1)})
	q.Add(Action{Kind: ActionUpdate, Key: NewKey(d, 2)})
	q.Add(Action{Kind: ActionInsert, Key: NewKey(d, 3)})
	q.Add(Action{Kind: ActionUpdate, Key: NewKey(d, 4)})
	q.Add(Action{Kind: ActionInsert, Key: NewKey(d, 5)})
	assert.Equal(t, 5, q.Len())

	var got []string
	err := q.Execute(context.Background(), func(_ context.Context, a Action) error {
		got = append(got, a.Kind.String()+" "+a.Key.String())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"insert Person#3",
		"insert Person#5",
		"update Person#2",
		"update Person#4",
		"delete Person#1",
	}, got)
	assert.Zero(t, q.Len())
	assert.False(t, q.Has(ActionInsert, NewKey(d, 3)))
}

func TestActionQueue_FailFastKeepsRemainder(t *testing.T) {
	d := personDescriptor()
	q := NewActionQueue()
	q.Add(Action{Kind: ActionInsert, Key: NewKey(d, 1)})
	q.Add(Action{Kind: ActionUpdate, Key: NewKey(d, 2)})
	q.Add(Action{Kind: ActionUpdate, Key: NewKey(d, 3)})
	q.Add(Action{Kind: ActionDelete, Key: NewKey(d, 4)})

	boom := errors.New("boom")
	var ran []string
	err := q.Execute(context.Background(), func(_ context.Context, a Action) error {
		ran = append(ran, a.Key.String())
		if a.Key.ID() == int64(2) {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"Person#1", "Person#2"}, ran)

	assert.Empty(t, q.Insertions())
	updates := q.Updates()
	require.Len(t, updates, 2)
	assert.Equal(t, NewKey(d, 2), updates[0].Key)
	assert.Len(t, q.Deletions(), 1)
	assert.False(t, q.Has(ActionInsert, NewKey(d, 1)))
	assert.True(t, q.Has(ActionUpdate, NewKey(d, 2)))
	assert.True(t, q.Has(ActionDelete, NewKey(d, 4)))
}

func TestActionQueue_StopsOnCancelledContext(t *testing.T) {
	d := personDescriptor()
	q := NewActionQueue()
	q.Add(Action{Kind: ActionInsert, Key: NewKey(d, 1)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := q.Execute(ctx, func(context.Context, Action) error {
		t.Fatal("action must not run")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, q.Len())
}

func TestActionQueue_Clear(t *testing.T) {
	d := personDescriptor()
	q := NewActionQueue()
	q.Add(Action{Kind: ActionInsert, Key: NewKey(d, 1)})
	q.Clear()
	assert.Zero(t, q.Len())
	assert.False(t, q.Has(ActionInsert, NewKey(d, 1)))
}

func TestKey(t *testing.T) {
	d := personDescriptor()
	other := personDescriptor()

	assert.Equal(t, NewKey(d, 1), NewKey(d, int64(1)))
	assert.Equal(t, NewKey(d, uint16(1)), NewKey(d, int32(1)))
	assert.NotEqual(t, NewKey(d, 1), NewKey(other, 1))
	assert.NotEqual(t, NewKey(d, 1), NewKey(d, "1"))
	assert.Equal(t, NewKey(d, []byte("a")), NewKey(d, "a"))
	assert.Equal(t, "Person#7", NewKey(d, 7).String())
	assert.Same(t, d, NewKey(d, 7).Descriptor())
}

func TestSnapshot_Matches(t *testing.T) {
	snap := Snapshot{"Andrii", []byte("x"), nil}
	assert.True(t, snap.Matches([]any{"Andrii", []byte("x"), nil}))
	assert.False(t, snap.Matches([]any{"Andrii2", []byte("x"), nil}))
	assert.False(t, snap.Matches([]any{"Andrii", []byte("y"), nil}))
	assert.False(t, snap.Matches([]any{"Andrii", []byte("x"), "now set"}))
	assert.False(t, snap.Matches([]any{"Andrii"}))
}

func TestActionKind_String(t *testing.T) {
	assert.Equal(t, "insert", ActionInsert.String())
	assert.Equal(t, "update", ActionUpdate.String())
	assert.Equal(t, "delete", ActionDelete.String())
	assert.Equal(t, "unknown", ActionKind(0).String())
}
