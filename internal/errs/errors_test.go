package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "code and message",
			err:  IllegalState("session is closed"),
			want: "ILLEGAL_STATE: session is closed",
		},
		{
			name: "entity only",
			err:  Configuration("no identifier").For("Person", nil),
			want: "CONFIGURATION: no identifier (entity=Person)",
		},
		{
			name: "entity, id and cause",
			err:  Persistence("Person", int64(7), "update row", errors.New("disk full")),
			want: "PERSISTENCE: update row (entity=Person, id=7): disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestPredicates_UnwrapThroughChains(t *testing.T) {
	base := IllegalArgument("detached record")
	wrapped := fmt.Errorf("delete: %w", base)

	assert.True(t, IsIllegalArgument(wrapped))
	assert.False(t, IsIllegalState(wrapped))
	assert.False(t, IsPersistence(wrapped))
	assert.Equal(t, CodeIllegalArgument, CodeOf(wrapped))
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
}

func TestPersistence_UnwrapsCause(t *testing.T) {
	cause := errors.New("constraint failed")
	err := Persistence("Address", "a-1", "insert row", cause)

	require.ErrorIs(t, err, cause)
	assert.True(t, IsPersistence(err))
}

func TestFor_DoesNotMutateReceiver(t *testing.T) {
	base := Configuration("duplicate column %q", "name")
	annotated := base.For("Person", nil)

	assert.Empty(t, base.Entity)
	assert.Equal(t, "Person", annotated.Entity)
	assert.True(t, IsConfiguration(annotated))
}

func TestConnection(t *testing.T) {
	err := Connection("acquire connection", errors.New("refused"))
	assert.True(t, IsConnection(err))
	assert.Equal(t, "CONNECTION: acquire connection: refused", err.Error())
}
