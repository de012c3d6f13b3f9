package harness

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceHandler(t *testing.T) {
	result := NewResult()
	logger := slog.New(&traceHandler{rec: &recorder{result: result}})

	logger.With("session", "s-1").Debug("flush failed", "error", errors.New("boom"), "actions", 2)
	logger.Info("bare")
	logger.With("session", "s-2").WithGroup("g").Debug("grouped", "took", time.Second)

	require.Len(t, result.Trace, 3)

	assert.Equal(t, TraceEvent{
		Seq:     1,
		Session: "s-1",
		Event:   "flush failed",
		Attrs:   map[string]any{"error": "boom", "actions": int64(2)},
	}, result.Trace[0])

	assert.Equal(t, int64(2), result.Trace[1].Seq)
	assert.Empty(t, result.Trace[1].Session)
	assert.Nil(t, result.Trace[1].Attrs)

	assert.Equal(t, "s-2", result.Trace[2].Session)
	assert.Equal(t, map[string]any{"took": "1s"}, result.Trace[2].Attrs)
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)
	r.AddError("first")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"first"}, r.Errors)
}
