package harness

import (
	"context"
	"log/slog"
	"sync"
)

// TraceEvent is one entry of a scenario trace: a session log record or a
// step marker.
type TraceEvent struct {
	Seq     int64          `json:"seq"`
	Session string         `json:"session,omitempty"`
	Event   string         `json:"event"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace contains the session events in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// recorder appends events to a result with a logical sequence number.
type recorder struct {
	mu     sync.Mutex
	seq    int64
	result *Result
}

func (r *recorder) add(session, event string, attrs map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	if len(attrs) == 0 {
		attrs = nil
	}
	r.result.Trace = append(r.result.Trace, TraceEvent{
		Seq:     r.seq,
		Session: session,
		Event:   event,
		Attrs:   attrs,
	})
}

// traceHandler is a slog.Handler that turns log records into trace events.
// The "session" attribute becomes TraceEvent.Session.
type traceHandler struct {
	rec   *recorder
	attrs []slog.Attr
}

func (h *traceHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *traceHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	var session string
	add := func(a slog.Attr) bool {
		if a.Key == "session" {
			session = a.Value.String()
			return true
		}
		attrs[a.Key] = traceValue(a.Value)
		return true
	}
	for _, a := range h.attrs {
		add(a)
	}
	r.Attrs(add)
	h.rec.add(session, r.Message, attrs)
	return nil
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{rec: h.rec, attrs: append(append([]slog.Attr(nil), h.attrs...), attrs...)}
}

// WithGroup is not used by sessions; grouped attributes are recorded flat.
func (h *traceHandler) WithGroup(string) slog.Handler { return h }

func traceValue(v slog.Value) any {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.Any()
	case slog.KindDuration, slog.KindTime:
		return v.String()
	default:
		return v.Any()
	}
}
