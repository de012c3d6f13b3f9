package harness

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/roach88/workset/internal/entity"
	"github.com/roach88/workset/internal/errs"
	"github.com/roach88/workset/internal/session"
	"github.com/roach88/workset/internal/store"
)

// Harness is the scenario execution engine.
type Harness struct {
	store    *store.Store
	factory  *session.Factory
	registry *entity.Registry
	rec      *recorder
	records  map[string]any
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation. The
// returned error reports a scenario that could not be set up; failed steps
// and assertions are recorded in Result.Errors.
//
// Execution flow:
// 1. Create fresh in-memory database and apply the schema
// 2. Load the entity mappings
// 3. Insert setup rows
// 4. Run each session's steps, checking step expectations
// 5. Evaluate assertions against the trace and the tables
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	// The store keeps a single connection, which keeps the in-memory
	// database alive between sessions.
	st, err := store.Open(ctx, store.Config{Driver: store.DefaultDriver, DSN: ":memory:"})
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	if scenario.Schema != "" {
		if err := st.ApplyScript(ctx, scenario.Schema); err != nil {
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	var descs []*entity.Descriptor
	for _, path := range scenario.Mappings {
		d, err := entity.LoadMappings(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load mappings: %w", err)
		}
		descs = append(descs, d...)
	}
	registry, err := entity.NewRegistry(descs...)
	if err != nil {
		return nil, fmt.Errorf("failed to build registry: %w", err)
	}

	result := NewResult()
	rec := &recorder{result: result}
	ids := make([]string, len(scenario.Sessions))
	for i := range ids {
		ids[i] = fmt.Sprintf("session-%d", i+1)
	}
	factory, err := session.FromStore(st, registry,
		session.WithLogger(slog.New(&traceHandler{rec: rec})),
		session.WithIDGenerator(session.NewFixedGenerator(ids...)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session factory: %w", err)
	}

	h := &Harness{
		store:    st,
		factory:  factory,
		registry: registry,
		rec:      rec,
		records:  make(map[string]any),
	}

	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	for i, spec := range scenario.Sessions {
		if err := h.runSession(ctx, i, spec, result); err != nil {
			return nil, err
		}
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// executeSetup inserts the setup rows.
func (h *Harness) executeSetup(ctx context.Context, rows []SetupRow) error {
	for i, row := range rows {
		if !validIdentifier.MatchString(row.Table) {
			return fmt.Errorf("setup[%d]: invalid table name %q", i, row.Table)
		}
		cols := make([]string, 0, len(row.Row))
		for c := range row.Row {
			if !validIdentifier.MatchString(c) {
				return fmt.Errorf("setup[%d]: invalid column name %q", i, c)
			}
			cols = append(cols, c)
		}
		sort.Strings(cols)

		args := make([]any, len(cols))
		marks := make([]string, len(cols))
		for j, c := range cols {
			args[j] = normalizeValue(row.Row[c])
			marks[j] = "?"
		}
		query := fmt.Sprintf("INSERT INTO %s(%s) VALUES(%s)", row.Table, strings.Join(cols, ", "), strings.Join(marks, ", "))
		if _, err := h.store.DB().ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	return nil
}

// runSession runs one session's steps. A step that fails unexpectedly ends
// the session; it is then closed without checking the close error.
func (h *Harness) runSession(ctx context.Context, index int, spec SessionSpec, result *Result) error {
	s, err := h.factory.CreateSession(ctx)
	if err != nil {
		return fmt.Errorf("sessions[%d]: failed to create session: %w", index, err)
	}

	for j, step := range spec.Steps {
		h.rec.add(s.ID(), "step", stepAttrs(step))
		err := h.executeStep(ctx, s, step)
		if msg := checkStep(step, err); msg != "" {
			result.AddError(fmt.Sprintf("sessions[%d].steps[%d] (%s): %s", index, j, step.Op, msg))
			break
		}
	}

	if !s.IsClosed() {
		h.rec.add(s.ID(), "step", map[string]any{"op": OpClose, "implicit": true})
		if err := s.Close(ctx); err != nil {
			result.AddError(fmt.Sprintf("sessions[%d]: implicit close: %v", index, err))
		}
	}
	return nil
}

func stepAttrs(step Step) map[string]any {
	attrs := map[string]any{"op": step.Op}
	if step.Entity != "" {
		attrs["entity"] = step.Entity
	}
	if step.ID != nil {
		attrs["id"] = normalizeValue(step.ID)
	}
	if step.Record != "" {
		attrs["record"] = step.Record
	}
	return attrs
}

// executeStep performs one step. Expectations on the record it produces are
// checked here; the error is checked by checkStep.
func (h *Harness) executeStep(ctx context.Context, s *session.Session, step Step) error {
	switch step.Op {
	case OpFind:
		record, err := s.Find(ctx, step.Entity, normalizeValue(step.ID))
		if err != nil {
			return err
		}
		if step.Expect != nil && step.Expect.Found != nil && *step.Expect.Found != (record != nil) {
			return expectationError("found = %v, want %v", record != nil, *step.Expect.Found)
		}
		if record != nil {
			if step.As != "" {
				h.records[step.As] = record
			}
			if step.Expect != nil {
				return checkValues(record, step.Expect.Values)
			}
		}
		return nil

	case OpPersist:
		d, err := h.registry.Lookup(step.Entity)
		if err != nil {
			return err
		}
		record := d.New()
		if err := assignValues(record, step.Values); err != nil {
			return err
		}
		if err := s.Persist(ctx, record); err != nil {
			return err
		}
		if step.As != "" {
			h.records[step.As] = record
		}
		if step.Expect != nil && step.Expect.ID != nil {
			if got, want := d.ID(record), normalizeValue(step.Expect.ID); !entity.Equal(got, want) {
				return expectationError("id = %v, want %v", got, want)
			}
		}
		return nil

	case OpSet:
		record, err := h.record(step.Record)
		if err != nil {
			return err
		}
		return assignValues(record, step.Values)

	case OpUpdate:
		record, err := h.record(step.Record)
		if err != nil {
			return err
		}
		return s.Update(record)

	case OpDelete:
		record, err := h.record(step.Record)
		if err != nil {
			return err
		}
		return s.Delete(record)

	case OpFlush:
		return s.Flush(ctx)

	case OpClose:
		return s.Close(ctx)

	case OpReadOnly:
		return s.SetReadOnly(*step.ReadOnly)
	}
	return fmt.Errorf("unknown op %q", step.Op)
}

func (h *Harness) record(name string) (any, error) {
	record, ok := h.records[name]
	if !ok {
		return nil, fmt.Errorf("no record named %q", name)
	}
	return record, nil
}

// checkStep compares a step's error with its expectation and returns a
// failure message, or "" when the step behaved as expected.
func checkStep(step Step, err error) string {
	want := ""
	if step.Expect != nil {
		want = step.Expect.Error
	}
	switch {
	case err == nil && want == "":
		return ""
	case err == nil:
		return fmt.Sprintf("expected error %s, got success", want)
	case want == "":
		return err.Error()
	case string(errs.CodeOf(err)) != want:
		return fmt.Sprintf("expected error %s, got %v", want, err)
	}
	return ""
}

func expectationError(format string, args ...any) error {
	return fmt.Errorf("expectation failed: "+format, args...)
}

func assignValues(record any, values map[string]any) error {
	row, ok := record.(*entity.Row)
	if !ok {
		return fmt.Errorf("record %T is not a mapped row", record)
	}
	for col, v := range values {
		if err := row.Set(col, normalizeValue(v)); err != nil {
			return err
		}
	}
	return nil
}

func checkValues(record any, want map[string]any) error {
	if len(want) == 0 {
		return nil
	}
	row, ok := record.(*entity.Row)
	if !ok {
		return fmt.Errorf("record %T is not a mapped row", record)
	}
	cols := make([]string, 0, len(want))
	for c := range want {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	for _, c := range cols {
		got, ok := row.Get(c)
		if !ok {
			return expectationError("no column %q", c)
		}
		if !stateValuesEqual(want[c], got) {
			return expectationError("%s = %v (type %T), want %v", c, got, got, want[c])
		}
	}
	return nil
}

// normalizeValue converts YAML-decoded values to the types the store returns.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case float64:
		if x == float64(int64(x)) {
			return int64(x)
		}
		return x
	default:
		return v
	}
}
