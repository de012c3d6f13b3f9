package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a unit-of-work test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Mappings lists entity mapping files or directories.
	// Relative paths are resolved against the scenario file's directory.
	Mappings []string `yaml:"mappings"`

	// Schema is the DDL that creates the mapped tables.
	Schema string `yaml:"schema"`

	// Setup rows are inserted directly, before any session starts.
	Setup []SetupRow `yaml:"setup,omitempty"`

	// Sessions run in order, each on a fresh session.
	Sessions []SessionSpec `yaml:"sessions"`

	// Assertions validate the final trace and table contents.
	Assertions []Assertion `yaml:"assertions"`
}

// SetupRow is one row inserted before the sessions run.
type SetupRow struct {
	Table string         `yaml:"table"`
	Row   map[string]any `yaml:"row"`
}

// SessionSpec is the list of steps run on one session.
type SessionSpec struct {
	Steps []Step `yaml:"steps"`
}

// Step is one session operation.
type Step struct {
	// Op is one of the Op* constants.
	Op string `yaml:"op"`

	// Entity is the type name (find, persist).
	Entity string `yaml:"entity,omitempty"`

	// ID is the identifier to find.
	ID any `yaml:"id,omitempty"`

	// As names the found or persisted record for later steps.
	As string `yaml:"as,omitempty"`

	// Record refers to a record named by an earlier As (set, update, delete).
	Record string `yaml:"record,omitempty"`

	// Values are column assignments (persist, set).
	Values map[string]any `yaml:"values,omitempty"`

	// ReadOnly is the mode to switch to (read_only).
	ReadOnly *bool `yaml:"read_only,omitempty"`

	// Expect checks the step's outcome.
	Expect *StepExpect `yaml:"expect,omitempty"`
}

// StepExpect specifies the expected outcome of a step.
type StepExpect struct {
	// Error is the error code the step must fail with (e.g. ILLEGAL_STATE).
	Error string `yaml:"error,omitempty"`

	// Found checks whether find returned a record.
	Found *bool `yaml:"found,omitempty"`

	// Values are expected column values of the found or persisted record.
	// Subset match - only specified columns are validated.
	Values map[string]any `yaml:"values,omitempty"`

	// ID is the identifier persist must assign.
	ID any `yaml:"id,omitempty"`
}

// Step operations.
const (
	OpFind     = "find"
	OpPersist  = "persist"
	OpSet      = "set"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpFlush    = "flush"
	OpClose    = "close"
	OpReadOnly = "read_only"
)

// TraceMatch selects trace events by message and attributes.
type TraceMatch struct {
	Event string         `yaml:"event"`
	Attrs map[string]any `yaml:"attrs,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an event matching Event and Attrs exists
	// - "trace_order": the events in Events appear in order
	// - "trace_count": Event with Attrs appears exactly Count times
	// - "final_state": query Table and verify expected values
	Type string `yaml:"type"`

	// Event is the event message (trace_contains, trace_count).
	Event string `yaml:"event,omitempty"`

	// Attrs are the expected event attributes.
	// Subset match - only specified attributes are validated.
	Attrs map[string]any `yaml:"attrs,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Events is the expected event order (trace_order).
	Events []TraceMatch `yaml:"events,omitempty"`

	// Table is the table name (final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (final_state).
	// All fields must match exactly.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected column values (final_state).
	// Subset match - only specified columns are validated.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Absent requires that no row matches Where (final_state).
	Absent bool `yaml:"absent,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve mapping paths relative to the scenario file BEFORE validation
	base := filepath.Dir(path)
	for i, m := range scenario.Mappings {
		if !filepath.IsAbs(m) {
			scenario.Mappings[i] = filepath.Join(base, m)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks required fields and step/assertion shapes.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Mappings) == 0 {
		return fmt.Errorf("at least one mapping is required")
	}
	if len(s.Sessions) == 0 {
		return fmt.Errorf("at least one session is required")
	}
	for i, row := range s.Setup {
		if row.Table == "" || len(row.Row) == 0 {
			return fmt.Errorf("setup[%d]: table and row are required", i)
		}
	}
	for i, sess := range s.Sessions {
		if len(sess.Steps) == 0 {
			return fmt.Errorf("sessions[%d]: at least one step is required", i)
		}
		for j, step := range sess.Steps {
			if err := validateStep(step); err != nil {
				return fmt.Errorf("sessions[%d].steps[%d]: %w", i, j, err)
			}
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a, i); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step Step) error {
	switch step.Op {
	case OpFind:
		if step.Entity == "" || step.ID == nil {
			return fmt.Errorf("find requires entity and id")
		}
	case OpPersist:
		if step.Entity == "" {
			return fmt.Errorf("persist requires entity")
		}
	case OpSet:
		if step.Record == "" || len(step.Values) == 0 {
			return fmt.Errorf("set requires record and values")
		}
	case OpUpdate, OpDelete:
		if step.Record == "" {
			return fmt.Errorf("%s requires record", step.Op)
		}
	case OpReadOnly:
		if step.ReadOnly == nil {
			return fmt.Errorf("read_only requires read_only: true|false")
		}
	case OpFlush, OpClose:
	case "":
		return fmt.Errorf("op is required")
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	if step.Expect != nil && step.Expect.Found != nil && step.Op != OpFind {
		return fmt.Errorf("expect.found only applies to find")
	}
	return nil
}

// validateAssertion checks that an assertion has required fields for its type.
func validateAssertion(a Assertion, index int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 && !a.Absent {
			return fmt.Errorf("assertions[%d]: expect or absent is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
