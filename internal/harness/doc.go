// Package harness runs unit-of-work scenarios against an in-memory SQLite
// database and checks the resulting trace and table contents.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: dirty_check
//	description: "A changed column is written at close"
//	mappings:
//	  - ../mappings/people.yaml
//	schema: |
//	  CREATE TABLE persons (id INTEGER PRIMARY KEY, first_name TEXT, last_name TEXT);
//	setup:
//	  - table: persons
//	    row: {id: 1, first_name: Andrii, last_name: Bobrov}
//	sessions:
//	  - steps:
//	      - {op: find, entity: Person, id: 1, as: p}
//	      - {op: set, record: p, values: {first_name: Andrii2}}
//	      - {op: close}
//	assertions:
//	  - type: trace_count
//	    event: action executed
//	    attrs: {action: update}
//	    count: 1
//	  - type: final_state
//	    table: persons
//	    where: {id: 1}
//	    expect: {first_name: Andrii2}
//
// Mapping paths are relative to the scenario file. Sessions run one after
// another; a session whose steps do not close it is closed at the end.
//
// # Steps
//
//   - find: load entity by id; expect.found and expect.values check the result
//   - persist: create a record of entity from values
//   - set: assign values to a named record without telling the session
//   - update, delete: pass a named record to the session
//   - flush, close: flush or close the session
//   - read_only: switch read-only mode
//
// Any step may set expect.error to the error code it must fail with.
//
// # Trace
//
// The trace is the session's debug log: every record the session logs
// becomes a TraceEvent with its message and attributes, interleaved with one
// "step" event per executed step. Session identifiers are fixed
// (session-1, session-2, ...) so traces are reproducible and can be
// compared against golden files with RunWithGolden.
//
// # Assertion Types
//
//   - trace_contains: an event with the given message and attributes exists
//   - trace_order: the given events appear in order
//   - trace_count: an event appears exactly count times
//   - final_state: exactly one row matches where and has the expected values,
//     or no row matches when absent is set
package harness
