package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/workset/internal/entity"
	"github.com/roach88/workset/internal/errs"
)

// parseID interprets a command-line identifier: integers become int64,
// anything else stays a string.
func parseID(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}

func formatID(id any) string {
	return fmt.Sprint(id)
}

// assignment is one --set column=value pair.
type assignment struct {
	Column string
	Value  any
}

// parseAssignments parses --set flags for d. "col=text" assigns a string;
// "col:=<json>" assigns a JSON-decoded value (numbers become int64 when
// integral, null becomes nil). The identifier column cannot be assigned.
func parseAssignments(d *entity.Descriptor, raw []string) ([]assignment, error) {
	out := make([]assignment, 0, len(raw))
	for _, r := range raw {
		name, value, typed, err := splitAssignment(r)
		if err != nil {
			return nil, err
		}
		c, ok := d.Lookup(name)
		if !ok {
			return nil, errs.IllegalArgument("%s has no column %q", d.TypeID(), name)
		}
		if c.ID {
			return nil, errs.IllegalArgument("identifier column %q cannot be set", c.Name)
		}
		var v any = value
		if typed {
			v, err = decodeJSONValue(value)
			if err != nil {
				return nil, errs.IllegalArgument("column %q: %v", name, err)
			}
		}
		out = append(out, assignment{Column: c.Name, Value: v})
	}
	return out, nil
}

func splitAssignment(r string) (name, value string, typed bool, err error) {
	i := strings.Index(r, "=")
	if i <= 0 {
		return "", "", false, errs.IllegalArgument("invalid assignment %q: want column=value", r)
	}
	name, value = r[:i], r[i+1:]
	if strings.HasSuffix(name, ":") {
		name, typed = strings.TrimSuffix(name, ":"), true
	}
	if name == "" {
		return "", "", false, errs.IllegalArgument("invalid assignment %q: empty column", r)
	}
	return name, value, typed, nil
}

func decodeJSONValue(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
		return x.Float64()
	case string, bool, nil:
		return x, nil
	default:
		return nil, fmt.Errorf("unsupported value %s", s)
	}
}

// apply writes the assignments into record.
func apply(record any, as []assignment) error {
	row, ok := record.(*entity.Row)
	if !ok {
		return errs.IllegalArgument("record %T is not a mapped row", record)
	}
	for _, a := range as {
		if err := row.Set(a.Column, a.Value); err != nil {
			return errs.IllegalArgument("%v", err)
		}
	}
	return nil
}

// RecordResult is the output of get.
type RecordResult struct {
	Entity string         `json:"entity"`
	ID     any            `json:"id"`
	Values map[string]any `json:"values"`
}

func newRecordResult(d *entity.Descriptor, record any) RecordResult {
	values := make(map[string]any)
	if row, ok := record.(*entity.Row); ok {
		values = row.Map()
	}
	for k, v := range values {
		if b, ok := v.([]byte); ok {
			values[k] = string(b)
		}
	}
	return RecordResult{Entity: d.TypeID(), ID: d.ID(record), Values: values}
}

// String renders a header line then one "column: value" line per column in
// name order.
func (r RecordResult) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s#%v", r.Entity, r.ID)
	cols := make([]string, 0, len(r.Values))
	for c := range r.Values {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	for _, c := range cols {
		fmt.Fprintf(&sb, "\n  %s: %v", c, r.Values[c])
	}
	return sb.String()
}

// WriteResult is the output of put, set and delete.
type WriteResult struct {
	Action string `json:"action"` // "inserted", "updated", "unchanged" or "deleted"
	Entity string `json:"entity"`
	ID     any    `json:"id"`
}

func (r WriteResult) String() string {
	return fmt.Sprintf("%s %s#%v", r.Action, r.Entity, r.ID)
}
