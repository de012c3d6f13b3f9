package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/workset/internal/entity"
	"github.com/roach88/workset/internal/errs"
)

func peopleDescriptor(t *testing.T) *entity.Descriptor {
	t.Helper()
	descs, err := entity.LoadMappings("testdata/mappings/people.yaml")
	require.NoError(t, err)
	return descs[0]
}

func TestParseID(t *testing.T) {
	assert.Equal(t, int64(42), parseID("42"))
	assert.Equal(t, int64(-1), parseID("-1"))
	assert.Equal(t, "abc", parseID("abc"))
	assert.Equal(t, "4.5", parseID("4.5"))
}

func TestParseAssignments(t *testing.T) {
	d := peopleDescriptor(t)

	got, err := parseAssignments(d, []string{
		"first_name=Andrii",
		"last_name=",
		"age:=36",
		"FIRST_NAME=x=y",
	})
	require.NoError(t, err)
	assert.Equal(t, []assignment{
		{Column: "first_name", Value: "Andrii"},
		{Column: "last_name", Value: ""},
		{Column: "age", Value: int64(36)},
		{Column: "first_name", Value: "x=y"},
	}, got)

	got, err = parseAssignments(d, []string{`age:=null`, `last_name:="quoted"`, `age:=1.5`, `age:=true`})
	require.NoError(t, err)
	assert.Equal(t, []any{nil, "quoted", 1.5, true}, []any{got[0].Value, got[1].Value, got[2].Value, got[3].Value})
}

func TestParseAssignments_Errors(t *testing.T) {
	d := peopleDescriptor(t)
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"no equals", "first_name", "want column=value"},
		{"empty column", "=x", "want column=value"},
		{"empty typed column", ":=1", "empty column"},
		{"unknown column", "middle_name=x", `no column "middle_name"`},
		{"identifier", "id=5", "cannot be set"},
		{"bad json", "age:={", "column \"age\""},
		{"object", `age:={"a":1}`, "unsupported value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseAssignments(d, []string{tt.raw})
			require.Error(t, err)
			assert.True(t, errs.IsIllegalArgument(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestApply(t *testing.T) {
	d := peopleDescriptor(t)
	rec := d.New()
	require.NoError(t, apply(rec, []assignment{{Column: "first_name", Value: "Ada"}}))
	v, ok := rec.(*entity.Row).Get("first_name")
	require.True(t, ok)
	assert.Equal(t, "Ada", v)

	err := apply(&struct{}{}, nil)
	assert.True(t, errs.IsIllegalArgument(err))
}

func TestRecordResult_String(t *testing.T) {
	r := RecordResult{
		Entity: "Person",
		ID:     int64(7),
		Values: map[string]any{"last_name": "Bobrov", "id": int64(7), "first_name": "Andrii", "age": nil},
	}
	assert.Equal(t, "Person#7\n  age: <nil>\n  first_name: Andrii\n  id: 7\n  last_name: Bobrov", r.String())
}

func TestNewRecordResult_ConvertsBytes(t *testing.T) {
	d := peopleDescriptor(t)
	rec := d.New().(*entity.Row)
	require.NoError(t, d.SetID(rec, int64(3)))
	require.NoError(t, rec.Set("first_name", []byte("Ada")))

	r := newRecordResult(d, rec)
	assert.Equal(t, "Person", r.Entity)
	assert.Equal(t, int64(3), r.ID)
	assert.Equal(t, "Ada", r.Values["first_name"])
}
