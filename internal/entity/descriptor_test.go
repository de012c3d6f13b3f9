package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/workset/internal/errs"
)

type person struct {
	ID        int64
	FirstName string
	LastName  string
}

func definePerson() *Definition[person] {
	return Define[person]("Person", "persons").
		Column("LastName", "last_name", func(p *person) any { return &p.LastName }).
		ID("ID", "id", Sequence, func(p *person) any { return &p.ID }).
		Column("FirstName", "first_name", func(p *person) any { return &p.FirstName })
}

func TestDefine_OrdersColumnsByFieldName(t *testing.T) {
	d, err := definePerson().Build()
	require.NoError(t, err)

	var names []string
	for _, c := range d.Columns() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"first_name", "id", "last_name"}, names)

	names = names[:0]
	for _, c := range d.ValueColumns() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"first_name", "last_name"}, names)

	assert.Equal(t, "Person", d.TypeID())
	assert.Equal(t, "persons", d.Table())
	assert.Equal(t, "id", d.IDColumn().Name)
	assert.Equal(t, Sequence, d.Strategy())
	assert.Equal(t, "Person(persons)", d.String())
}

func TestDefine_DefaultTypeID(t *testing.T) {
	d, err := Define[person]("", "persons").
		ID("ID", "id", Identity, func(p *person) any { return &p.ID }).
		Build()
	require.NoError(t, err)
	assert.Equal(t, "person", d.TypeID())
}

func TestDescriptor_ValuesAndID(t *testing.T) {
	d := definePerson().MustBuild()
	p := &person{ID: 1, FirstName: "Andrii", LastName: "Bobrov"}

	assert.Equal(t, []any{"Andrii", "Bobrov"}, d.Values(p))
	assert.Equal(t, int64(1), d.ID(p))

	require.NoError(t, d.SetID(p, int64(42)))
	assert.Equal(t, int64(42), p.ID)
}

func TestDescriptor_NewAndAccepts(t *testing.T) {
	d := definePerson().MustBuild()

	rec := d.New()
	_, ok := rec.(*person)
	require.True(t, ok)

	assert.True(t, d.Accepts(rec))
	assert.False(t, d.Accepts((*person)(nil)))
	assert.False(t, d.Accepts(nil))
	assert.False(t, d.Accepts(&struct{}{}))
}

func TestDescriptor_Lookup(t *testing.T) {
	d := definePerson().MustBuild()

	c, ok := d.Lookup("first_name")
	require.True(t, ok)
	assert.Equal(t, "FirstName", c.Field)

	c, ok = d.Lookup("FIRST_NAME")
	require.True(t, ok)
	assert.Equal(t, "first_name", c.Name)

	_, ok = d.Lookup("middle_name")
	assert.False(t, ok)
}

func TestDefine_ConfigurationErrors(t *testing.T) {
	ref := func(p *person) any { return &p.FirstName }
	idRef := func(p *person) any { return &p.ID }

	tests := []struct {
		name string
		def  *Definition[person]
		msg  string
	}{
		{
			name: "no table",
			def:  Define[person]("Person", " ").ID("ID", "id", Identity, idRef),
			msg:  "no table binding",
		},
		{
			name: "no identifier",
			def:  Define[person]("Person", "persons").Column("FirstName", "first_name", ref),
			msg:  "no identifier column",
		},
		{
			name: "two identifiers",
			def: Define[person]("Person", "persons").
				ID("ID", "id", Identity, idRef).
				ID("Other", "other_id", Identity, idRef),
			msg: "2 identifier columns",
		},
		{
			name: "duplicate column",
			def: Define[person]("Person", "persons").
				ID("ID", "id", Identity, idRef).
				Column("FirstName", "name", ref).
				Column("LastName", "name", ref),
			msg: `duplicate column name "name"`,
		},
		{
			name: "duplicate after normalization",
			def: Define[person]("Person", "persons").
				ID("ID", "id", Identity, idRef).
				Column("A", "caf\u00e9", ref).
				Column("B", "cafe\u0301", ref),
			msg: "duplicate column name",
		},
		{
			name: "unknown strategy",
			def:  Define[person]("Person", "persons").ID("ID", "id", Strategy(9), idRef),
			msg:  "unknown strategy",
		},
		{
			name: "missing accessor",
			def: Define[person]("Person", "persons").
				ID("ID", "id", Identity, idRef).
				Column("FirstName", "first_name", nil),
			msg: "has no accessor",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.def.Build()
			require.Error(t, err)
			assert.True(t, errs.IsConfiguration(err), "got %v", err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestMustBuild_Panics(t *testing.T) {
	assert.Panics(t, func() {
		Define[person]("Person", "").MustBuild()
	})
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("IDENTITY")
	require.NoError(t, err)
	assert.Equal(t, Identity, s)

	s, err = ParseStrategy(" sequence ")
	require.NoError(t, err)
	assert.Equal(t, Sequence, s)

	_, err = ParseStrategy("uuid")
	assert.True(t, errs.IsConfiguration(err))

	assert.Equal(t, "identity", Identity.String())
	assert.Equal(t, "strategy(7)", Strategy(7).String())
}
