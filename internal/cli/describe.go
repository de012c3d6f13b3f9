package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/workset/internal/entity"
	"github.com/roach88/workset/internal/errs"
	"github.com/roach88/workset/internal/persister"
)

// ColumnInfo describes one mapped column.
type ColumnInfo struct {
	Name  string `json:"name"`
	Field string `json:"field"`
	ID    bool   `json:"id,omitempty"`
}

// StatementInfo holds the SQL a session issues for an entity.
type StatementInfo struct {
	Select         string `json:"select"`
	Insert         string `json:"insert"`
	IdentityInsert string `json:"identity_insert"`
	Update         string `json:"update"`
	Delete         string `json:"delete"`
	NextSequence   string `json:"next_sequence,omitempty"`
}

// DescribeResult is the output of describe.
type DescribeResult struct {
	Entity     string        `json:"entity"`
	Table      string        `json:"table"`
	Strategy   string        `json:"strategy"`
	Dialect    string        `json:"dialect"`
	Columns    []ColumnInfo  `json:"columns"`
	Statements StatementInfo `json:"statements"`
}

func (r DescribeResult) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (table %s, %s ids, %s)\n", r.Entity, r.Table, r.Strategy, r.Dialect)
	sb.WriteString("columns:\n")
	for _, c := range r.Columns {
		mark := ""
		if c.ID {
			mark = " [id]"
		}
		fmt.Fprintf(&sb, "  %s <- %s%s\n", c.Name, c.Field, mark)
	}
	sb.WriteString("statements:\n")
	fmt.Fprintf(&sb, "  select: %s\n", r.Statements.Select)
	fmt.Fprintf(&sb, "  insert: %s\n", r.Statements.Insert)
	fmt.Fprintf(&sb, "  identity_insert: %s\n", r.Statements.IdentityInsert)
	fmt.Fprintf(&sb, "  update: %s\n", r.Statements.Update)
	fmt.Fprintf(&sb, "  delete: %s", r.Statements.Delete)
	if r.Statements.NextSequence != "" {
		fmt.Fprintf(&sb, "\n  next_sequence: %s", r.Statements.NextSequence)
	}
	return sb.String()
}

// NewDescribeCommand creates the describe command.
func NewDescribeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "describe <entity>",
		Short: "Show an entity's columns and generated SQL",
		Long: `Show how an entity is mapped and the statements a session issues for it
in the dialect of --driver. No database connection is made.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDescribe(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runDescribe(opts *RootOptions, name string, cmd *cobra.Command) error {
	formatter := newFormatter(cmd, opts)

	registry, err := loadRegistry(opts)
	if err != nil {
		return formatter.Fail("load mappings", err)
	}
	d, err := registry.Lookup(name)
	if err != nil {
		return formatter.Fail("describe", errs.IllegalArgument("unknown entity %q", name))
	}
	dialect, err := persister.ForDriver(opts.Driver)
	if err != nil {
		return formatter.Fail("describe", errs.Configuration("%v", err))
	}

	return formatter.Success(describe(persister.New(dialect), d))
}

func describe(p *persister.Persister, d *entity.Descriptor) DescribeResult {
	st := p.Statements(d)
	r := DescribeResult{
		Entity:   d.TypeID(),
		Table:    d.Table(),
		Strategy: d.Strategy().String(),
		Dialect:  p.Dialect().Name,
		Statements: StatementInfo{
			Select:         st.Select,
			Insert:         st.Insert,
			IdentityInsert: st.IdentityInsert,
			Update:         st.Update,
			Delete:         st.Delete,
		},
	}
	if d.Strategy() == entity.Sequence {
		r.Statements.NextSequence = p.Dialect().SequenceSQL()
	}
	for _, c := range d.Columns() {
		r.Columns = append(r.Columns, ColumnInfo{Name: c.Name, Field: c.Field, ID: c.ID})
	}
	return r
}
