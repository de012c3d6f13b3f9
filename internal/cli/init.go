package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/workset/internal/errs"
	"github.com/roach88/workset/internal/store"
)

// InitResult is the output of init.
type InitResult struct {
	Database string `json:"database"`
	Driver   string `json:"driver"`
	Schema   string `json:"schema,omitempty"`
}

func (r InitResult) String() string {
	if r.Schema != "" {
		return fmt.Sprintf("initialized %s (%s), applied %s", r.Database, r.Driver, r.Schema)
	}
	return fmt.Sprintf("initialized %s (%s)", r.Database, r.Driver)
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	var schemaPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Prepare a database for workset sessions",
		Long: `Open the database named by --db, creating the identifier sequence, and
optionally run a SQL script that creates the entity tables.

Running init again on a prepared database is safe; the sequence keeps its value.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(rootOpts, schemaPath, cmd)
		},
	}

	cmd.Flags().StringVar(&schemaPath, "schema", "", "SQL script to apply after opening")

	return cmd
}

func runInit(opts *RootOptions, schemaPath string, cmd *cobra.Command) error {
	formatter := newFormatter(cmd, opts)

	var script []byte
	if schemaPath != "" {
		var err error
		script, err = os.ReadFile(schemaPath)
		if err != nil {
			return formatter.Fail("init", errs.Configuration("read schema %s: %v", schemaPath, err))
		}
	}

	st, err := store.Open(cmd.Context(), store.Config{Driver: opts.Driver, DSN: opts.Database})
	if err != nil {
		return formatter.Fail("init", err)
	}
	defer st.Close()
	formatter.VerboseLog("Opened %s with dialect %s", opts.Database, st.Dialect().Name)

	if len(script) > 0 {
		if err := st.ApplyScript(cmd.Context(), string(script)); err != nil {
			return formatter.Fail("init", err)
		}
	}

	return formatter.Success(InitResult{Database: opts.Database, Driver: opts.Driver, Schema: schemaPath})
}
