package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/workset/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Database string // DSN; a file path for SQLite
	Driver   string // "sqlite3" | "sqlite" | "pgx"
	Mapping  string // mapping file or directory
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// ValidDrivers defines the database/sql drivers the store can open.
var ValidDrivers = []string{"sqlite3", "sqlite", "pgx", "mysql"}

// NewRootCommand creates the root command for the workset CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "workset",
		Short: "workset - unit-of-work persistence",
		Long: `Inspect and edit mapped entities through a unit-of-work session.

Every command that touches rows runs in one session: rows are loaded into an
identity map, changes are detected against snapshots, and writes are flushed
in insert, update, delete order before the transaction commits.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if !slices.Contains(ValidDrivers, opts.Driver) {
				return fmt.Errorf("invalid driver %q: must be one of %v", opts.Driver, ValidDrivers)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "database DSN (file path for SQLite)")
	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", store.DefaultDriver, "database driver (sqlite3|sqlite|pgx|mysql)")
	cmd.PersistentFlags().StringVarP(&opts.Mapping, "mapping", "m", "", "entity mapping file or directory (.yaml, .yml, .cue)")

	// Add subcommands
	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewDescribeCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewPutCommand(opts))
	cmd.AddCommand(NewSetCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}
