package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/workset/internal/session"
)

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	var sets []string

	cmd := &cobra.Command{
		Use:   "put <entity>",
		Short: "Insert a new row",
		Long: `Insert a new row and print its generated identifier.

Columns are assigned with --set column=text or --set column:=<json>.
Unassigned columns are NULL.`,
		Example: `  workset put Person --set first_name=Andrii --set last_name=Bobrov
  workset put Person --set first_name=Ada --set age:=36`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPut(rootOpts, args[0], sets, cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&sets, "set", "s", nil, "column assignment (column=text or column:=json)")

	return cmd
}

func runPut(opts *RootOptions, name string, sets []string, cmd *cobra.Command) error {
	formatter := newFormatter(cmd, opts)

	e, err := openEnv(cmd, opts)
	if err != nil {
		return formatter.Fail("open", err)
	}
	defer e.Close()

	d, err := e.lookup(name)
	if err != nil {
		return formatter.Fail("put", err)
	}
	assignments, err := parseAssignments(d, sets)
	if err != nil {
		return formatter.Fail("put", err)
	}

	result := WriteResult{Action: "inserted", Entity: d.TypeID()}
	sessionID, err := e.withSession(cmd.Context(), func(s *session.Session) error {
		record := d.New()
		if err := apply(record, assignments); err != nil {
			return err
		}
		if err := s.Persist(cmd.Context(), record); err != nil {
			return err
		}
		result.ID = d.ID(record)
		return nil
	})
	if err != nil {
		return formatter.Fail("put", err)
	}
	return formatter.SuccessIn(sessionID, result)
}
