package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/workset/internal/errs"
	"github.com/roach88/workset/internal/session"
)

// NewSetCommand creates the set command.
func NewSetCommand(rootOpts *RootOptions) *cobra.Command {
	var sets []string

	cmd := &cobra.Command{
		Use:   "set <entity> <id>",
		Short: "Change columns of an existing row",
		Long: `Load a row, assign columns and flush. The row is written only when an
assignment actually changes it; otherwise the result is "unchanged".`,
		Example:       `  workset set Person 1 --set first_name=Andrii2`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSet(rootOpts, args[0], args[1], sets, cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&sets, "set", "s", nil, "column assignment (column=text or column:=json)")

	return cmd
}

func runSet(opts *RootOptions, name, rawID string, sets []string, cmd *cobra.Command) error {
	formatter := newFormatter(cmd, opts)

	if len(sets) == 0 {
		return formatter.Fail("set", errs.IllegalArgument("nothing to set (use --set)"))
	}

	e, err := openEnv(cmd, opts)
	if err != nil {
		return formatter.Fail("open", err)
	}
	defer e.Close()

	d, err := e.lookup(name)
	if err != nil {
		return formatter.Fail("set", err)
	}
	assignments, err := parseAssignments(d, sets)
	if err != nil {
		return formatter.Fail("set", err)
	}
	id := parseID(rawID)

	result := WriteResult{Action: "unchanged", Entity: d.TypeID(), ID: id}
	sessionID, err := e.withSession(cmd.Context(), func(s *session.Session) error {
		record, err := findRow(cmd.Context(), s, d.TypeID(), id)
		if err != nil {
			return err
		}
		if err := apply(record, assignments); err != nil {
			return err
		}
		// Change detection decides whether the row is written.
		if err := s.Flush(cmd.Context()); err != nil {
			return err
		}
		if s.Stats().Execs > 0 {
			result.Action = "updated"
		}
		return nil
	})
	if err != nil {
		return failRow(formatter, "set", err)
	}
	return formatter.SuccessIn(sessionID, result)
}
