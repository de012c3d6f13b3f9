package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/workset/internal/session"
)

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "delete <entity> <id>",
		Short:         "Delete one row by identifier",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(rootOpts, args[0], args[1], cmd)
		},
	}

	return cmd
}

func runDelete(opts *RootOptions, name, rawID string, cmd *cobra.Command) error {
	formatter := newFormatter(cmd, opts)

	e, err := openEnv(cmd, opts)
	if err != nil {
		return formatter.Fail("open", err)
	}
	defer e.Close()

	d, err := e.lookup(name)
	if err != nil {
		return formatter.Fail("delete", err)
	}
	id := parseID(rawID)

	result := WriteResult{Action: "deleted", Entity: d.TypeID(), ID: id}
	sessionID, err := e.withSession(cmd.Context(), func(s *session.Session) error {
		record, err := findRow(cmd.Context(), s, d.TypeID(), id)
		if err != nil {
			return err
		}
		return s.Delete(record)
	})
	if err != nil {
		return failRow(formatter, "delete", err)
	}
	return formatter.SuccessIn(sessionID, result)
}
