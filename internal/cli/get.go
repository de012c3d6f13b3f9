package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/workset/internal/session"
)

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <entity> <id>",
		Short: "Load one row by identifier",
		Long: `Load one row through a read-only session and print its columns.

Exits with status 1 and NOT_FOUND when no row has the identifier.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(rootOpts, args[0], args[1], cmd)
		},
	}

	return cmd
}

func runGet(opts *RootOptions, name, rawID string, cmd *cobra.Command) error {
	formatter := newFormatter(cmd, opts)

	e, err := openEnv(cmd, opts)
	if err != nil {
		return formatter.Fail("open", err)
	}
	defer e.Close()

	d, err := e.lookup(name)
	if err != nil {
		return formatter.Fail("get", err)
	}
	id := parseID(rawID)

	var result RecordResult
	sessionID, err := e.withSession(cmd.Context(), func(s *session.Session) error {
		if err := s.SetReadOnly(true); err != nil {
			return err
		}
		record, err := findRow(cmd.Context(), s, d.TypeID(), id)
		if err != nil {
			return err
		}
		result = newRecordResult(d, record)
		return nil
	})
	if err != nil {
		return failRow(formatter, "get", err)
	}
	formatter.VerboseLog("Session %s", sessionID)
	return formatter.SuccessIn(sessionID, result)
}

// findRow loads the row or returns errNotFound.
func findRow(ctx context.Context, s *session.Session, typeID string, id any) (any, error) {
	record, err := s.Find(ctx, typeID, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, &errNotFound{entity: typeID, id: id}
	}
	return record, nil
}

// failRow reports err, mapping a missing row to NOT_FOUND.
func failRow(formatter *OutputFormatter, op string, err error) error {
	var nf *errNotFound
	if errors.As(err, &nf) {
		_ = formatter.Error(ErrCodeNotFound, nf.Error(), nil)
		return WrapExitError(ExitFailure, fmt.Sprintf("%s: not found", op), err)
	}
	return formatter.Fail(op, err)
}
