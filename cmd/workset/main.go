// Command workset inspects and edits mapped entities through unit-of-work
// sessions. See internal/cli for the commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/workset/internal/cli"
)

func main() {
	if err := mainImpl(); err != nil {
		os.Exit(exitCode(err))
	}
}

func mainImpl() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	err := cli.NewRootCommand().ExecuteContext(ctx)
	var exitErr *cli.ExitError
	if err != nil && !errors.As(err, &exitErr) && !errors.Is(err, context.Canceled) {
		// Commands report their own failures; this is a flag or argument error.
		fmt.Fprintf(os.Stderr, "workset: %v\n", err)
	}
	return err
}

func exitCode(err error) int {
	var exitErr *cli.ExitError
	if errors.As(err, &exitErr) {
		return cli.GetExitCode(err)
	}
	if errors.Is(err, context.Canceled) {
		return cli.ExitFailure
	}
	return cli.ExitCommandError
}
