package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/roach88/workset/internal/entity"
	"github.com/roach88/workset/internal/errs"
	"github.com/roach88/workset/internal/session"
	"github.com/roach88/workset/internal/store"
)

// env is the opened database and mapped entities a data command works on.
type env struct {
	store    *store.Store
	registry *entity.Registry
	factory  *session.Factory
}

// loadRegistry builds the entity registry from the --mapping flag.
func loadRegistry(opts *RootOptions) (*entity.Registry, error) {
	if opts.Mapping == "" {
		return nil, errs.Configuration("no mapping given (use --mapping)")
	}
	descs, err := entity.LoadMappings(opts.Mapping)
	if err != nil {
		return nil, err
	}
	return entity.NewRegistry(descs...)
}

// openEnv loads the mappings and opens the database named by the global flags.
func openEnv(cmd *cobra.Command, opts *RootOptions) (*env, error) {
	registry, err := loadRegistry(opts)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cmd.Context(), store.Config{Driver: opts.Driver, DSN: opts.Database})
	if err != nil {
		return nil, err
	}
	factory, err := session.FromStore(st, registry,
		session.WithLogger(newLogger(cmd.ErrOrStderr(), opts.Verbose)),
	)
	if err != nil {
		st.Close()
		return nil, err
	}
	return &env{store: st, registry: registry, factory: factory}, nil
}

func (e *env) Close() error {
	return e.store.Close()
}

// lookup resolves an entity name given on the command line.
func (e *env) lookup(name string) (*entity.Descriptor, error) {
	d, err := e.registry.Lookup(name)
	if err != nil {
		return nil, errs.IllegalArgument("unknown entity %q", name)
	}
	return d, nil
}

// withSession runs fn in a new session. The session is closed, flushing and
// committing its work, when fn succeeds; otherwise its transaction is rolled
// back and fn's error returned.
func (e *env) withSession(ctx context.Context, fn func(*session.Session) error) (string, error) {
	s, err := e.factory.CreateSession(ctx)
	if err != nil {
		return "", err
	}
	if err := fn(s); err != nil {
		rbErr := s.Transaction().Rollback()
		// Pending work cannot flush without a transaction; Close only
		// releases the connection here.
		_ = s.Close(ctx)
		return s.ID(), errors.Join(err, rbErr)
	}
	return s.ID(), s.Close(ctx)
}

// errNotFound reports a missing row.
type errNotFound struct {
	entity string
	id     any
}

func (e *errNotFound) Error() string {
	return e.entity + "#" + formatID(e.id) + " not found"
}
