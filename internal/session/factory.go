package session

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/roach88/workset/internal/entity"
	"github.com/roach88/workset/internal/errs"
	"github.com/roach88/workset/internal/metrics"
	"github.com/roach88/workset/internal/persister"
	"github.com/roach88/workset/internal/store"
)

// Factory creates sessions over a shared database handle and registry.
//
// Thread-safety: CreateSession may be called from any goroutine. Each
// returned Session belongs to its caller.
type Factory struct {
	db        *sql.DB
	registry  *entity.Registry
	dialect   persister.Dialect
	persister *persister.Persister
	logger    *slog.Logger
	metrics   *metrics.Collector
	ids       IDGenerator
}

// Option configures a Factory.
type Option func(*Factory)

// WithDialect selects the SQL dialect. Default: persister.SQLite.
func WithDialect(d persister.Dialect) Option {
	return func(f *Factory) {
		f.dialect = d
	}
}

// WithLogger sets the logger sessions derive theirs from.
// Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(f *Factory) {
		f.logger = l
	}
}

// WithMetrics records session activity on m.
func WithMetrics(m *metrics.Collector) Option {
	return func(f *Factory) {
		f.metrics = m
	}
}

// WithIDGenerator replaces the UUIDv7 session ID generator, typically with a
// FixedGenerator in tests.
func WithIDGenerator(g IDGenerator) Option {
	return func(f *Factory) {
		f.ids = g
	}
}

// NewFactory creates a Factory for db and the entities in registry.
func NewFactory(db *sql.DB, registry *entity.Registry, opts ...Option) (*Factory, error) {
	if db == nil {
		return nil, errs.Configuration("session factory: no database")
	}
	if registry == nil {
		return nil, errs.Configuration("session factory: no entity registry")
	}
	f := &Factory{
		db:       db,
		registry: registry,
		dialect:  persister.SQLite,
		ids:      UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	f.persister = persister.New(f.dialect)
	return f, nil
}

// FromStore creates a Factory over an opened store, using its dialect.
func FromStore(st *store.Store, registry *entity.Registry, opts ...Option) (*Factory, error) {
	opts = append([]Option{WithDialect(st.Dialect())}, opts...)
	return NewFactory(st.DB(), registry, opts...)
}

// Registry returns the factory's entity registry.
func (f *Factory) Registry() *entity.Registry { return f.registry }

// Persister returns the persister shared by the factory's sessions.
func (f *Factory) Persister() *persister.Persister { return f.persister }

// CreateSession acquires a dedicated connection and begins a transaction on
// it. Cancelling ctx after CreateSession returns does not end the
// transaction.
func (f *Factory) CreateSession(ctx context.Context) (*Session, error) {
	conn, err := f.db.Conn(ctx)
	if err != nil {
		return nil, errs.Connection("acquire connection", err)
	}

	id := f.ids.Generate()
	logger := f.logger.With("session", id)
	s := &Session{
		id:        id,
		registry:  f.registry,
		persister: f.persister,
		metrics:   f.metrics,
		logger:    logger,
		conn:      conn,
		identity:  make(map[Key]any),
		byRecord:  make(map[any]Key),
		snapshots: make(map[Key]Snapshot),
		queue:     NewActionQueue(),
	}
	s.tx = newTransaction(conn, s.IsClosed, logger)
	if err := s.tx.Begin(ctx); err != nil {
		conn.Close()
		return nil, errs.Connection("begin transaction", err)
	}

	f.metrics.SessionOpened()
	logger.Debug("session opened", "dialect", f.dialect.Name)
	return s, nil
}
