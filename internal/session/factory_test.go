package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/workset/internal/errs"
	"github.com/roach88/workset/internal/metrics"
	"github.com/roach88/workset/internal/persister"
	"github.com/roach88/workset/internal/store/storetest"
)

func TestNewFactory_Validation(t *testing.T) {
	_, err := NewFactory(nil, newTestRegistry(t))
	assert.True(t, errs.IsConfiguration(err))

	db, _ := storetest.NewDB()
	defer db.Close()
	_, err = NewFactory(db, nil)
	assert.True(t, errs.IsConfiguration(err))
}

func TestFactory_Dialect(t *testing.T) {
	f, _ := createTestFactory(t)
	assert.Equal(t, persister.SQLite, f.Persister().Dialect())

	db, _ := storetest.NewDB()
	defer db.Close()
	f, err := NewFactory(db, newTestRegistry(t), WithDialect(persister.Postgres))
	require.NoError(t, err)
	assert.Equal(t, persister.Postgres, f.Persister().Dialect())
}

func TestCreateSession_BeginFailure(t *testing.T) {
	f, stub := createStubFactory(t, nil)
	stub.FailBegin = errors.New("connection refused")

	_, err := f.CreateSession(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsConnection(err))
}

func TestCreateSession_ClosedDatabase(t *testing.T) {
	db, _ := storetest.NewDB()
	f, err := NewFactory(db, newTestRegistry(t))
	require.NoError(t, err)
	db.Close()

	_, err = f.CreateSession(context.Background())
	assert.True(t, errs.IsConnection(err))
}

func TestCreateSession_LogsWithSessionID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f, _ := createStubFactory(t, nil,
		WithLogger(logger),
		WithIDGenerator(NewFixedGenerator("s-1", "s-2")),
	)

	s1 := createTestSession(t, f)
	s2 := createTestSession(t, f)
	assert.Equal(t, "s-1", s1.ID())
	assert.Equal(t, "s-2", s2.ID())

	require.NoError(t, s1.Close(context.Background()))
	assert.Contains(t, buf.String(), "session=s-1")
	assert.Contains(t, buf.String(), "msg=\"session closed\"")
}

func TestCreateSession_DefaultIDsAreUUIDv7(t *testing.T) {
	f, _ := createStubFactory(t, nil)
	s := createTestSession(t, f)
	assert.Len(t, s.ID(), 36)
	assert.Equal(t, byte('7'), s.ID()[14])
}

func TestFactory_Metrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	f, _ := createTestFactory(t, WithMetrics(m))

	s := createTestSession(t, f)
	_, err = s.Find(ctx, "Person", int64(1))
	require.NoError(t, err)
	_, err = s.Find(ctx, "Person", int64(1))
	require.NoError(t, err)
	require.NoError(t, s.Persist(ctx, &address{City: "Lviv"}))
	require.NoError(t, s.Persist(ctx, &person{FirstName: "Andrii"}))
	require.NoError(t, s.Close(ctx))

	n, err := testutil.GatherAndCount(reg,
		"workset_loads_total",
		"workset_identity_map_hits_total",
		"workset_actions_total",
		"workset_flush_duration_seconds",
		"workset_sessions_open",
	)
	require.NoError(t, err)
	// loads{Person,absent}, hits{Person}, actions{insert,Address}, actions{insert,Person},
	// flush{ok}, sessions_open
	assert.Equal(t, 6, n)
}

func TestFixedGenerator_Exhausted(t *testing.T) {
	g := NewFixedGenerator("only")
	assert.Equal(t, "only", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}
