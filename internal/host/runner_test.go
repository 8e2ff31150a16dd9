package host

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/roach88/rowclaim/internal/datasource"
	"github.com/roach88/rowclaim/internal/testutil"
	"github.com/roach88/rowclaim/internal/trigger"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxInterval = time.Millisecond
	return b
}

func newTestRunner(t *testing.T, s *Store, reg *Registry, opts ...RunnerOption) (*Runner, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	all := append([]RunnerOption{
		WithRunnerLogger(quietLogger()),
		WithMeterProvider(mp),
		WithBackOff(fastBackOff),
		WithScanInterval(10 * time.Millisecond),
	}, opts...)
	r, err := NewRunner(s, reg, all...)
	require.NoError(t, err)
	return r, reader
}

func counterTotal(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestRunner_RunsPendingTriggers(t *testing.T) {
	fx := testutil.NewSQLite(t, ordersTable, `INSERT INTO orders VALUES (7, 'NEW'), (8, 'NEW')`)
	s := createTestStore(t)
	ctx := context.Background()

	asc := ordersParams(testutil.SQLiteRef)
	desc := ordersParams(testutil.SQLiteRef)
	desc[trigger.ParamSelectQuery] = "SELECT id, status FROM orders WHERE status = 'NEW' ORDER BY id DESC"
	for _, p := range []map[string]any{asc, desc} {
		_, _, err := s.Submit(ctx, trigger.TypeID, p)
		require.NoError(t, err)
	}

	r, reader := newTestRunner(t, s, DefaultRegistry(fx.Connector), WithWorkers(2))
	require.NoError(t, r.Run(ctx))

	events, err := s.Events(ctx, "")
	require.NoError(t, err)
	require.Len(t, events, 2)

	claimedIDs := map[float64]bool{}
	for _, ev := range events {
		assert.Equal(t, "claimed", ev.Kind)
		var payload struct {
			Record struct {
				ID float64 `json:"id"`
			} `json:"record"`
		}
		require.NoError(t, json.Unmarshal(ev.Payload, &payload))
		claimedIDs[payload.Record.ID] = true
	}
	assert.Equal(t, map[float64]bool{7: true, 8: true}, claimedIDs)

	assert.Equal(t, int64(0), fx.Int(t, "SELECT COUNT(*) FROM orders WHERE status = 'NEW'"))
	assert.Equal(t, int64(2), counterTotal(t, reader, "rowclaim.host.events"))

	all, err := s.List(ctx)
	require.NoError(t, err)
	for _, st := range all {
		assert.Equal(t, StatusDone, st.Status)
	}
}

func TestRunner_NothingPendingReturns(t *testing.T) {
	s := createTestStore(t)
	r, _ := newTestRunner(t, s, NewRegistry())
	assert.NoError(t, r.Run(context.Background()))
}

func TestRunner_RetriesConnectionErrors(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	_, _, err := s.Submit(ctx, trigger.TypeID, ordersParams("down"))
	require.NoError(t, err)

	var builds atomic.Int32
	conn := &testutil.StubConnector{AcquireErr: errors.New("connection refused")}
	reg := NewRegistry()
	require.NoError(t, reg.Register(trigger.TypeID, func(p map[string]any, id string, l *slog.Logger) (Task, error) {
		builds.Add(1)
		return trigger.FromParams(p, conn, trigger.WithLogger(l), trigger.WithActivationID(id))
	}))

	r, reader := newTestRunner(t, s, reg, WithMaxRetries(2))
	require.NoError(t, r.Run(ctx))

	assert.Equal(t, int32(3), builds.Load(), "one attempt plus two retries, each on a fresh trigger")
	assert.Equal(t, int64(2), counterTotal(t, reader, "rowclaim.host.retries"))
	assert.Equal(t, int64(1), counterTotal(t, reader, "rowclaim.host.activation_errors"))

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, StatusFailed, all[0].Status)
	assert.Contains(t, all[0].LastError, "connection refused")
}

func TestRunner_ConfigurationErrorsAreNotRetried(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	params := ordersParams("stub")
	params[trigger.ParamIDColumn] = "order_id"
	_, _, err := s.Submit(ctx, trigger.TypeID, params)
	require.NoError(t, err)

	h := &testutil.StubHandle{Columns: []string{"id"}, Rows: [][][]any{{{int64(7)}}}, Affected: 1}
	r, reader := newTestRunner(t, s, DefaultRegistry(&testutil.StubConnector{Handle: h}))
	require.NoError(t, r.Run(ctx))

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, all[0].Status)
	assert.Contains(t, all[0].LastError, "id_column")
	assert.Equal(t, 1, h.Queries())
	assert.Zero(t, counterTotal(t, reader, "rowclaim.host.retries"))
}

func TestRunner_UnknownTypeFails(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	_, _, err := s.Submit(ctx, "other.Trigger/v1", map[string]any{"x": "y"})
	require.NoError(t, err)

	r, _ := newTestRunner(t, s, DefaultRegistry(&testutil.StubConnector{}))
	require.NoError(t, r.Run(ctx))

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, all[0].Status)
	assert.Contains(t, all[0].LastError, `unknown trigger type "other.Trigger/v1"`)
}

func TestRunner_UnpersistedEventFailsTrigger(t *testing.T) {
	fx := testutil.NewSQLite(t, ordersTable, `INSERT INTO orders VALUES (7, 'NEW'), (8, 'NEW')`)
	s := createTestStore(t)
	ctx := context.Background()
	_, err := s.db.ExecContext(ctx, `
		CREATE TRIGGER reject_events BEFORE INSERT ON trigger_events
		BEGIN SELECT RAISE(ABORT, 'event log unavailable'); END
	`)
	require.NoError(t, err)

	submitted, _, err := s.Submit(ctx, trigger.TypeID, ordersParams(testutil.SQLiteRef))
	require.NoError(t, err)

	r, reader := newTestRunner(t, s, DefaultRegistry(fx.Connector))
	require.NoError(t, r.Run(ctx))

	got, err := s.Get(ctx, submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Contains(t, got.LastError, "event log unavailable")
	assert.Contains(t, got.LastError, `"kind":"claimed"`)
	assert.Contains(t, got.LastError, `"id":7`)
	assert.Equal(t, int64(1), counterTotal(t, reader, "rowclaim.host.activation_errors"))

	// A restart recovers nothing, so row 8 stays unclaimed.
	recovered, err := s.RecoverRunning(ctx)
	require.NoError(t, err)
	assert.Zero(t, recovered)
	assert.Equal(t, int64(1), fx.Int(t, "SELECT COUNT(*) FROM orders WHERE status = 'NEW'"))
}

func TestRunner_RepeatModeThenShutdown(t *testing.T) {
	fx := testutil.NewSQLite(t, ordersTable, `INSERT INTO orders VALUES (7, 'NEW'), (8, 'NEW')`)
	s := createTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, _, err := s.Submit(ctx, trigger.TypeID, ordersParams(testutil.SQLiteRef))
	require.NoError(t, err)

	// Once the table is drained the third trigger suspends; stop there.
	sleeper := &testutil.RecordingSleeper{OnSleep: func(int) error {
		cancel()
		return nil
	}}
	r, reader := newTestRunner(t, s, DefaultRegistry(fx.Connector, trigger.WithSleeper(sleeper)), WithRepeat(true))

	err = r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	events, err := s.Events(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), counterTotal(t, reader, "rowclaim.host.events"))

	pending, err := s.Pending(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, pending, 1, "the interrupted trigger waits for the next run")
	assert.Equal(t, "context canceled", pending[0].LastError)
}

func TestRunner_RecoversInterruptedTriggers(t *testing.T) {
	fx := testutil.NewSQLite(t, ordersTable, `INSERT INTO orders VALUES (7, 'NEW')`)
	s := createTestStore(t)
	ctx := context.Background()

	st, _, err := s.Submit(ctx, trigger.TypeID, ordersParams(testutil.SQLiteRef))
	require.NoError(t, err)
	require.NoError(t, s.MarkRunning(ctx, st.ID))

	r, _ := newTestRunner(t, s, DefaultRegistry(fx.Connector))
	require.NoError(t, r.Run(ctx))

	got, err := s.Get(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, got.Status)
	assert.Equal(t, 2, got.Attempts)
}

func TestRegistry(t *testing.T) {
	reg := DefaultRegistry(&testutil.StubConnector{})
	assert.Equal(t, []string{trigger.TypeID}, reg.Types())

	err := reg.Register(trigger.TypeID, nil)
	assert.ErrorContains(t, err, "already registered")

	task, err := reg.Build(trigger.TypeID, ordersParams("x"), "act-1", quietLogger())
	require.NoError(t, err)
	typeID, params := task.Serialize()
	assert.Equal(t, trigger.TypeID, typeID)
	assert.Equal(t, "x", params[trigger.ParamConnectionRef])

	_, err = reg.Build("nope", nil, "act-2", quietLogger())
	assert.ErrorContains(t, err, "unknown trigger type")
}

var _ datasource.Connector = (*testutil.StubConnector)(nil)
