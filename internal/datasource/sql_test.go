package datasource

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestDB creates a sqlite file with an orders table and returns a
// connector that resolves "orders" to it.
func createTestDB(t *testing.T) (*SQLConnector, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orders.db")

	db, err := sql.Open(DriverSQLite, path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE orders (id INTEGER PRIMARY KEY, status TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO orders (id, status) VALUES (7, 'NEW'), (8, 'NEW')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	c := NewSQLConnector(StaticResolver{"orders": {Driver: "sqlite3", DSN: path}})
	t.Cleanup(func() { c.Close() })
	return c, path
}

func readStatus(t *testing.T, path string, id int) string {
	t.Helper()
	db, err := sql.Open(DriverSQLite, path)
	require.NoError(t, err)
	defer db.Close()
	var status string
	require.NoError(t, db.QueryRow(`SELECT status FROM orders WHERE id = ?`, id).Scan(&status))
	return status
}

func TestSQLConnector_QueryFetchAll(t *testing.T) {
	c, _ := createTestDB(t)
	ctx := context.Background()

	h, err := c.Acquire(ctx, "orders")
	require.NoError(t, err)
	defer h.Close()

	cur, err := h.Query(ctx, `SELECT id, status FROM orders ORDER BY id`)
	require.NoError(t, err)
	cols, err := cur.Columns()
	require.NoError(t, err)
	rows, err := cur.FetchAll()
	require.NoError(t, err)
	require.NoError(t, cur.Close())

	assert.Equal(t, []string{"id", "status"}, cols)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(7), rows[0][0])
	assert.Equal(t, "NEW", rows[0][1])
}

func TestSQLConnector_ExecCommit(t *testing.T) {
	c, path := createTestDB(t)
	ctx := context.Background()

	h, err := c.Acquire(ctx, "orders")
	require.NoError(t, err)

	res, err := h.Exec(ctx, `UPDATE orders SET status = 'CLAIMED' WHERE id = ?`, 7)
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, h.Commit())
	require.NoError(t, h.Close())

	assert.Equal(t, "CLAIMED", readStatus(t, path, 7))
}

func TestSQLConnector_ExecRollback(t *testing.T) {
	c, path := createTestDB(t)
	ctx := context.Background()

	h, err := c.Acquire(ctx, "orders")
	require.NoError(t, err)

	_, err = h.Exec(ctx, `UPDATE orders SET status = 'CLAIMED'`)
	require.NoError(t, err)
	require.NoError(t, h.Rollback())
	require.NoError(t, h.Close())

	assert.Equal(t, "NEW", readStatus(t, path, 7))
	assert.Equal(t, "NEW", readStatus(t, path, 8))
}

func TestSQLConnector_CloseRollsBackOpenTx(t *testing.T) {
	c, path := createTestDB(t)
	ctx := context.Background()

	h, err := c.Acquire(ctx, "orders")
	require.NoError(t, err)
	_, err = h.Exec(ctx, `UPDATE orders SET status = 'CLAIMED' WHERE id = ?`, 8)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	assert.Equal(t, "NEW", readStatus(t, path, 8))
}

func TestSQLConnector_CommitWithoutTxIsNoop(t *testing.T) {
	c, _ := createTestDB(t)
	h, err := c.Acquire(context.Background(), "orders")
	require.NoError(t, err)
	defer h.Close()

	assert.NoError(t, h.Commit())
	assert.NoError(t, h.Rollback())
}

func TestSQLConnector_CancelledContextKeepsTxDecision(t *testing.T) {
	c, path := createTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())

	h, err := c.Acquire(ctx, "orders")
	require.NoError(t, err)
	_, err = h.Exec(ctx, `UPDATE orders SET status = 'CLAIMED' WHERE id = ?`, 7)
	require.NoError(t, err)

	cancel()
	require.NoError(t, h.Commit())
	require.NoError(t, h.Close())

	assert.Equal(t, "CLAIMED", readStatus(t, path, 7))
}

func TestSQLConnector_UnknownRef(t *testing.T) {
	c := NewSQLConnector(StaticResolver{})
	_, err := c.Acquire(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownConnection)
}

func TestSQLConnector_Unreachable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "does", "not", "exist")
	c := NewSQLConnector(StaticResolver{
		"gone": {Driver: "sqlite3", DSN: "file:" + filepath.Join(dir, "x.db") + "?mode=ro"},
	})
	defer c.Close()

	_, err := c.Acquire(context.Background(), "gone")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"gone"`)
}

func TestSQLConnector_ReusesPool(t *testing.T) {
	c, _ := createTestDB(t)
	ctx := context.Background()

	h1, err := c.Acquire(ctx, "orders")
	require.NoError(t, err)
	h2, err := c.Acquire(ctx, "orders")
	require.NoError(t, err)
	require.NoError(t, h1.Close())
	require.NoError(t, h2.Close())

	c.mu.Lock()
	assert.Len(t, c.dbs, 1)
	c.mu.Unlock()
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name       string
		conn       Connection
		wantDriver string
		wantDSN    string
		wantErr    string
	}{
		{"sqlite defaults", Connection{Driver: "sqlite", DSN: "a.db"}, DriverSQLite, "a.db?_busy_timeout=5000&_txlock=immediate", ""},
		{"sqlite keeps explicit", Connection{Driver: "sqlite3", DSN: "a.db?_txlock=deferred"}, DriverSQLite, "a.db?_txlock=deferred&_busy_timeout=5000", ""},
		{"postgres alias", Connection{Driver: "postgres", DSN: "postgres://h/db"}, DriverPostgres, "postgres://h/db", ""},
		{"pgx", Connection{Driver: "pgx", DSN: "postgres://h/db"}, DriverPostgres, "postgres://h/db", ""},
		{"missing dsn", Connection{Driver: "pgx"}, "", "", "dsn required"},
		{"missing driver", Connection{DSN: "x"}, "", "", "driver required"},
		{"unsupported", Connection{Driver: "oracle", DSN: "x"}, "", "", "unsupported driver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver, dsn, err := normalize(tt.conn)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDriver, driver)
			assert.Equal(t, tt.wantDSN, dsn)
		})
	}
}

// TestSQLConnector_Postgres runs against a real Postgres when
// ROWCLAIM_TEST_POSTGRES_URL is set.
func TestSQLConnector_Postgres(t *testing.T) {
	url := os.Getenv("ROWCLAIM_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("ROWCLAIM_TEST_POSTGRES_URL not set (integration test)")
	}
	conn, err := ParseURL(url)
	require.NoError(t, err)
	c := NewSQLConnector(StaticResolver{"pg": conn})
	defer c.Close()
	ctx := context.Background()

	h, err := c.Acquire(ctx, "pg")
	require.NoError(t, err)
	defer h.Close()

	cur, err := h.Query(ctx, `SELECT 7 AS id, 'NEW' AS status`)
	require.NoError(t, err)
	rows, err := cur.FetchAll()
	require.NoError(t, err)
	require.NoError(t, cur.Close())
	require.Len(t, rows, 1)
	assert.EqualValues(t, 7, rows[0][0])
}
