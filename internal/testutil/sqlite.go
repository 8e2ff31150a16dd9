package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/rowclaim/internal/datasource"
)

// SQLiteRef is the connection reference a SQLiteFixture registers.
const SQLiteRef = "warehouse"

// SQLiteFixture is a throwaway SQLite database reachable both directly and
// through a SQLConnector under SQLiteRef.
type SQLiteFixture struct {
	Path      string
	DB        *sql.DB
	Connector *datasource.SQLConnector
}

// NewSQLite creates a database file in t.TempDir and runs the setup
// statements against it. Everything is closed at test cleanup.
func NewSQLite(t testing.TB, setup ...string) *SQLiteFixture {
	t.Helper()

	path := filepath.Join(t.TempDir(), "warehouse.db")
	db, err := sql.Open(datasource.DriverSQLite, path+"?_busy_timeout=5000")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	for _, stmt := range setup {
		_, err := db.Exec(stmt)
		require.NoError(t, err, "setup: %s", stmt)
	}

	conn := datasource.NewSQLConnector(datasource.StaticResolver{
		SQLiteRef: {Driver: datasource.DriverSQLite, DSN: path},
	})
	t.Cleanup(func() { conn.Close() })

	return &SQLiteFixture{Path: path, DB: db, Connector: conn}
}

// Exec runs a statement directly, outside any claim.
func (f *SQLiteFixture) Exec(t testing.TB, stmt string, args ...any) {
	t.Helper()
	_, err := f.DB.Exec(stmt, args...)
	require.NoError(t, err, stmt)
}

// Rows returns every row of a query as driver values.
func (f *SQLiteFixture) Rows(t testing.TB, query string, args ...any) [][]any {
	t.Helper()

	rows, err := f.DB.Query(query, args...)
	require.NoError(t, err, query)
	defer rows.Close()

	cols, err := rows.Columns()
	require.NoError(t, err)

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		require.NoError(t, rows.Scan(ptrs...))
		out = append(out, vals)
	}
	require.NoError(t, rows.Err())
	return out
}

// Text returns the single value of a one-row, one-column query as a string.
func (f *SQLiteFixture) Text(t testing.TB, query string, args ...any) string {
	t.Helper()
	var v string
	require.NoError(t, f.DB.QueryRow(query, args...).Scan(&v), query)
	return v
}

// Int returns the single value of a one-row, one-column query as an int64.
func (f *SQLiteFixture) Int(t testing.TB, query string, args ...any) int64 {
	t.Helper()
	var v int64
	require.NoError(t, f.DB.QueryRow(query, args...).Scan(&v), query)
	return v
}
