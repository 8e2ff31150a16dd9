// Package datasource is the relational data source capability consumed by
// triggers: acquire a handle for a connection reference, run a read, run a
// write, then commit or roll back.
//
// The interfaces are deliberately narrow so tests can fake them and so the
// trigger never depends on a particular driver. SQLConnector implements them
// on database/sql for the sqlite3 and pgx drivers.
package datasource

import (
	"context"
)

// Connector resolves a connection reference into a live Handle.
type Connector interface {
	Acquire(ctx context.Context, ref string) (Handle, error)
}

// Handle is one exclusive session against the data source.
//
// Reads run outside any transaction. The first Exec opens a transaction that
// stays open until Commit or Rollback. Close releases the session and rolls
// back anything left uncommitted.
type Handle interface {
	Query(ctx context.Context, query string, args ...any) (Cursor, error)
	Exec(ctx context.Context, stmt string, args ...any) (Result, error)
	Commit() error
	Rollback() error
	Close() error
}

// Cursor is the result of a read.
type Cursor interface {
	Columns() ([]string, error)
	// FetchAll reads every remaining row. Values are driver values.
	FetchAll() ([][]any, error)
	Close() error
}

// Result is the outcome of a write. sql.Result satisfies it.
type Result interface {
	RowsAffected() (int64, error)
}
