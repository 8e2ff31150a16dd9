package testutil

import (
	"context"
	"sync"

	"github.com/roach88/rowclaim/internal/datasource"
)

// StubConnector is an in-memory datasource.Connector for error injection.
//
// Each Acquire returns Handle, or AcquireErr when set. Acquisitions counts
// successful and failed calls alike.
type StubConnector struct {
	Handle     *StubHandle
	AcquireErr error

	mu           sync.Mutex
	acquisitions int
	refs         []string
}

// Acquire implements datasource.Connector.
func (c *StubConnector) Acquire(ctx context.Context, ref string) (datasource.Handle, error) {
	c.mu.Lock()
	c.acquisitions++
	c.refs = append(c.refs, ref)
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.AcquireErr != nil {
		return nil, c.AcquireErr
	}
	return c.Handle, nil
}

// Acquisitions returns how many times Acquire was called.
func (c *StubConnector) Acquisitions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquisitions
}

// Refs returns the references passed to Acquire.
func (c *StubConnector) Refs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.refs...)
}

// ExecCall is one recorded Exec.
type ExecCall struct {
	Stmt string
	Args []any
}

// StubHandle serves a fixed result set and a fixed affected-row count.
//
// Rows is consumed from the front, one batch per Query, so successive polls
// can see different data. When Rows runs out, queries return no rows.
type StubHandle struct {
	Columns   []string
	Rows      [][][]any
	Affected  int64
	QueryErr  error
	ExecErr   error
	CommitErr error

	mu         sync.Mutex
	queries    int
	execs      []ExecCall
	commits    int
	rollbacks  int
	closes     int
	openCursor bool
}

// Query implements datasource.Handle.
func (h *StubHandle) Query(ctx context.Context, query string, args ...any) (datasource.Cursor, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.queries++
	if h.QueryErr != nil {
		return nil, h.QueryErr
	}
	var batch [][]any
	if len(h.Rows) > 0 {
		batch, h.Rows = h.Rows[0], h.Rows[1:]
	}
	h.openCursor = true
	return &stubCursor{h: h, cols: h.Columns, rows: batch}, nil
}

// Exec implements datasource.Handle.
func (h *StubHandle) Exec(ctx context.Context, stmt string, args ...any) (datasource.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.execs = append(h.execs, ExecCall{Stmt: stmt, Args: args})
	if h.ExecErr != nil {
		return nil, h.ExecErr
	}
	return stubResult(h.Affected), nil
}

// Commit implements datasource.Handle.
func (h *StubHandle) Commit() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.CommitErr != nil {
		return h.CommitErr
	}
	h.commits++
	return nil
}

// Rollback implements datasource.Handle.
func (h *StubHandle) Rollback() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rollbacks++
	return nil
}

// Close implements datasource.Handle.
func (h *StubHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closes++
	return nil
}

// Queries returns how many times Query was called.
func (h *StubHandle) Queries() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.queries
}

// Execs returns the recorded Exec calls.
func (h *StubHandle) Execs() []ExecCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ExecCall(nil), h.execs...)
}

// Commits returns the number of successful commits.
func (h *StubHandle) Commits() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.commits
}

// Rollbacks returns the number of rollbacks.
func (h *StubHandle) Rollbacks() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rollbacks
}

// Closes returns the number of times Close was called.
func (h *StubHandle) Closes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closes
}

// CursorOpen reports whether the last cursor was left unclosed.
func (h *StubHandle) CursorOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.openCursor
}

type stubCursor struct {
	h    *StubHandle
	cols []string
	rows [][]any
}

func (c *stubCursor) Columns() ([]string, error) { return c.cols, nil }

func (c *stubCursor) FetchAll() ([][]any, error) { return c.rows, nil }

func (c *stubCursor) Close() error {
	c.h.mu.Lock()
	defer c.h.mu.Unlock()
	c.h.openCursor = false
	return nil
}

type stubResult int64

func (r stubResult) RowsAffected() (int64, error) { return int64(r), nil }
