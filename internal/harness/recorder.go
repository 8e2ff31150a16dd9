package harness

import (
	"context"
	"strings"

	"github.com/roach88/rowclaim/internal/claim"
	"github.com/roach88/rowclaim/internal/datasource"
	"github.com/roach88/rowclaim/internal/testutil"
)

// recorder wraps a Connector and appends every operation to a Result trace.
// Scenarios run one trigger on one goroutine, so no locking is needed.
type recorder struct {
	inner  datasource.Connector
	result *Result
	clock  *testutil.DeterministicClock

	// beforeExec runs once, before the first claim update is forwarded.
	beforeExec func(ctx context.Context) error
}

func (r *recorder) record(ev TraceEvent) int {
	ev.Seq = r.clock.Next()
	r.result.Trace = append(r.result.Trace, ev)
	return len(r.result.Trace) - 1
}

func (r *recorder) Acquire(ctx context.Context, ref string) (datasource.Handle, error) {
	h, err := r.inner.Acquire(ctx, ref)
	r.record(TraceEvent{Op: OpAcquire, Statement: ref, Error: errorText(err)})
	if err != nil {
		return nil, err
	}
	return &recordedHandle{inner: h, rec: r}, nil
}

type recordedHandle struct {
	inner datasource.Handle
	rec   *recorder
}

func (h *recordedHandle) Query(ctx context.Context, query string, args ...any) (datasource.Cursor, error) {
	cur, err := h.inner.Query(ctx, query, args...)
	idx := h.rec.record(TraceEvent{Op: OpQuery, Statement: compact(query), Args: traceArgs(args), Error: errorText(err)})
	if err != nil {
		return nil, err
	}
	return &recordedCursor{inner: cur, rec: h.rec, idx: idx}, nil
}

func (h *recordedHandle) Exec(ctx context.Context, stmt string, args ...any) (datasource.Result, error) {
	if hook := h.rec.beforeExec; hook != nil {
		h.rec.beforeExec = nil
		if err := hook(ctx); err != nil {
			return nil, err
		}
	}

	res, err := h.inner.Exec(ctx, stmt, args...)
	ev := TraceEvent{Op: OpExec, Statement: compact(stmt), Args: traceArgs(args), Error: errorText(err)}
	if err == nil {
		n, affErr := res.RowsAffected()
		if affErr != nil {
			ev.Error = affErr.Error()
		}
		ev.Affected = n
	}
	h.rec.record(ev)
	return res, err
}

func (h *recordedHandle) Commit() error {
	err := h.inner.Commit()
	h.rec.record(TraceEvent{Op: OpCommit, Error: errorText(err)})
	return err
}

func (h *recordedHandle) Rollback() error {
	err := h.inner.Rollback()
	h.rec.record(TraceEvent{Op: OpRollback, Error: errorText(err)})
	return err
}

func (h *recordedHandle) Close() error {
	err := h.inner.Close()
	h.rec.record(TraceEvent{Op: OpClose, Error: errorText(err)})
	return err
}

type recordedCursor struct {
	inner datasource.Cursor
	rec   *recorder
	idx   int
}

func (c *recordedCursor) Columns() ([]string, error) { return c.inner.Columns() }

func (c *recordedCursor) FetchAll() ([][]any, error) {
	rows, err := c.inner.FetchAll()
	c.rec.result.Trace[c.idx].Rows = len(rows)
	if err != nil {
		c.rec.result.Trace[c.idx].Error = err.Error()
	}
	return rows, err
}

func (c *recordedCursor) Close() error { return c.inner.Close() }

func traceArgs(args []any) []any {
	if len(args) == 0 {
		return nil
	}
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = claim.PlainValue(a)
	}
	return out
}

func compact(stmt string) string {
	return strings.Join(strings.Fields(stmt), " ")
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
