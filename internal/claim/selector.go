package claim

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/rowclaim/internal/datasource"
)

// Select runs the read query and returns its first row.
//
// The cursor is fully consumed and closed before Select returns, so no result
// set outlives the call. Select never writes. Ordering is whatever the query
// specifies.
func Select(ctx context.Context, h datasource.Handle, query string) (Record, bool, error) {
	cur, err := h.Query(ctx, query)
	if err != nil {
		return Record{}, false, fmt.Errorf("execute select: %w", err)
	}
	cols, err := cur.Columns()
	if err != nil {
		return Record{}, false, errors.Join(fmt.Errorf("read columns: %w", err), cur.Close())
	}
	rows, err := cur.FetchAll()
	if err != nil {
		return Record{}, false, errors.Join(fmt.Errorf("fetch rows: %w", err), cur.Close())
	}
	if err := cur.Close(); err != nil {
		return Record{}, false, fmt.Errorf("close cursor: %w", err)
	}

	if len(rows) == 0 {
		return Record{}, false, nil
	}
	rec, err := NewRecord(cols, rows[0])
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}
