package claim

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/rowclaim/internal/datasource"
)

// ErrIDColumnMissing is returned when the selected row lacks the id column.
var ErrIDColumnMissing = errors.New("id column not in selected row")

// Claim is one conditional update attempt against a candidate.
type Claim struct {
	IDColumn  string
	Statement string
	Record    Record
}

// Commit executes the claim update bound to the candidate's id value.
//
// Exactly one affected row commits and yields Claimed. Any other count rolls
// back and yields ClaimFailed. The row count is the only concurrency guard:
// the update's predicate must itself exclude rows that are already claimed,
// or two claimers can both see one affected row.
//
// Once the update starts, Commit runs to commit or rollback even if ctx is
// cancelled. Driver errors roll back and are returned wrapped.
func Commit(ctx context.Context, h datasource.Handle, c Claim) (Outcome, error) {
	_, id, ok := c.Record.Lookup(c.IDColumn)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %q not in %v", ErrIDColumnMissing, c.IDColumn, c.Record.Columns())
	}

	ctx = context.WithoutCancel(ctx)

	res, err := h.Exec(ctx, c.Statement, id)
	if err != nil {
		return Outcome{}, errors.Join(fmt.Errorf("execute claim update: %w", err), rollback(h))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Outcome{}, errors.Join(fmt.Errorf("read affected rows: %w", err), rollback(h))
	}

	if n != 1 {
		if err := h.Rollback(); err != nil {
			return Outcome{}, fmt.Errorf("rollback claim: %w", err)
		}
		return Failed(failureReason(c, id, n)), nil
	}

	if err := h.Commit(); err != nil {
		return Outcome{}, fmt.Errorf("commit claim: %w", err)
	}
	return ClaimedRecord(c.Record), nil
}

func rollback(h datasource.Handle) error {
	if err := h.Rollback(); err != nil {
		return fmt.Errorf("rollback claim: %w", err)
	}
	return nil
}

func failureReason(c Claim, id any, n int64) string {
	return fmt.Sprintf("claim failed: %d rows affected by update for %s=%s: %s",
		n, c.IDColumn, FormatValue(id), strings.Join(strings.Fields(c.Statement), " "))
}
