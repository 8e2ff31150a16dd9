package host

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/rowclaim/internal/testutil"
	"github.com/roach88/rowclaim/internal/trigger"
)

// createTestStore opens a fresh host database with deterministic ids and seq.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "host.db")
	s, err := Open(path,
		WithSequencer(testutil.NewDeterministicClock()),
		WithIDGenerator(testutil.NewSequentialIDs("trg").Next))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func ordersParams(ref string) map[string]any {
	return trigger.PollSpec{
		ConnectionRef:   ref,
		SelectQuery:     "SELECT id, status FROM orders WHERE status = 'NEW' ORDER BY id",
		IDColumn:        "id",
		UpdateStatement: "UPDATE orders SET status = 'CLAIMED' WHERE id = ? AND status = 'NEW'",
	}.Params()
}

const ordersTable = `CREATE TABLE orders (id INTEGER PRIMARY KEY, status TEXT NOT NULL)`
