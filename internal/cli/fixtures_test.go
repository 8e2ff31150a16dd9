package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rowclaim/internal/testutil"
)

const ordersSchema = `CREATE TABLE orders (id INTEGER PRIMARY KEY, status TEXT NOT NULL)`

// writeDefinitions writes a YAML definition file with one claim-orders
// trigger against the fixture database and returns its path.
func writeDefinitions(t *testing.T, dbPath string) string {
	t.Helper()

	defs := fmt.Sprintf(`connection:
  warehouse:
    driver: sqlite3
    dsn: %s
trigger:
  claim-orders:
    connection: warehouse
    select: SELECT id, status FROM orders WHERE status = 'new' ORDER BY id
    id_column: id
    update: UPDATE orders SET status = 'claimed' WHERE id = ? AND status = 'new'
    interval_seconds: 0.01
`, dbPath)
	path := filepath.Join(t.TempDir(), "orders.yaml")
	require.NoError(t, os.WriteFile(path, []byte(defs), 0644))
	return path
}

// ordersFixture creates the orders table with the given 'new' rows and a
// definition file pointing at it.
func ordersFixture(t *testing.T, ids ...int) (*testutil.SQLiteFixture, string) {
	t.Helper()

	db := testutil.NewSQLite(t, ordersSchema)
	for _, id := range ids {
		db.Exec(t, `INSERT INTO orders (id, status) VALUES (?, 'new')`, id)
	}
	return db, writeDefinitions(t, db.Path)
}

// runCommand executes cmd with args and returns stdout.
func runCommand(cmd *cobra.Command, args ...string) (string, error) {
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
