package cli

import (
	"context"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rowclaim/internal/host"
)

func TestSubmitStoresPendingTrigger(t *testing.T) {
	_, defs := ordersFixture(t)
	hostDB := filepath.Join(t.TempDir(), "host.db")

	out, err := runCommand(NewSubmitCommand(&RootOptions{Format: "json"}), "--db", hostDB, defs)
	require.NoError(t, err)

	var resp struct {
		Data []Submission `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "claim-orders", resp.Data[0].Name)
	assert.True(t, resp.Data[0].Inserted)
	assert.NotEmpty(t, resp.Data[0].ID)

	st, err := host.Open(hostDB)
	require.NoError(t, err)
	defer st.Close()

	stored, err := st.List(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, host.StatusPending, stored[0].Status)
	assert.Equal(t, resp.Data[0].Hash, stored[0].Hash)
}

func TestSubmitTwiceKeepsOnePending(t *testing.T) {
	_, defs := ordersFixture(t)
	hostDB := filepath.Join(t.TempDir(), "host.db")

	_, err := runCommand(NewSubmitCommand(&RootOptions{Format: "text"}), "--db", hostDB, defs)
	require.NoError(t, err)

	out, err := runCommand(NewSubmitCommand(&RootOptions{Format: "text"}), "--db", hostDB, defs, "claim-orders")
	require.NoError(t, err)
	assert.Contains(t, out, "claim-orders (already pending)")
}

func TestSubmitMissingDatabaseFlag(t *testing.T) {
	_, defs := ordersFixture(t)

	_, err := runCommand(NewSubmitCommand(&RootOptions{Format: "text"}), defs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.Contains(t, err.Error(), "db")
}

func TestEventsEmpty(t *testing.T) {
	hostDB := filepath.Join(t.TempDir(), "host.db")

	out, err := runCommand(NewEventsCommand(&RootOptions{Format: "text"}), "--db", hostDB)
	require.NoError(t, err)
	assert.Equal(t, "No events.\n", out)

	out, err = runCommand(NewEventsCommand(&RootOptions{Format: "json"}), "--db", hostDB)
	require.NoError(t, err)

	var resp struct {
		Status string             `json:"status"`
		Data   []host.StoredEvent `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Empty(t, resp.Data)
}
