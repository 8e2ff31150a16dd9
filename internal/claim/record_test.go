package claim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord_LengthMismatch(t *testing.T) {
	_, err := NewRecord([]string{"id", "status"}, []any{int64(7)})
	assert.ErrorContains(t, err, "2 columns but 1 values")
}

func TestNewRecord_DuplicateColumnKeepsLastValue(t *testing.T) {
	r, err := NewRecord([]string{"id", "status", "id"}, []any{int64(1), "NEW", int64(2)})
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "status"}, r.Columns())
	v, ok := r.Get("id")
	require.True(t, ok)
	assert.Equal(t, int64(2), v)
}

func TestRecord_Lookup(t *testing.T) {
	r, err := NewRecord([]string{"ID", "Status"}, []any{int64(7), "NEW"})
	require.NoError(t, err)

	col, v, ok := r.Lookup("ID")
	require.True(t, ok)
	assert.Equal(t, "ID", col)
	assert.Equal(t, int64(7), v)

	col, v, ok = r.Lookup("id")
	require.True(t, ok)
	assert.Equal(t, "ID", col)
	assert.Equal(t, int64(7), v)

	_, _, ok = r.Lookup("order_id")
	assert.False(t, ok)

	_, ok = r.Get("id")
	assert.False(t, ok, "Get is exact")
}

func TestRecord_LookupPrefersExactMatch(t *testing.T) {
	r, err := NewRecord([]string{"ID", "id"}, []any{int64(1), int64(2)})
	require.NoError(t, err)

	col, v, ok := r.Lookup("id")
	require.True(t, ok)
	assert.Equal(t, "id", col)
	assert.Equal(t, int64(2), v)
}

func TestRecord_MarshalJSONKeepsColumnOrder(t *testing.T) {
	r, err := NewRecord(
		[]string{"status", "id", "payload", "seen_at", "note"},
		[]any{[]byte("NEW"), int64(7), []byte{0xff, 0x00}, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), nil},
	)
	require.NoError(t, err)

	out, err := r.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t,
		`{"status":"NEW","id":7,"payload":"/wA=","seen_at":"2026-01-02T03:04:05Z","note":null}`,
		string(out))
}

func TestRecord_Map(t *testing.T) {
	r, err := NewRecord([]string{"id", "status", "ratio"}, []any{int32(7), []byte("NEW"), float32(0.5)})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"id":     int64(7),
		"status": "NEW",
		"ratio":  float64(0.5),
	}, r.Map())
}

func TestRecord_ZeroAndString(t *testing.T) {
	var zero Record
	assert.True(t, zero.IsZero())
	assert.Equal(t, 0, zero.Len())
	assert.Equal(t, "{}", zero.String())

	r, err := NewRecord([]string{"id", "status"}, []any{int64(7), nil})
	require.NoError(t, err)
	assert.False(t, r.IsZero())
	assert.Equal(t, "{id=7, status=NULL}", r.String())
}

func TestRecord_ColumnsIsACopy(t *testing.T) {
	r, err := NewRecord([]string{"id"}, []any{int64(7)})
	require.NoError(t, err)

	cols := r.Columns()
	cols[0] = "mutated"
	assert.Equal(t, []string{"id"}, r.Columns())
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "7", FormatValue(int64(7)))
	assert.Equal(t, "abc", FormatValue([]byte("abc")))
	assert.Equal(t, "NULL", FormatValue(nil))
	assert.Equal(t, "true", FormatValue(true))
}
