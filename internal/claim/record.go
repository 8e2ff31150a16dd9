package claim

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	json "github.com/goccy/go-json"
)

// Record is one selected row: an ordered column to value mapping.
// Values are kept exactly as the driver returned them so the identifier can
// be bound back into the update without conversion.
type Record struct {
	columns []string
	values  []any
}

// NewRecord pairs column names with one row of values. When a column name
// repeats, the first position is kept and the last value wins.
func NewRecord(columns []string, values []any) (Record, error) {
	if len(columns) != len(values) {
		return Record{}, fmt.Errorf("record has %d columns but %d values", len(columns), len(values))
	}
	r := Record{
		columns: make([]string, 0, len(columns)),
		values:  make([]any, 0, len(values)),
	}
	index := make(map[string]int, len(columns))
	for i, col := range columns {
		if at, ok := index[col]; ok {
			r.values[at] = values[i]
			continue
		}
		index[col] = len(r.columns)
		r.columns = append(r.columns, col)
		r.values = append(r.values, values[i])
	}
	return r, nil
}

// Len returns the number of columns.
func (r Record) Len() int { return len(r.columns) }

// IsZero reports whether the record has no columns.
func (r Record) IsZero() bool { return len(r.columns) == 0 }

// Columns returns the column names in select order.
func (r Record) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// Get returns the raw value of an exactly named column.
func (r Record) Get(name string) (any, bool) {
	for i, col := range r.columns {
		if col == name {
			return r.values[i], true
		}
	}
	return nil, false
}

// Lookup finds a column by exact name, then case-insensitively, and returns
// the column's actual name with its raw value. Oracle and some Postgres
// setups report upper- or lower-cased names regardless of the query text.
func (r Record) Lookup(name string) (string, any, bool) {
	if v, ok := r.Get(name); ok {
		return name, v, true
	}
	for i, col := range r.columns {
		if strings.EqualFold(col, name) {
			return col, r.values[i], true
		}
	}
	return "", nil, false
}

// Map returns the record with values converted to JSON-friendly types.
func (r Record) Map() map[string]any {
	m := make(map[string]any, len(r.columns))
	for i, col := range r.columns {
		m[col] = PlainValue(r.values[i])
	}
	return m
}

// MarshalJSON encodes the record as an object in column order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(PlainValue(r.values[i]))
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// String renders the record as col=value pairs.
func (r Record) String() string {
	parts := make([]string, len(r.columns))
	for i, col := range r.columns {
		parts[i] = col + "=" + FormatValue(r.values[i])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// FormatValue renders a driver value for diagnostics.
func FormatValue(v any) string {
	switch val := PlainValue(v).(type) {
	case nil:
		return "NULL"
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// PlainValue converts driver values into nil, bool, int64, float64 or string.
func PlainValue(v any) any {
	switch val := v.(type) {
	case nil, bool, int64, float64, string:
		return val
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case int16:
		return int64(val)
	case int8:
		return int64(val)
	case uint32:
		return int64(val)
	case uint16:
		return int64(val)
	case uint8:
		return int64(val)
	case float32:
		return float64(val)
	case []byte:
		if utf8.Valid(val) {
			return string(val)
		}
		return base64.StdEncoding.EncodeToString(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
