package trigger

import (
	"encoding/json"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/roach88/rowclaim/internal/canon"
	"github.com/roach88/rowclaim/internal/datasource"
)

// TypeID identifies this trigger kind in serialized form. It is versioned:
// a change to the parameter set gets a new identifier.
const TypeID = "rowclaim.trigger.StatefulTableClaimTrigger/v1"

// Serialized parameter keys.
const (
	ParamConnectionRef   = "connection_ref"
	ParamSelectQuery     = "select_query"
	ParamIDColumn        = "id_column"
	ParamUpdateStatement = "update_statement"
	ParamIntervalSeconds = "interval_seconds"
	ParamBindValues      = "bind_values"
)

// Params returns the PollSpec as plain, JSON-compatible values. The interval is
// expressed in (possibly fractional) seconds.
func (s PollSpec) Params() map[string]any {
	bind := make([]any, len(s.BindValues))
	copy(bind, s.BindValues)
	return map[string]any{
		ParamConnectionRef:   s.ConnectionRef,
		ParamSelectQuery:     s.SelectQuery,
		ParamIDColumn:        s.IDColumn,
		ParamUpdateStatement: s.UpdateStatement,
		ParamIntervalSeconds: s.PollInterval.Seconds(),
		ParamBindValues:      bind,
	}
}

// SpecFromParams decodes serialized parameters. Numbers may arrive as any Go
// numeric type or json.Number, as produced by the common JSON decoders.
// Unknown keys are rejected. The result is not validated; New does that.
func SpecFromParams(params map[string]any) (PollSpec, error) {
	d := paramDecoder{params: params}

	spec := PollSpec{
		ConnectionRef:   d.str(ParamConnectionRef),
		SelectQuery:     d.str(ParamSelectQuery),
		IDColumn:        d.str(ParamIDColumn),
		UpdateStatement: d.str(ParamUpdateStatement),
		PollInterval:    d.seconds(ParamIntervalSeconds),
		BindValues:      d.list(ParamBindValues),
	}

	known := map[string]bool{
		ParamConnectionRef: true, ParamSelectQuery: true, ParamIDColumn: true,
		ParamUpdateStatement: true, ParamIntervalSeconds: true, ParamBindValues: true,
	}
	var unknown []string
	for k := range params {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		d.fail(k, "unknown parameter")
	}

	if len(d.errs) > 0 {
		return PollSpec{}, errors.Join(d.errs...)
	}
	return spec, nil
}

// FromParams rebuilds a fresh trigger from serialized parameters.
func FromParams(params map[string]any, connector datasource.Connector, opts ...Option) (*Trigger, error) {
	spec, err := SpecFromParams(params)
	if err != nil {
		return nil, err
	}
	return New(spec, connector, opts...)
}

// Hash returns a content hash of a serialized trigger. Equal type
// identifiers and parameters hash equally regardless of map order or numeric
// representation.
func Hash(typeID string, params map[string]any) (string, error) {
	return canon.Hash(canon.DomainTrigger, map[string]any{
		"type_id": typeID,
		"params":  params,
	})
}

type paramDecoder struct {
	params map[string]any
	errs   []error
}

func (d *paramDecoder) fail(key, format string, args ...any) {
	d.errs = append(d.errs, configErr(key, format, args...))
}

func (d *paramDecoder) str(key string) string {
	v, ok := d.params[key]
	if !ok {
		d.fail(key, "missing")
		return ""
	}
	s, ok := v.(string)
	if !ok {
		d.fail(key, "expected string, got %T", v)
	}
	return s
}

func (d *paramDecoder) seconds(key string) time.Duration {
	v, ok := d.params[key]
	if !ok {
		d.fail(key, "missing")
		return 0
	}

	var secs float64
	switch n := v.(type) {
	case float64:
		secs = n
	case float32:
		secs = float64(n)
	case int:
		secs = float64(n)
	case int64:
		secs = float64(n)
	case int32:
		secs = float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			d.fail(key, "invalid number %q", n.String())
			return 0
		}
		secs = f
	default:
		d.fail(key, "expected number, got %T", v)
		return 0
	}

	dur, err := IntervalFromSeconds(secs)
	if err != nil {
		d.errs = append(d.errs, err)
	}
	return dur
}

// IntervalFromSeconds converts a poll interval in (possibly fractional)
// seconds, rounding to the nearest nanosecond. Values that do not fit a
// time.Duration are a configuration error.
func IntervalFromSeconds(secs float64) (time.Duration, error) {
	if math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, configErr(ParamIntervalSeconds, "must be finite")
	}
	if math.Abs(secs) >= math.MaxInt64/float64(time.Second) {
		return 0, configErr(ParamIntervalSeconds, "too large: %v", secs)
	}
	return time.Duration(math.Round(secs * float64(time.Second))), nil
}

func (d *paramDecoder) list(key string) []any {
	v, ok := d.params[key]
	if !ok || v == nil {
		return nil
	}
	switch l := v.(type) {
	case []any:
		out := make([]any, len(l))
		copy(out, l)
		return out
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out
	default:
		d.fail(key, "expected list, got %T", v)
		return nil
	}
}
