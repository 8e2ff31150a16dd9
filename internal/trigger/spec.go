package trigger

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/roach88/rowclaim/internal/statement"
)

// PollSpec is the immutable definition of one trigger.
type PollSpec struct {
	// ConnectionRef names a connection the host knows how to open.
	ConnectionRef string

	// SelectQuery is a SELECT without placeholders. Its first row, in the
	// query's own order, is the candidate.
	SelectQuery string

	// IDColumn names the column whose value is bound into UpdateStatement.
	IDColumn string

	// UpdateStatement is an UPDATE with exactly one placeholder, bound to the
	// candidate's id. Its predicate must exclude rows that are already
	// claimed; the affected-row count is the only concurrency guard.
	UpdateStatement string

	// PollInterval is the wait after an empty poll.
	PollInterval time.Duration

	// BindValues is carried through serialization but never bound.
	BindValues []any
}

// Validate checks the definition without touching a data source.
//
// Every problem is reported; the result is a join of *ConfigurationError
// values, or nil.
func (s PollSpec) Validate() error {
	var errs []error

	if strings.TrimSpace(s.ConnectionRef) == "" {
		errs = append(errs, configErr(ParamConnectionRef, "required"))
	}

	if err := expect(ParamSelectQuery, s.SelectQuery, statement.KindSelect, 0); err != nil {
		errs = append(errs, err)
	}

	if strings.TrimSpace(s.IDColumn) == "" {
		errs = append(errs, configErr(ParamIDColumn, "required"))
	}

	if err := expect(ParamUpdateStatement, s.UpdateStatement, statement.KindUpdate, 1); err != nil {
		errs = append(errs, err)
	}

	if s.PollInterval < 0 {
		errs = append(errs, configErr(ParamIntervalSeconds, "must not be negative, got %s", s.PollInterval))
	}

	for i, v := range s.BindValues {
		if !isScalar(v) {
			errs = append(errs, configErr(ParamBindValues, "element %d has unsupported type %T", i, v))
		}
	}

	return errors.Join(errs...)
}

func expect(field, text string, kind statement.Kind, placeholders int) error {
	d, err := statement.Parse(text)
	if err != nil {
		return &ConfigurationError{Field: field, Message: err.Error(), Err: err}
	}
	if err := d.Expect(kind, placeholders); err != nil {
		return &ConfigurationError{Field: field, Message: err.Error(), Err: err}
	}
	return nil
}

func isScalar(v any) bool {
	switch val := v.(type) {
	case nil, string, bool, int, int32, int64, json.Number:
		return true
	case float64:
		return !math.IsNaN(val) && !math.IsInf(val, 0)
	default:
		return false
	}
}
