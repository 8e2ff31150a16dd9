package harness

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/rowclaim/internal/claim"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Only allows alphanumeric and underscore, must start with letter or underscore.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent // included for trace assertions
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s", ev.Seq, ev.Op)
			if ev.Statement != "" {
				fmt.Fprintf(&buf, " %s", ev.Statement)
			}
			fmt.Fprintln(&buf)
		}
	}
	return buf.String()
}

func traceMatches(ev TraceEvent, op, statement string) bool {
	return ev.Op == op && strings.Contains(ev.Statement, statement)
}

// assertTraceContains checks that some operation matches op and, when set,
// contains the statement substring.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, ev := range trace {
		if traceMatches(ev, assertion.Op, assertion.Statement) {
			return nil
		}
	}

	expected := assertion.Op
	if assertion.Statement != "" {
		expected = fmt.Sprintf("%s containing %q", assertion.Op, assertion.Statement)
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the ops appear as a subsequence of the trace.
// Intervening operations are allowed.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	next := 0
	for _, ev := range trace {
		if next < len(assertion.Ops) && ev.Op == assertion.Ops[next] {
			next++
		}
	}
	if next == len(assertion.Ops) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("operations in order: %v", assertion.Ops),
		Actual:   fmt.Sprintf("matched %v, then no %s", assertion.Ops[:next], assertion.Ops[next]),
		Trace:    trace,
	}
}

// assertTraceCount checks that op occurs exactly Count times, counting only
// statements containing the substring when one is given.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, ev := range trace {
		if traceMatches(ev, assertion.Op, assertion.Statement) {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Op),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks that exactly one row matches Where and that it
// holds the Expect values.
func assertFinalState(ctx context.Context, db *sql.DB, assertion Assertion) error {
	rows, err := queryRows(ctx, db, "SELECT *", assertion)
	if err != nil {
		return err
	}

	whereDesc := formatWhereClause(assertion.Where)
	switch {
	case len(rows) == 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, whereDesc),
			Actual:   "row not found",
		}
	case len(rows) > 1:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, whereDesc),
			Actual:   fmt.Sprintf("%d rows matched (assertion is ambiguous)", len(rows)),
		}
	}

	if err := matchRow(rows[0], assertion.Expect); err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s to hold %v", assertion.Table, whereDesc, assertion.Expect),
			Actual:   err.Error(),
		}
	}
	return nil
}

// assertRowCount checks the number of rows matching Where.
func assertRowCount(ctx context.Context, db *sql.DB, assertion Assertion) error {
	rows, err := queryRows(ctx, db, "SELECT 1", assertion)
	if err != nil {
		return err
	}
	if len(rows) != assertion.Count {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d row(s) in %s where %s", assertion.Count, assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   fmt.Sprintf("%d row(s)", len(rows)),
		}
	}
	return nil
}

// queryRows runs projection against the assertion's table and filter.
// Identifiers are validated because they cannot be bound as parameters.
func queryRows(ctx context.Context, db *sql.DB, projection string, assertion Assertion) ([]map[string]any, error) {
	if !validIdentifier.MatchString(assertion.Table) {
		return nil, fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}

	whereSQL, whereArgs, err := buildWhereClause(assertion.Where)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("%s FROM %s", projection, assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := db.QueryContext(ctx, query, whereArgs...)
	if err != nil {
		return nil, &AssertionError{
			Type:     assertion.Type,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("get columns: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec, err := claim.NewRecord(columns, values)
		if err != nil {
			return nil, err
		}
		out = append(out, rec.Map())
	}
	return out, rows.Err()
}

// buildWhereClause constructs parameterized WHERE clause from assertion.Where.
// Keys are sorted for determinism. A nil value becomes IS NULL.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		if where[key] == nil {
			clauses = append(clauses, key+" IS NULL")
			continue
		}
		clauses = append(clauses, key+" = ?")
		args = append(args, where[key])
	}
	return strings.Join(clauses, " AND "), args, nil
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// matchRow checks that actual holds every expected column (subset match).
// Extra columns in actual are ignored.
func matchRow(actual, expected map[string]any) error {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		got, ok := actual[key]
		if !ok {
			return fmt.Errorf("column %q not present", key)
		}
		if !valuesEqual(expected[key], got) {
			return fmt.Errorf("column %q = %v (%T), want %v (%T)", key, got, got, expected[key], expected[key])
		}
	}
	return nil
}

// valuesEqual compares a YAML-decoded expected value with a plain record
// value. Numbers compare by value, booleans also match 0/1 integers.
func valuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}

	if ef, ok := number(expected); ok {
		af, ok := number(actual)
		return ok && ef == af
	}

	switch exp := expected.(type) {
	case bool:
		switch act := actual.(type) {
		case bool:
			return exp == act
		case int64:
			return exp == (act != 0)
		}
		return false
	case string:
		act, ok := actual.(string)
		return ok && exp == act
	}

	return claim.FormatValue(expected) == claim.FormatValue(actual)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, !math.IsNaN(n)
	}
	return 0, false
}

// AssertionContext provides database access for state assertions.
type AssertionContext struct {
	DB  *sql.DB
	Ctx context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState, AssertRowCount:
			if actx == nil || actx.DB == nil {
				err = fmt.Errorf("assertion[%d]: %s requires database context", i, assertion.Type)
			} else if assertion.Type == AssertFinalState {
				err = assertFinalState(actx.Ctx, actx.DB, assertion)
			} else {
				err = assertRowCount(actx.Ctx, actx.DB, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
