package trigger

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rowclaim/internal/testutil"
)

func validSpec() PollSpec {
	return PollSpec{
		ConnectionRef:   "warehouse",
		SelectQuery:     "SELECT id, status FROM orders WHERE status = 'NEW' ORDER BY id",
		IDColumn:        "id",
		UpdateStatement: "UPDATE orders SET status = 'CLAIMED' WHERE id = ? AND status = 'NEW'",
		PollInterval:    30 * time.Second,
	}
}

func TestPollSpec_ValidateOK(t *testing.T) {
	assert.NoError(t, validSpec().Validate())

	s := validSpec()
	s.UpdateStatement = "UPDATE orders SET status = 'CLAIMED' WHERE id = :id AND status = 'NEW'"
	s.BindValues = []any{"a", int64(1), 2.5, true, nil}
	s.PollInterval = 0
	assert.NoError(t, s.Validate())

	s = validSpec()
	s.UpdateStatement = "UPDATE orders SET tags = tags[1:2] WHERE id = $1"
	assert.NoError(t, s.Validate())
}

func TestNew_RejectsNumberedGapWithoutConnecting(t *testing.T) {
	spec := validSpec()
	spec.UpdateStatement = "UPDATE orders SET status = 'CLAIMED' WHERE id = ?2 AND status = 'NEW'"
	connector := &testutil.StubConnector{}

	_, err := New(spec, connector)
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.Zero(t, connector.Acquisitions())
}

func TestPollSpec_ValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PollSpec)
		field  string
		msg    string
	}{
		{"empty connection", func(s *PollSpec) { s.ConnectionRef = " " }, ParamConnectionRef, "required"},
		{"select with placeholder", func(s *PollSpec) { s.SelectQuery = "SELECT id FROM orders WHERE status = ?" }, ParamSelectQuery, "expected 0 placeholder(s), found 1"},
		{"select is update", func(s *PollSpec) { s.SelectQuery = "UPDATE orders SET status = 'X'" }, ParamSelectQuery, "expected SELECT statement, got UPDATE"},
		{"select empty", func(s *PollSpec) { s.SelectQuery = "" }, ParamSelectQuery, "empty statement"},
		{"empty id column", func(s *PollSpec) { s.IDColumn = "" }, ParamIDColumn, "required"},
		{"update without placeholder", func(s *PollSpec) { s.UpdateStatement = "UPDATE orders SET status = 'X'" }, ParamUpdateStatement, "expected 1 placeholder(s), found 0"},
		{"update with two placeholders", func(s *PollSpec) { s.UpdateStatement = "UPDATE orders SET status = ? WHERE id = ?" }, ParamUpdateStatement, "expected 1 placeholder(s), found 2"},
		{"update numbered gap", func(s *PollSpec) { s.UpdateStatement = "UPDATE orders SET status = 'CLAIMED' WHERE id = ?2 AND status = 'NEW'" }, ParamUpdateStatement, "without gaps"},
		{"update dollar gap", func(s *PollSpec) { s.UpdateStatement = "UPDATE orders SET status = 'CLAIMED' WHERE id = $2" }, ParamUpdateStatement, "without gaps"},
		{"select with writing cte", func(s *PollSpec) {
			s.SelectQuery = "WITH c AS (UPDATE orders SET status = 'GONE' RETURNING id) SELECT id FROM c"
		}, ParamSelectQuery, "must not modify data"},
		{"update is delete", func(s *PollSpec) { s.UpdateStatement = "DELETE FROM orders WHERE id = ?" }, ParamUpdateStatement, "expected UPDATE statement, got DELETE"},
		{"update two statements", func(s *PollSpec) { s.UpdateStatement = "UPDATE orders SET a = 1 WHERE id = ?; DROP TABLE orders" }, ParamUpdateStatement, "multiple statements"},
		{"negative interval", func(s *PollSpec) { s.PollInterval = -time.Second }, ParamIntervalSeconds, "must not be negative"},
		{"non-scalar bind value", func(s *PollSpec) { s.BindValues = []any{map[string]any{}} }, ParamBindValues, "element 0 has unsupported type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSpec()
			tt.mutate(&s)

			err := s.Validate()
			require.Error(t, err)
			assert.True(t, IsConfigurationError(err))

			var ce *ConfigurationError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.field, ce.Field)
			assert.Contains(t, ce.Message, tt.msg)
		})
	}
}

func TestPollSpec_ValidateReportsEveryProblem(t *testing.T) {
	err := PollSpec{}.Validate()
	require.Error(t, err)

	msg := err.Error()
	for _, field := range []string{ParamConnectionRef, ParamSelectQuery, ParamIDColumn, ParamUpdateStatement} {
		assert.Contains(t, msg, field)
	}
}
