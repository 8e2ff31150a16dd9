package harness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/rowclaim/internal/datasource"
	"github.com/roach88/rowclaim/internal/testutil"
	"github.com/roach88/rowclaim/internal/trigger"
)

// ScratchRef is the connection reference of the scenario database.
const ScratchRef = testutil.SQLiteRef

// errPollLimit stops a scenario whose trigger never finds a row.
var errPollLimit = errors.New("poll limit reached")

// Run executes a scenario and returns the result.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext executes a scenario in a fresh SQLite database.
//
// Execution flow:
//  1. Create a database file in a temporary directory and run Setup
//  2. Build the trigger with a recording connector and a sleeper that never
//     waits, running BetweenPolls at the matching suspension
//  3. Run one activation and compare its outcome with Expect
//  4. Evaluate Assertions against the trace and the final tables
//
// The returned error covers harness failures only. An outcome that differs
// from the scenario is reported in Result.Errors.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "rowclaim-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "scenario.db")
	db, err := sql.Open(datasource.DriverSQLite, path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open scratch database: %w", err)
	}
	defer db.Close()

	for i, stmt := range scenario.Setup {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("setup[%d]: %w", i, err)
		}
	}

	connector := datasource.NewSQLConnector(datasource.StaticResolver{
		ScratchRef: {Driver: datasource.DriverSQLite, DSN: path},
	})
	defer connector.Close()

	result := NewResult()
	rec := &recorder{
		inner:  connector,
		result: result,
		clock:  testutil.NewDeterministicClock(),
	}
	external := func(ctx context.Context, stmts []string) error {
		for _, stmt := range stmts {
			_, err := db.ExecContext(ctx, stmt)
			rec.record(TraceEvent{Op: OpExternal, Statement: compact(stmt), Error: errorText(err)})
			if err != nil {
				return fmt.Errorf("external statement %q: %w", stmt, err)
			}
		}
		return nil
	}
	if len(scenario.BeforeClaim) > 0 {
		rec.beforeExec = func(ctx context.Context) error {
			return external(ctx, scenario.BeforeClaim)
		}
	}

	maxPolls := scenario.MaxPolls
	if maxPolls == 0 {
		maxPolls = DefaultMaxPolls
	}
	sleeper := &testutil.RecordingSleeper{}
	sleeper.OnSleep = func(n int) error {
		calls := sleeper.Calls()
		rec.record(TraceEvent{Op: OpSleep, Seconds: calls[n-1].Seconds()})
		for _, step := range scenario.BetweenPolls {
			if step.After == n {
				if err := external(ctx, step.SQL); err != nil {
					return err
				}
			}
		}
		if n >= maxPolls {
			return errPollLimit
		}
		return nil
	}

	activationID := scenario.ActivationID
	if activationID == "" {
		activationID = "scenario-" + scenario.Name
	}

	var tr *trigger.Trigger
	spec, err := scenario.Trigger.pollSpec()
	if err == nil {
		tr, err = trigger.New(spec, rec,
			trigger.WithSleeper(sleeper),
			trigger.WithActivationID(activationID),
			trigger.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		)
	}
	if err == nil {
		var ev trigger.Event
		ev, err = tr.Run(ctx)
		if err == nil {
			result.Event = &ev
		}
	}
	if errors.Is(err, errPollLimit) {
		result.AddError(fmt.Sprintf("no candidate after %d polls", maxPolls))
		return result, nil
	}
	if err != nil {
		result.RunError = err.Error()
	}

	checkExpect(scenario.Expect, result, err)

	actx := &AssertionContext{DB: db, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (t TriggerStep) pollSpec() (trigger.PollSpec, error) {
	ref := t.Connection
	if ref == "" {
		ref = ScratchRef
	}
	interval, err := trigger.IntervalFromSeconds(t.IntervalSeconds)
	if err != nil {
		return trigger.PollSpec{}, err
	}
	return trigger.PollSpec{
		ConnectionRef:   ref,
		SelectQuery:     t.Select,
		IDColumn:        t.IDColumn,
		UpdateStatement: t.Update,
		PollInterval:    interval,
		BindValues:      t.BindValues,
	}, nil
}

// checkExpect compares the activation outcome with the expect clause.
func checkExpect(expect ExpectClause, result *Result, runErr error) {
	if expect.Kind == KindError {
		if runErr == nil {
			result.AddError(fmt.Sprintf("expected %s error, got %s event", expect.Error, result.Event.Kind))
			return
		}
		if class := errorClass(runErr); class != expect.Error {
			result.AddError(fmt.Sprintf("expected %s error, got %s error: %v", expect.Error, class, runErr))
		}
		return
	}

	if runErr != nil {
		result.AddError(fmt.Sprintf("expected %s event, got error: %v", expect.Kind, runErr))
		return
	}

	ev := result.Event
	if string(ev.Kind) != expect.Kind {
		result.AddError(fmt.Sprintf("expected %s event, got %s (reason %q)", expect.Kind, ev.Kind, ev.Reason))
		return
	}
	if expect.Polls != 0 && ev.Polls != expect.Polls {
		result.AddError(fmt.Sprintf("expected %d poll(s), got %d", expect.Polls, ev.Polls))
	}
	if expect.ReasonContains != "" && !strings.Contains(ev.Reason, expect.ReasonContains) {
		result.AddError(fmt.Sprintf("reason %q does not contain %q", ev.Reason, expect.ReasonContains))
	}
	if len(expect.Record) > 0 {
		actual := ev.Record.Map()
		if err := matchRow(actual, expect.Record); err != nil {
			result.AddError(fmt.Sprintf("claimed record %s: %v", ev.Record, err))
		}
	}
}

func errorClass(err error) string {
	switch {
	case trigger.IsConfigurationError(err):
		return ErrorConfiguration
	case trigger.IsConnectionError(err):
		return ErrorConnection
	default:
		return ErrorOther
	}
}
