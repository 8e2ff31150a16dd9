package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/rowclaim/internal/canon"
)

// TraceSnapshot captures the observable behaviour of one scenario run.
type TraceSnapshot struct {
	ScenarioName string
	Result       *Result
}

// toCanonicalMap converts the snapshot into plain values for canon.Marshal.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Result.Trace))
	for i, ev := range s.Result.Trace {
		m := map[string]any{
			"seq": ev.Seq,
			"op":  ev.Op,
		}
		if ev.Statement != "" {
			m["statement"] = ev.Statement
		}
		if len(ev.Args) > 0 {
			m["args"] = ev.Args
		}
		switch ev.Op {
		case OpQuery:
			m["rows"] = ev.Rows
		case OpExec:
			m["affected"] = ev.Affected
		case OpSleep:
			m["seconds"] = ev.Seconds
		}
		if ev.Error != "" {
			m["error"] = ev.Error
		}
		trace[i] = m
	}

	out := map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         trace,
	}
	if ev := s.Result.Event; ev != nil {
		event := ev.Payload()
		event["polls"] = ev.Polls
		out["event"] = event
	}
	if s.Result.RunError != "" {
		out["run_error"] = s.Result.RunError
	}
	return out
}

// Marshal returns the snapshot's canonical JSON.
func (s *TraceSnapshot) Marshal() ([]byte, error) {
	return canon.Marshal(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. Test failure (via goldie)
// occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{ScenarioName: scenarioName, Result: result}
	data, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
