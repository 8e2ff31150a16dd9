package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rowclaim/internal/trigger"
)

func TestRunWithGolden_Scenarios(t *testing.T) {
	for _, file := range []string{"empty_then_row.yaml", "pre_claimed.yaml"} {
		t.Run(file, func(t *testing.T) {
			scenario, err := LoadScenario("testdata/scenarios/" + file)
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, result.Errors)
		})
	}
}

func TestTraceSnapshot_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/empty_then_row.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := (&TraceSnapshot{ScenarioName: scenario.Name, Result: first}).Marshal()
	require.NoError(t, err)
	b, err := (&TraceSnapshot{ScenarioName: scenario.Name, Result: second}).Marshal()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestTraceSnapshot_RunError(t *testing.T) {
	result := NewResult()
	result.RunError = "boom"
	result.Trace = append(result.Trace, TraceEvent{Seq: 1, Op: OpAcquire, Statement: "ledger", Error: "unknown"})

	data, err := (&TraceSnapshot{ScenarioName: "err", Result: result}).Marshal()
	require.NoError(t, err)
	assert.Equal(t,
		`{"run_error":"boom","scenario_name":"err","trace":[{"error":"unknown","op":"acquire","seq":1,"statement":"ledger"}]}`,
		string(data))
}

func TestTraceSnapshot_FailureEvent(t *testing.T) {
	result := NewResult()
	result.Event = &trigger.Event{Kind: trigger.EventClaimFailed, Reason: "lost", Polls: 3, ActivationID: "ignored"}

	data, err := (&TraceSnapshot{ScenarioName: "f", Result: result}).Marshal()
	require.NoError(t, err)
	assert.Equal(t,
		`{"event":{"kind":"claim_failed","polls":3,"reason":"lost"},"scenario_name":"f","trace":[]}`,
		string(data))
}
