package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines one trigger activation against a scratch database and
// the outcome it must produce.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Setup statements create and seed tables before the trigger starts.
	Setup []string `yaml:"setup,omitempty"`

	// Trigger is the poll definition under test.
	Trigger TriggerStep `yaml:"trigger"`

	// BetweenPolls runs statements while the trigger is suspended.
	BetweenPolls []Interference `yaml:"between_polls,omitempty"`

	// BeforeClaim runs statements after a candidate was selected and before
	// the claim update executes, on a separate connection. A scenario uses
	// it to have a competitor take the row first.
	BeforeClaim []string `yaml:"before_claim,omitempty"`

	// MaxPolls bounds empty polls so a scenario that never finds a row
	// terminates. Zero means DefaultMaxPolls.
	MaxPolls int `yaml:"max_polls,omitempty"`

	// ActivationID is fixed for deterministic events. Empty means
	// "scenario-" followed by Name.
	ActivationID string `yaml:"activation_id,omitempty"`

	Expect ExpectClause `yaml:"expect"`

	// Assertions validate the trace and the final table contents.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// DefaultMaxPolls bounds scenarios that set no MaxPolls.
const DefaultMaxPolls = 20

// TriggerStep mirrors a trigger definition in scenario form.
type TriggerStep struct {
	// Connection defaults to the scratch database's reference. Any other
	// name is unknown to the harness connector.
	Connection      string  `yaml:"connection,omitempty"`
	Select          string  `yaml:"select"`
	IDColumn        string  `yaml:"id_column"`
	Update          string  `yaml:"update"`
	IntervalSeconds float64 `yaml:"interval_seconds"`
	BindValues      []any   `yaml:"bind_values,omitempty"`
}

// Interference is a set of statements run at the After-th suspension.
type Interference struct {
	After int      `yaml:"after"`
	SQL   []string `yaml:"sql"`
}

// ExpectClause specifies the expected activation outcome.
type ExpectClause struct {
	// Kind is "claimed", "claim_failed" or "error".
	Kind string `yaml:"kind"`

	// Record is a subset match against the claimed row.
	Record map[string]any `yaml:"record,omitempty"`

	// ReasonContains must appear in a claim_failed reason.
	ReasonContains string `yaml:"reason_contains,omitempty"`

	// Polls, when non-zero, is the exact number of selects executed.
	Polls int `yaml:"polls,omitempty"`

	// Error classifies an expected activation error: "configuration",
	// "connection" or "other".
	Error string `yaml:"error,omitempty"`
}

// Expected kinds.
const (
	KindClaimed     = "claimed"
	KindClaimFailed = "claim_failed"
	KindError       = "error"
)

// Error classes.
const (
	ErrorConfiguration = "configuration"
	ErrorConnection    = "connection"
	ErrorOther         = "other"
)

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an operation, optionally with a statement substring
	// - "trace_order": operations appear in this order
	// - "trace_count": an operation occurs exactly Count times
	// - "final_state": a single row matches Where and holds Expect
	// - "row_count": exactly Count rows match Where
	Type string `yaml:"type"`

	Op        string   `yaml:"op,omitempty"`
	Statement string   `yaml:"statement,omitempty"`
	Ops       []string `yaml:"ops,omitempty"`
	Count     int      `yaml:"count,omitempty"`

	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertRowCount      = "row_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes scenario YAML with strict field checking.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks the scenario's own shape. The trigger definition
// is left to the trigger, so scenarios can expect configuration errors.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.MaxPolls < 0 {
		return fmt.Errorf("max_polls must be non-negative")
	}

	if err := validateExpect(&s.Expect); err != nil {
		return err
	}

	for i, step := range s.BetweenPolls {
		if step.After < 1 {
			return fmt.Errorf("between_polls[%d]: after must be at least 1", i)
		}
		if len(step.SQL) == 0 {
			return fmt.Errorf("between_polls[%d]: sql is required", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateExpect(e *ExpectClause) error {
	switch e.Kind {
	case "":
		return fmt.Errorf("expect.kind is required")
	case KindClaimed, KindClaimFailed:
		if e.Error != "" {
			return fmt.Errorf("expect.error is only valid with kind %q", KindError)
		}
	case KindError:
		switch e.Error {
		case ErrorConfiguration, ErrorConnection, ErrorOther:
		case "":
			return fmt.Errorf("expect.error is required with kind %q", KindError)
		default:
			return fmt.Errorf("expect.error: unknown class %q", e.Error)
		}
	default:
		return fmt.Errorf("expect.kind: unknown kind %q", e.Kind)
	}
	if e.Record != nil && e.Kind != KindClaimed {
		return fmt.Errorf("expect.record is only valid with kind %q", KindClaimed)
	}
	if e.ReasonContains != "" && e.Kind != KindClaimFailed {
		return fmt.Errorf("expect.reason_contains is only valid with kind %q", KindClaimFailed)
	}
	if e.Polls < 0 {
		return fmt.Errorf("expect.polls must be non-negative")
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertRowCount:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for row_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
