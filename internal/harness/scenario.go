package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/forge/internal/ir"
)

// Scenario defines one engine scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the path to a .cue, .yaml or .json schema file.
	// LoadScenario resolves it relative to the scenario file.
	Schema string `yaml:"schema"`

	// Compiled is a schema supplied in code. When set, Schema is ignored.
	Compiled *ir.Schema `yaml:"-"`

	// Dice scripts the faces rolled, in order, wrapping when exhausted.
	Dice []int `yaml:"dice,omitempty"`

	// Seed seeds the dice source when Dice is empty. Defaults to 0.
	Seed uint64 `yaml:"seed,omitempty"`

	// MaxDepth and MaxSteps override the cascade limits when positive.
	MaxDepth int `yaml:"max_depth,omitempty"`
	MaxSteps int `yaml:"max_steps,omitempty"`

	// Entities are created, in order, before the first step.
	Entities []EntitySetup `yaml:"entities"`

	// Steps drive the engine.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state and the trace.
	Assertions []Assertion `yaml:"assertions"`
}

// EntitySetup creates one entity.
type EntitySetup struct {
	ID     string         `yaml:"id"`
	Type   string         `yaml:"type"`
	Values map[string]any `yaml:"values,omitempty"`
}

// Step is one engine call. Which fields apply depends on Action.
type Step struct {
	Action string `yaml:"action"`
	Entity string `yaml:"entity,omitempty"`

	// set_value
	Field string `yaml:"field,omitempty"`
	Value any    `yaml:"value,omitempty"`

	// trigger
	Event   string         `yaml:"event,omitempty"`
	Payload map[string]any `yaml:"payload,omitempty"`

	// roll
	Formula string `yaml:"formula,omitempty"`
	Label   string `yaml:"label,omitempty"`

	// add_modifier (Field is the target) and remove_modifier
	Kind     string `yaml:"kind,omitempty"`
	Duration string `yaml:"duration,omitempty"`
	Source   string `yaml:"source,omitempty"`
	Modifier string `yaml:"modifier,omitempty"`

	// advance_round (defaults to 1) and set_round
	Rounds int `yaml:"rounds,omitempty"`
	Round  int `yaml:"round,omitempty"`

	// ExpectError is a guard code, or "error" for any failure.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step actions.
const (
	ActionSetValue       = "set_value"
	ActionTrigger        = "trigger"
	ActionRoll           = "roll"
	ActionAddModifier    = "add_modifier"
	ActionRemoveModifier = "remove_modifier"
	ActionAdvanceRound   = "advance_round"
	ActionSetRound       = "set_round"
	ActionRest           = "rest"
)

// ExpectAnyError matches every step failure.
const ExpectAnyError = "error"

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type specifies the assertion type; see the Assert constants.
	Type string `yaml:"type"`

	// Entity and Field select a value (value, effective_value) or narrow
	// event assertions to one entity.
	Entity string `yaml:"entity,omitempty"`
	Field  string `yaml:"field,omitempty"`

	// Equals is the expected value.
	Equals any `yaml:"equals,omitempty"`

	// Event names the event (event_emitted, event_count).
	Event string `yaml:"event,omitempty"`

	// Events is the expected order (event_order).
	Events []string `yaml:"events,omitempty"`

	// Count is the expected number (event_count, modifier_count).
	Count int `yaml:"count,omitempty"`

	// Message is the expected onMessage text (message).
	Message string `yaml:"message,omitempty"`
}

// Assertion type constants.
const (
	AssertValue          = "value"
	AssertEffectiveValue = "effective_value"
	AssertEventEmitted   = "event_emitted"
	AssertEventCount     = "event_count"
	AssertEventOrder     = "event_order"
	AssertMessage        = "message"
	AssertModifierCount  = "modifier_count"
)

// LoadScenario reads and parses a scenario YAML file. The schema path is
// resolved relative to the scenario's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the schema path relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) && basePath != "" {
		scenario.Schema = filepath.Join(basePath, scenario.Schema)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Compiled == nil {
		if s.Schema == "" {
			return fmt.Errorf("schema is required")
		}
		if _, err := os.Stat(s.Schema); os.IsNotExist(err) {
			return fmt.Errorf("schema file not found: %s", s.Schema)
		}
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	seen := make(map[string]bool)
	for i, ent := range s.Entities {
		if ent.ID == "" {
			return fmt.Errorf("entities[%d]: id is required", i)
		}
		if ent.Type == "" {
			return fmt.Errorf("entities[%d]: type is required", i)
		}
		if seen[ent.ID] {
			return fmt.Errorf("entities[%d]: duplicate id %q", i, ent.ID)
		}
		seen[ent.ID] = true
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateStep checks the fields each action needs.
func validateStep(index int, st *Step) error {
	needEntity := func() error {
		if st.Entity == "" {
			return fmt.Errorf("steps[%d]: entity is required for %s", index, st.Action)
		}
		return nil
	}

	switch st.Action {
	case "":
		return fmt.Errorf("steps[%d]: action is required", index)
	case ActionSetValue:
		if err := needEntity(); err != nil {
			return err
		}
		if st.Field == "" {
			return fmt.Errorf("steps[%d]: field is required for set_value", index)
		}
	case ActionTrigger:
		if err := needEntity(); err != nil {
			return err
		}
		if st.Event == "" {
			return fmt.Errorf("steps[%d]: event is required for trigger", index)
		}
	case ActionRoll:
		if err := needEntity(); err != nil {
			return err
		}
		if st.Formula == "" {
			return fmt.Errorf("steps[%d]: formula is required for roll", index)
		}
	case ActionAddModifier:
		if err := needEntity(); err != nil {
			return err
		}
		if st.Field == "" {
			return fmt.Errorf("steps[%d]: field is required for add_modifier", index)
		}
		if _, err := ir.ParseDuration(st.Duration); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
	case ActionRemoveModifier:
		if err := needEntity(); err != nil {
			return err
		}
		if st.Modifier == "" {
			return fmt.Errorf("steps[%d]: modifier is required for remove_modifier", index)
		}
	case ActionRest:
		return needEntity()
	case ActionAdvanceRound:
		if st.Rounds < 0 {
			return fmt.Errorf("steps[%d]: rounds must be non-negative", index)
		}
	case ActionSetRound:
		if st.Round < 0 {
			return fmt.Errorf("steps[%d]: round must be non-negative", index)
		}
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", index, st.Action)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertValue, AssertEffectiveValue:
		if a.Entity == "" || a.Field == "" {
			return fmt.Errorf("assertions[%d]: entity and field are required for %s", index, a.Type)
		}
	case AssertEventEmitted:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_emitted", index)
		}
	case AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertEventOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for event_order", index)
		}
	case AssertMessage:
		if a.Message == "" {
			return fmt.Errorf("assertions[%d]: message is required for message", index)
		}
	case AssertModifierCount:
		if a.Entity == "" {
			return fmt.Errorf("assertions[%d]: entity is required for modifier_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for modifier_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
