package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario writes content as test.yaml next to a placeholder schema
// and returns the scenario path.
func writeScenario(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schema.yaml"), []byte("entityTypes: []\n"), 0644))
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const minimalScenario = `
name: minimal
description: "Minimal scenario"
schema: schema.yaml
entities:
  - id: hero-1
    type: hero
    values: { hp: 10 }
steps:
  - action: set_value
    entity: hero-1
    field: hp
    value: 5
assertions:
  - type: value
    entity: hero-1
    field: hp
    equals: 5
`

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, minimalScenario)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "minimal", scenario.Name)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "schema.yaml"), scenario.Schema)
	require.Len(t, scenario.Entities, 1)
	assert.Equal(t, "hero-1", scenario.Entities[0].ID)
	assert.Equal(t, 10, scenario.Entities[0].Values["hp"])
	require.Len(t, scenario.Steps, 1)
	assert.Equal(t, ActionSetValue, scenario.Steps[0].Action)
	assert.Equal(t, 5, scenario.Steps[0].Value)
	require.Len(t, scenario.Assertions, 1)
	assert.Equal(t, AssertValue, scenario.Assertions[0].Type)
}

func TestLoadScenario_Fixtures(t *testing.T) {
	for _, name := range []string{"bloodied_and_down", "cascade_guard"} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)
			assert.Equal(t, name, scenario.Name)
			assert.FileExists(t, scenario.Schema)
		})
	}
}

func TestLoadScenarioWithBasePath(t *testing.T) {
	path := writeScenario(t, minimalScenario)
	base := filepath.Dir(path)

	// Load from another working directory's point of view.
	scenario, err := LoadScenarioWithBasePath(path, base)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "schema.yaml"), scenario.Schema)
}

func TestLoadScenario_FileNotFound(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_MalformedYAML(t *testing.T) {
	path := writeScenario(t, "name: [unclosed\n")
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, minimalScenario+"assertion:\n  - type: value\n")
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_SchemaNotFound(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario), 0644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema file not found")
}

func TestValidateScenario(t *testing.T) {
	valid := func() Scenario {
		return Scenario{
			Name:        "s",
			Description: "d",
			Schema:      filepath.Join("testdata", "schemas", "character.yaml"),
			Entities:    []EntitySetup{{ID: "hero-1", Type: "character"}},
			Steps:       []Step{{Action: ActionSetValue, Entity: "hero-1", Field: "hp", Value: 1}},
			Assertions:  []Assertion{{Type: AssertEventEmitted, Event: "onChange"}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(s *Scenario)
		wantErr string
	}{
		{"valid", func(*Scenario) {}, ""},
		{"missing name", func(s *Scenario) { s.Name = "" }, "name is required"},
		{"missing description", func(s *Scenario) { s.Description = "" }, "description is required"},
		{"missing schema", func(s *Scenario) { s.Schema = "" }, "schema is required"},
		{"no steps", func(s *Scenario) { s.Steps = nil }, "steps list is required"},
		{"no assertions", func(s *Scenario) { s.Assertions = nil }, "assertions list is required"},
		{"entity without id", func(s *Scenario) { s.Entities[0].ID = "" }, "entities[0]: id is required"},
		{"entity without type", func(s *Scenario) { s.Entities[0].Type = "" }, "entities[0]: type is required"},
		{"duplicate entity", func(s *Scenario) {
			s.Entities = append(s.Entities, EntitySetup{ID: "hero-1", Type: "character"})
		}, `entities[1]: duplicate id "hero-1"`},
		{"step without action", func(s *Scenario) { s.Steps[0].Action = "" }, "steps[0]: action is required"},
		{"unknown action", func(s *Scenario) { s.Steps[0].Action = "teleport" }, `unknown action "teleport"`},
		{"set_value without field", func(s *Scenario) { s.Steps[0].Field = "" }, "field is required for set_value"},
		{"set_value without entity", func(s *Scenario) { s.Steps[0].Entity = "" }, "entity is required for set_value"},
		{"trigger without event", func(s *Scenario) {
			s.Steps[0] = Step{Action: ActionTrigger, Entity: "hero-1"}
		}, "event is required for trigger"},
		{"roll without formula", func(s *Scenario) {
			s.Steps[0] = Step{Action: ActionRoll, Entity: "hero-1"}
		}, "formula is required for roll"},
		{"bad duration", func(s *Scenario) {
			s.Steps[0] = Step{Action: ActionAddModifier, Entity: "hero-1", Field: "hp", Duration: "forever"}
		}, `invalid duration "forever"`},
		{"remove without id", func(s *Scenario) {
			s.Steps[0] = Step{Action: ActionRemoveModifier, Entity: "hero-1"}
		}, "modifier is required"},
		{"rest without entity", func(s *Scenario) { s.Steps[0] = Step{Action: ActionRest} }, "entity is required for rest"},
		{"negative rounds", func(s *Scenario) {
			s.Steps[0] = Step{Action: ActionAdvanceRound, Rounds: -1}
		}, "rounds must be non-negative"},
		{"assertion without type", func(s *Scenario) { s.Assertions[0].Type = "" }, "assertions[0]: type is required"},
		{"unknown assertion", func(s *Scenario) { s.Assertions[0].Type = "vibes" }, `unknown assertion type "vibes"`},
		{"value without field", func(s *Scenario) {
			s.Assertions[0] = Assertion{Type: AssertValue, Entity: "hero-1"}
		}, "entity and field are required for value"},
		{"event_order without events", func(s *Scenario) {
			s.Assertions[0] = Assertion{Type: AssertEventOrder}
		}, "events list is required"},
		{"negative count", func(s *Scenario) {
			s.Assertions[0] = Assertion{Type: AssertEventCount, Event: "onChange", Count: -1}
		}, "count must be non-negative"},
		{"message without text", func(s *Scenario) {
			s.Assertions[0] = Assertion{Type: AssertMessage}
		}, "message is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(&s)
			err := validateScenario(&s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateScenario_CompiledSkipsSchemaPath(t *testing.T) {
	s := Scenario{
		Name:        "s",
		Description: "d",
		Compiled:    loadSchema(t, "duel.json"),
		Steps:       []Step{{Action: ActionAdvanceRound}},
		Assertions:  []Assertion{{Type: AssertEventCount, Event: "onChange"}},
	}
	assert.NoError(t, validateScenario(&s))
}
