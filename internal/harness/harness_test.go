package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/forge/internal/compiler"
	"github.com/roach88/forge/internal/ir"
	"github.com/roach88/forge/internal/store"
)

// loadSchema compiles a schema from testdata/schemas.
func loadSchema(t *testing.T, name string) *ir.Schema {
	t.Helper()
	schema, err := compiler.LoadFile(filepath.Join("testdata", "schemas", name))
	require.NoError(t, err)
	return schema
}

// duelScenario builds an in-memory scenario over one duelist.
func duelScenario(t *testing.T, steps []Step, assertions ...Assertion) *Scenario {
	t.Helper()
	if len(assertions) == 0 {
		assertions = []Assertion{{Type: AssertModifierCount, Entity: "duel-1"}}
	}
	return &Scenario{
		Name:        "duel",
		Description: "duelist scenario",
		Compiled:    loadSchema(t, "duel.json"),
		Entities:    []EntitySetup{{ID: "duel-1", Type: "duelist"}},
		Steps:       steps,
		Assertions:  assertions,
	}
}

func TestRun_Fixtures(t *testing.T) {
	for _, name := range []string{"bloodied_and_down", "cascade_guard"} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_FinalState(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "bloodied_and_down.yaml"))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)

	state, ok := result.State["hero-1"]
	require.True(t, ok)
	assert.True(t, ir.Equal(ir.Number(0), state["hp"]), "hp = %s", ir.FormatValue(state["hp"]))
	assert.True(t, ir.Equal(ir.Text("bloodied"), state["status"]))
	assert.True(t, ir.Equal(ir.Number(14), state["str"]))
}

func TestRun_TraceStepTags(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "bloodied_and_down.yaml"))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.NotEmpty(t, result.Trace)

	prev := int64(0)
	for _, te := range result.Trace {
		assert.Greater(t, te.Step, 0, "no events during setup")
		assert.Greater(t, te.Event.Seq, prev, "trace is in seq order")
		prev = te.Event.Seq
	}
	assert.Len(t, result.Events(), len(result.Trace))
}

func TestRun_ModifierActions(t *testing.T) {
	scenario := duelScenario(t,
		[]Step{
			{Action: ActionAddModifier, Entity: "duel-1", Field: "counter", Value: 2, Duration: "until_rest", Source: "Rage"},
			{Action: ActionAddModifier, Entity: "duel-1", Field: "Counter", Value: 3},
			{Action: ActionRemoveModifier, Entity: "duel-1", Modifier: "mod-2"},
			{Action: ActionSetRound, Round: 5},
			{Action: ActionRest, Entity: "duel-1"},
		},
		Assertion{Type: AssertModifierCount, Entity: "duel-1", Count: 0},
		Assertion{Type: AssertEventCount, Event: ir.EventModifierAdded, Count: 2},
		Assertion{Type: AssertEventCount, Event: ir.EventModifierRemoved, Count: 2},
		Assertion{Type: AssertEffectiveValue, Entity: "duel-1", Field: "counter", Equals: 0},
	)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 4)
	assert.Equal(t, 1, result.Trace[0].Step)
	assert.Equal(t, "mod-1", result.Trace[0].Event.Modifier.ID)
	assert.Equal(t, "mod-2", result.Trace[2].Event.Modifier.ID)
	assert.Equal(t, 5, result.Trace[3].Step)
	assert.Equal(t, "Rage", result.Trace[3].Event.Modifier.Source)
}

func TestRun_EffectiveValueWithModifier(t *testing.T) {
	scenario := duelScenario(t,
		[]Step{
			{Action: ActionAddModifier, Entity: "duel-1", Field: "counter", Value: 4, Duration: "rounds:2"},
			{Action: ActionAdvanceRound},
		},
		Assertion{Type: AssertValue, Entity: "duel-1", Field: "counter", Equals: 0},
		Assertion{Type: AssertEffectiveValue, Entity: "duel-1", Field: "counter", Equals: 4},
		Assertion{Type: AssertModifierCount, Entity: "duel-1", Count: 1},
	)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_RollWithSeed(t *testing.T) {
	scenario := duelScenario(t,
		[]Step{{Action: ActionRoll, Entity: "duel-1", Formula: "2d6+1", Label: "Parry"}},
		Assertion{Type: AssertEventEmitted, Event: ir.EventRoll, Entity: "duel-1"},
	)
	scenario.Seed = 42

	first, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, first.Pass, "errors: %v", first.Errors)

	second, err := Run(scenario)
	require.NoError(t, err)

	require.Len(t, first.Trace, 1)
	roll := first.Trace[0].Event.Roll
	require.NotNil(t, roll)
	assert.Equal(t, "Parry", roll.Label)
	assert.GreaterOrEqual(t, roll.Total, 3)
	assert.LessOrEqual(t, roll.Total, 13)
	assert.Equal(t, roll.Total, second.Trace[0].Event.Roll.Total, "same seed, same roll")
}

func TestRun_RollWithDiceSequence(t *testing.T) {
	scenario := duelScenario(t,
		[]Step{{Action: ActionRoll, Entity: "duel-1", Formula: "1d20"}},
		Assertion{Type: AssertEventEmitted, Event: ir.EventRoll},
	)
	scenario.Dice = []int{20}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, 20, result.Trace[0].Event.Roll.Total)
	assert.True(t, result.Trace[0].Event.Roll.Critical)
}

func TestRun_UnexpectedStepError(t *testing.T) {
	scenario := duelScenario(t, []Step{
		{Action: ActionSetValue, Entity: "ghost", Field: "counter", Value: 1},
	})

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "step 1 (set_value)")
}

func TestRun_ExpectAnyError(t *testing.T) {
	scenario := duelScenario(t, []Step{
		{Action: ActionSetValue, Entity: "duel-1", Field: "missing", Value: 1, ExpectError: ExpectAnyError},
	})

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_ExpectedErrorMissing(t *testing.T) {
	scenario := duelScenario(t, []Step{
		{Action: ActionSetValue, Entity: "duel-1", Field: "stance", Value: "idle", ExpectError: "CYCLE_DETECTED"},
	})

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected error CYCLE_DETECTED, got none")
}

func TestRun_ExpectedErrorCodeMismatch(t *testing.T) {
	scenario := duelScenario(t, []Step{
		{Action: ActionSetValue, Entity: "duel-1", Field: "stance", Value: "attack", ExpectError: "DEPTH_EXCEEDED"},
	})

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected error DEPTH_EXCEEDED")
	assert.Contains(t, result.Errors[0], "CYCLE_DETECTED")
}

// The counter rule adds one on every counter change, so a single write
// cascades until a limit trips.
func TestRun_Limits(t *testing.T) {
	tests := []struct {
		name        string
		opts        []RunOption
		maxDepth    int
		expectError string
		counter     int
	}{
		{
			name:        "default depth",
			expectError: "DEPTH_EXCEEDED",
			counter:     16,
		},
		{
			name:        "depth from options",
			opts:        []RunOption{WithLimits(3, 0)},
			expectError: "DEPTH_EXCEEDED",
			counter:     3,
		},
		{
			name:        "scenario depth wins",
			opts:        []RunOption{WithLimits(3, 0)},
			maxDepth:    2,
			expectError: "DEPTH_EXCEEDED",
			counter:     2,
		},
		{
			name:        "step quota",
			opts:        []RunOption{WithLimits(100, 5)},
			expectError: "QUOTA_EXCEEDED",
			counter:     5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenario := duelScenario(t,
				[]Step{{Action: ActionSetValue, Entity: "duel-1", Field: "counter", Value: 0, ExpectError: tt.expectError}},
				Assertion{Type: AssertValue, Entity: "duel-1", Field: "counter", Equals: tt.counter},
			)
			scenario.MaxDepth = tt.maxDepth

			result, err := Run(scenario, tt.opts...)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_FailingAssertion(t *testing.T) {
	scenario := duelScenario(t,
		[]Step{{Action: ActionSetValue, Entity: "duel-1", Field: "stance", Value: "idle"}},
		Assertion{Type: AssertValue, Entity: "duel-1", Field: "stance", Equals: "attack"},
	)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `duel-1.stance = "attack"`)
	assert.Contains(t, result.Errors[0], `"idle"`)
}

func TestRun_SetupError(t *testing.T) {
	scenario := duelScenario(t, []Step{{Action: ActionAdvanceRound}})
	scenario.Entities = []EntitySetup{{ID: "x-1", Type: "dragon"}}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to execute setup")
}

func TestRun_SchemaLoadError(t *testing.T) {
	scenario := &Scenario{
		Name:        "broken",
		Description: "missing schema",
		Schema:      filepath.Join(t.TempDir(), "nope.yaml"),
		Steps:       []Step{{Action: ActionAdvanceRound}},
		Assertions:  []Assertion{{Type: AssertEventCount, Event: "onChange"}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load schema")
}

func TestRun_WithStore(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "forge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "bloodied_and_down.yaml"))
	require.NoError(t, err)

	result, err := Run(scenario, WithStore(st, "run-1"))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	ctx := context.Background()
	recorded, err := st.ReadEvents(ctx, store.EventFilter{RunID: "run-1"})
	require.NoError(t, err)
	require.Len(t, recorded, len(result.Trace))
	for i, rec := range recorded {
		assert.Equal(t, result.Trace[i].Event.Seq, rec.Event.Seq)
		assert.Equal(t, result.Trace[i].Event.Name, rec.Event.Name)
	}

	snap, err := st.LatestSnapshot(ctx, "hero-1")
	require.NoError(t, err)
	assert.Equal(t, "bloodied_and_down", snap.Label)
	assert.Equal(t, result.Trace[len(result.Trace)-1].Event.Seq, snap.Seq)
	assert.True(t, ir.Equal(ir.Number(0), snap.Entity.Values["hp"]))

	// A second run under another id records again but leaves the
	// unchanged snapshot alone.
	_, err = Run(scenario, WithStore(st, "run-2"))
	require.NoError(t, err)

	runs, err := st.Runs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1", "run-2"}, runs)

	snaps, err := st.ListSnapshots(ctx, "hero-1")
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}
