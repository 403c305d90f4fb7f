package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/forge/internal/bus"
	"github.com/roach88/forge/internal/compiler"
	"github.com/roach88/forge/internal/dice"
	"github.com/roach88/forge/internal/engine"
	"github.com/roach88/forge/internal/ir"
	"github.com/roach88/forge/internal/store"
	"github.com/roach88/forge/internal/testutil"
)

// RunOption configures Run.
type RunOption func(*runConfig)

type runConfig struct {
	logger   *slog.Logger
	store    *store.Store
	runID    string
	maxDepth int
	maxSteps int
}

// WithLogger sets the logger handed to the engine. Runs are silent by
// default.
func WithLogger(l *slog.Logger) RunOption {
	return func(c *runConfig) {
		c.logger = l
	}
}

// WithStore records every event under runID and saves a snapshot of every
// entity when the run ends.
func WithStore(st *store.Store, runID string) RunOption {
	return func(c *runConfig) {
		c.store = st
		c.runID = runID
	}
}

// WithLimits sets the cascade limits used when the scenario sets none.
// Non-positive values keep the engine defaults.
func WithLimits(maxDepth, maxSteps int) RunOption {
	return func(c *runConfig) {
		c.maxDepth = maxDepth
		c.maxSteps = maxSteps
	}
}

// Harness drives one engine through one scenario.
type Harness struct {
	engine *engine.Engine
	clock  *testutil.DeterministicClock
	logger *slog.Logger
	result *Result

	// step is the 1-based index of the step running; 0 during setup.
	step int
}

// Run executes a scenario against a fresh engine and returns the result.
//
// Execution flow:
// 1. Compile the schema and create the engine with deterministic helpers
// 2. Create the scenario's entities
// 3. Execute the steps, checking each against its expect_error
// 4. Capture the final state and evaluate assertions
//
// A returned error means the scenario could not run. Failed steps and
// assertions are reported in the Result.
func Run(scenario *Scenario, opts ...RunOption) (*Result, error) {
	cfg := runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}

	schema := scenario.Compiled
	if schema == nil {
		var err error
		schema, err = compiler.LoadFile(scenario.Schema)
		if err != nil {
			return nil, fmt.Errorf("failed to load schema: %w", err)
		}
	}

	var src dice.Source
	if len(scenario.Dice) > 0 {
		src = testutil.NewDiceSequence(scenario.Dice...)
	} else {
		src = dice.NewSource(scenario.Seed)
	}

	clock := testutil.NewDeterministicClock()
	engineOpts := []engine.EngineOption{
		engine.WithClock(clock),
		engine.WithIDGenerator(testutil.NewSequentialIDGenerator("mod")),
		engine.WithDiceSource(src),
		engine.WithLogger(cfg.logger),
	}
	if d := firstPositive(scenario.MaxDepth, cfg.maxDepth); d > 0 {
		engineOpts = append(engineOpts, engine.WithMaxDepth(d))
	}
	if s := firstPositive(scenario.MaxSteps, cfg.maxSteps); s > 0 {
		engineOpts = append(engineOpts, engine.WithMaxSteps(s))
	}

	eng, err := engine.New(schema, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	h := &Harness{
		engine: eng,
		clock:  clock,
		logger: cfg.logger,
		result: NewResult(),
	}
	eng.On(bus.Wildcard, func(_ context.Context, env bus.Envelope[ir.Event]) error {
		h.result.AddTrace(h.step, env.Data)
		return nil
	})

	var rec *store.Recorder
	if cfg.store != nil {
		rec = store.NewRecorder(cfg.store, cfg.runID, store.WithRecorderLogger(cfg.logger))
		rec.Attach(eng)
	}

	ctx := context.Background()

	if err := h.setup(ctx, scenario.Entities); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	for i, st := range scenario.Steps {
		h.step = i + 1
		h.check(st, h.execute(ctx, st))
	}

	for _, id := range eng.Entities() {
		ent, err := eng.ExportEntity(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to export %s: %w", id, err)
		}
		h.result.State[id] = ent.Values

		if cfg.store != nil {
			if _, _, err := cfg.store.SaveSnapshot(ctx, ent, clock.Current(), scenario.Name); err != nil {
				return nil, fmt.Errorf("failed to save snapshot: %w", err)
			}
		}
	}

	actx := &AssertionContext{Engine: eng, Ctx: ctx}
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(msg)
	}

	if rec != nil && rec.Err() != nil {
		return h.result, fmt.Errorf("failed to record events: %w", rec.Err())
	}
	return h.result, nil
}

// setup creates the scenario's entities in order.
func (h *Harness) setup(ctx context.Context, entities []EntitySetup) error {
	for i, ent := range entities {
		values, err := toObject(ent.Values)
		if err != nil {
			return fmt.Errorf("entity %d (%s): %w", i, ent.ID, err)
		}
		if _, err := h.engine.CreateEntity(ctx, ent.Type,
			engine.WithEntityID(ir.EntityID(ent.ID)),
			engine.WithValues(values),
		); err != nil {
			return fmt.Errorf("entity %d: %w", i, err)
		}
		h.logger.Debug("entity created", "entity", ent.ID, "type", ent.Type)
	}
	return nil
}

// execute runs one step against the engine.
func (h *Harness) execute(ctx context.Context, st Step) error {
	id := ir.EntityID(st.Entity)

	switch st.Action {
	case ActionSetValue:
		v, err := ir.FromAny(st.Value)
		if err != nil {
			return err
		}
		return h.engine.SetValue(ctx, id, st.Field, v)

	case ActionTrigger:
		payload, err := toObject(st.Payload)
		if err != nil {
			return err
		}
		return h.engine.Trigger(ctx, id, st.Event, payload)

	case ActionRoll:
		_, err := h.engine.Roll(ctx, id, st.Formula, st.Label)
		return err

	case ActionAddModifier:
		v, err := ir.FromAny(st.Value)
		if err != nil {
			return err
		}
		d, err := ir.ParseDuration(st.Duration)
		if err != nil {
			return err
		}
		kind := ir.ModifierKind(st.Kind)
		if kind == "" {
			kind = ir.KindAdd
		}
		_, err = h.engine.AddModifier(ctx, id, ir.Modifier{
			Target:   st.Field,
			Value:    v,
			Kind:     kind,
			Duration: d,
			Source:   st.Source,
		})
		return err

	case ActionRemoveModifier:
		return h.engine.RemoveModifier(ctx, id, st.Modifier)

	case ActionAdvanceRound:
		n := st.Rounds
		if n == 0 {
			n = 1
		}
		var first error
		for range n {
			if _, err := h.engine.AdvanceRound(ctx); err != nil && first == nil {
				first = err
			}
		}
		return first

	case ActionSetRound:
		h.engine.SetRound(st.Round)
		return nil

	case ActionRest:
		_, err := h.engine.Rest(ctx, id)
		return err
	}
	return fmt.Errorf("unknown action %q", st.Action)
}

// check compares a step's outcome with its expect_error.
func (h *Harness) check(st Step, err error) {
	prefix := fmt.Sprintf("step %d (%s)", h.step, st.Action)

	switch {
	case err == nil && st.ExpectError == "":
		h.logger.Debug("step completed", "step", h.step, "action", st.Action)
	case err == nil:
		h.result.AddError(fmt.Sprintf("%s: expected error %s, got none", prefix, st.ExpectError))
	case st.ExpectError == "":
		h.result.AddError(fmt.Sprintf("%s: %v", prefix, err))
	case st.ExpectError == ExpectAnyError:
		h.logger.Debug("step failed as expected", "step", h.step, "error", err)
	default:
		var re *engine.RuntimeError
		if !errors.As(err, &re) || string(re.Code) != st.ExpectError {
			h.result.AddError(fmt.Sprintf("%s: expected error %s, got %v", prefix, st.ExpectError, err))
		}
	}
}

// toObject converts YAML-decoded values to an ir.Object.
func toObject(m map[string]any) (ir.Object, error) {
	if m == nil {
		return nil, nil
	}
	v, err := ir.FromAny(m)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(ir.Object)
	if !ok {
		return nil, fmt.Errorf("expected object, got %T", v)
	}
	return obj, nil
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
