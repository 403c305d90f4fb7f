package rules

import (
	"context"
	"log/slog"

	"github.com/roach88/forge/internal/dice"
	"github.com/roach88/forge/internal/formula"
	"github.com/roach88/forge/internal/ir"
)

// Default cascade limits.
const (
	DefaultMaxDepth = 16
	DefaultMaxSteps = 1000
)

// Host is the engine surface effects act through. Every call made by the
// rule engine passes the cascade context on, so the host can re-enter
// ExecuteForEvent with the same guard.
type Host interface {
	// GetValue reads a field's resolved value.
	GetValue(ctx context.Context, id ir.EntityID, field string) ir.Value

	// SetValue writes a field and emits onChange.
	SetValue(ctx context.Context, id ir.EntityID, field string, v ir.Value) error

	// AddModifier attaches a modifier and emits onModifierAdded.
	AddModifier(ctx context.Context, id ir.EntityID, m ir.Modifier) (ir.Modifier, error)

	// Dispatch stamps, publishes and runs rules for an event.
	Dispatch(ctx context.Context, ev ir.Event) error

	// Scope returns the formula context of an entity.
	Scope(ctx context.Context, id ir.EntityID) formula.Context
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxDepth sets the maximum rule re-entry depth of a cascade.
func WithMaxDepth(n int) Option {
	return func(e *Engine) {
		e.maxDepth = n
	}
}

// WithMaxSteps sets the maximum number of rule firings in a cascade.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		e.maxSteps = n
	}
}

// WithEvaluator sets the formula evaluator used for operands.
func WithEvaluator(ev *formula.Evaluator) Option {
	return func(e *Engine) {
		e.eval = ev
	}
}

// WithRoller sets the dice roller used by roll_dice.
func WithRoller(r *dice.Roller) Option {
	return func(e *Engine) {
		e.roller = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// Engine runs schema rules against events.
type Engine struct {
	schema   *ir.Schema
	host     Host
	eval     *formula.Evaluator
	roller   *dice.Roller
	logger   *slog.Logger
	maxDepth int
	maxSteps int
}

// New creates a rule engine over a read-only schema.
func New(schema *ir.Schema, host Host, opts ...Option) *Engine {
	e := &Engine{
		schema:   schema,
		host:     host,
		logger:   slog.Default(),
		maxDepth: DefaultMaxDepth,
		maxSteps: DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.eval == nil {
		e.eval = formula.New(formula.WithLogger(e.logger))
	}
	if e.roller == nil {
		e.roller = dice.New(dice.WithEvaluator(e.eval), dice.WithLogger(e.logger))
	}
	return e
}

// MaxDepth returns the configured depth limit.
func (e *Engine) MaxDepth() int { return e.maxDepth }

// MaxSteps returns the configured step limit.
func (e *Engine) MaxSteps() int { return e.maxSteps }

// ExecuteForEvent runs every rule of the entity's type, then every global
// rule, whose trigger is eventType and whose field filter matches.
//
// When ctx carries no cascade, this call is the top level: it opens one and
// returns the first guard trip of the whole cascade. Nested calls return nil
// and leave reporting to the top level.
func (e *Engine) ExecuteForEvent(ctx context.Context, eventType string, entity *ir.Entity, ev ir.Event) error {
	c, nested := CascadeFrom(ctx)
	if !nested {
		c = newCascade(e.maxSteps)
		ctx = withCascade(ctx, c)
	}

	e.execute(ctx, c, eventType, entity, ev)

	if nested {
		return nil
	}
	return c.Err()
}

func (e *Engine) execute(ctx context.Context, c *Cascade, eventType string, entity *ir.Entity, ev ir.Event) {
	if c.Halted() {
		return
	}

	et, ok := e.schema.EntityType(entity.Type)
	if !ok {
		e.logger.Warn("rules skipped for unknown entity type",
			"entity", entity.ID,
			"type", entity.Type,
		)
		return
	}

	matched := e.Matching(et, eventType, ev.FieldID)
	if len(matched) == 0 {
		return
	}

	depth := Depth(ctx)
	if depth >= e.maxDepth {
		c.trip(NewDepthError(entity.ID, eventType, depth, e.maxDepth))
		e.logger.Error("max cascade depth exceeded",
			"entity", entity.ID,
			"event", eventType,
			"depth", depth,
			"max_depth", e.maxDepth,
		)
		return
	}
	ctx = withDepth(ctx, depth+1)

	evHash, err := ir.EventHash(ev)
	if err != nil {
		e.logger.Warn("event hash failed, cycle detection disabled for event",
			"entity", entity.ID,
			"event", eventType,
			"error", err,
		)
	}

	for _, rule := range matched {
		if c.Halted() {
			return
		}

		pass, err := e.ConditionsHold(ctx, entity.ID, rule, ev)
		if err != nil {
			e.logger.Warn("rule condition failed",
				"rule", rule.ID,
				"entity", entity.ID,
				"event", eventType,
				"error", err,
			)
			continue
		}
		if !pass {
			continue
		}

		if evHash != "" {
			if c.Cycles.WouldCycle(rule.ID, string(entity.ID), evHash) {
				c.trip(NewCycleError(rule.ID, entity.ID, eventType, evHash))
				e.logger.Warn("rule cycle detected, skipping firing",
					"rule", rule.ID,
					"entity", entity.ID,
					"event", eventType,
				)
				continue
			}
		}

		if steps, ok := c.Quota.Step(); !ok {
			c.trip(NewQuotaError(rule.ID, entity.ID, eventType, steps, c.Quota.MaxSteps()))
			c.halt()
			e.logger.Error("max steps quota exceeded",
				"rule", rule.ID,
				"entity", entity.ID,
				"event", eventType,
				"steps", steps,
				"max_steps", c.Quota.MaxSteps(),
			)
			return
		}

		e.logger.Debug("rule fired",
			"rule", rule.ID,
			"entity", entity.ID,
			"event", eventType,
			"depth", depth+1,
		)
		e.fire(ctx, c, entity.ID, rule, ev, evHash)
	}
}

// fire runs the effects of one rule firing, holding its cycle key for the
// duration.
func (e *Engine) fire(ctx context.Context, c *Cascade, id ir.EntityID, rule ir.Rule, ev ir.Event, evHash string) {
	if evHash != "" {
		c.Cycles.Record(rule.ID, string(id), evHash)
		defer c.Cycles.Release(rule.ID, string(id), evHash)
	}
	e.runEffects(ctx, id, rule, ev)
}

// Matching returns the local rules of et, then the global rules, whose
// trigger is eventType and whose field filter resolves to fieldID.
func (e *Engine) Matching(et *ir.EntityType, eventType, fieldID string) []ir.Rule {
	var out []ir.Rule
	collect := func(rules []ir.Rule) {
		for _, r := range rules {
			if r.Trigger != eventType {
				continue
			}
			if r.FieldFilter != "" && resolveField(et, r.FieldFilter) != fieldID {
				continue
			}
			out = append(out, r)
		}
	}
	collect(et.Rules)
	collect(e.schema.GlobalRules)
	return out
}

// resolveField maps a field reference to its machine id. Unresolvable
// references are returned unchanged.
func resolveField(et *ir.EntityType, ref string) string {
	if f, ok := et.Field(ref); ok {
		return f.ID
	}
	return ref
}

func (e *Engine) runEffects(ctx context.Context, id ir.EntityID, rule ir.Rule, ev ir.Event) {
	x := &executor{engine: e, ctx: ctx, entity: id, rule: rule, event: ev}
	for i, eff := range rule.Effects {
		if err := eff.Accept(x); err != nil {
			e.logger.Warn("rule effect failed",
				"rule", rule.ID,
				"entity", id,
				"effect", eff.Kind(),
				"index", i,
				"error", err,
			)
		}
	}
}
