package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/forge/internal/bus"
	"github.com/roach88/forge/internal/compiler"
	"github.com/roach88/forge/internal/dice"
	"github.com/roach88/forge/internal/formula"
	"github.com/roach88/forge/internal/ir"
	"github.com/roach88/forge/internal/rules"
)

// Default cascade limits, shared with the rule engine.
const (
	DefaultMaxDepth = rules.DefaultMaxDepth
	DefaultMaxSteps = rules.DefaultMaxSteps
)

// Engine owns an entity arena bound to one schema.
//
// Thread-safety model:
//   - every exported method is safe for concurrent use
//   - mutations of one entity are serialised by that entity's lock
//   - a call made with a context handed out by the engine (bus listeners,
//     rule effects) re-enters the locks that context already holds
//
// INVARIANTS:
//   - the schema never changes after New
//   - entity Values hold base values only, keyed by field machine id
//   - modifier targets are field machine ids
type Engine struct {
	schema *ir.Schema

	mu       sync.RWMutex
	entities map[ir.EntityID]*ir.Entity
	order    []ir.EntityID
	round    int

	locks  *entityLocks
	bus    *bus.Bus[ir.Event]
	rules  *rules.Engine
	eval   *formula.Evaluator
	roller *dice.Roller
	clock  SeqClock
	ids    IDGenerator
	logger *slog.Logger

	diceSource dice.Source
	maxDepth   int
	maxSteps   int
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithMaxDepth sets the maximum rule re-entry depth of a cascade.
//
// Default: 16 (DefaultMaxDepth)
func WithMaxDepth(n int) EngineOption {
	return func(e *Engine) {
		e.maxDepth = n
	}
}

// WithMaxSteps sets the maximum number of rule firings per cascade.
//
// Default: 1000 steps (DefaultMaxSteps)
// Use WithMaxSteps(10) for testing quota enforcement.
func WithMaxSteps(n int) EngineOption {
	return func(e *Engine) {
		e.maxSteps = n
	}
}

// WithDiceSource sets the random source of every roll the engine makes.
func WithDiceSource(src dice.Source) EngineOption {
	return func(e *Engine) {
		e.diceSource = src
	}
}

// WithIDGenerator sets the generator of entity and modifier ids.
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithLogger sets the logger used by the engine and its components.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithClock sets the logical clock.
func WithClock(c SeqClock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// New creates an Engine for a schema. The schema is validated first and
// must not be modified afterwards.
func New(schema *ir.Schema, opts ...EngineOption) (*Engine, error) {
	if schema == nil {
		return nil, fmt.Errorf("engine: nil schema")
	}
	if errs := compiler.Validate(schema); len(errs) > 0 {
		return nil, fmt.Errorf("engine: invalid schema: %w", compiler.ValidationErrors(errs))
	}

	e := &Engine{
		schema:   schema,
		entities: make(map[ir.EntityID]*ir.Entity),
		locks:    newEntityLocks(),
		clock:    NewClock(),
		ids:      UUIDv7Generator{},
		logger:   slog.Default(),
		maxDepth: DefaultMaxDepth,
		maxSteps: DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.eval = formula.New(formula.WithLogger(e.logger))
	diceOpts := []dice.Option{dice.WithEvaluator(e.eval), dice.WithLogger(e.logger)}
	if e.diceSource != nil {
		diceOpts = append(diceOpts, dice.WithSource(e.diceSource))
	}
	e.roller = dice.New(diceOpts...)
	e.bus = bus.New[ir.Event](bus.WithLogger(e.logger))
	e.rules = rules.New(schema, ruleHost{e},
		rules.WithEvaluator(e.eval),
		rules.WithRoller(e.roller),
		rules.WithLogger(e.logger),
		rules.WithMaxDepth(e.maxDepth),
		rules.WithMaxSteps(e.maxSteps),
	)
	return e, nil
}

// Schema returns the engine's schema. Callers must not modify it.
func (e *Engine) Schema() *ir.Schema {
	return e.schema
}

// Events returns the bus every engine event is published on.
func (e *Engine) Events() *bus.Bus[ir.Event] {
	return e.bus
}

// On subscribes to an event name, or to every event with bus.Wildcard.
func (e *Engine) On(name string, fn bus.Listener[ir.Event]) func() {
	return e.bus.On(name, fn)
}

// Once subscribes for a single delivery.
func (e *Engine) Once(name string, fn bus.Listener[ir.Event]) func() {
	return e.bus.Once(name, fn)
}

// Round returns the current round.
func (e *Engine) Round() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.round
}

// SetRound sets the current round. Modifiers record it when applied and
// SweepExpired measures round durations against it.
func (e *Engine) SetRound(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.round = n
}

// CreateOption configures CreateEntity.
type CreateOption func(*createConfig)

type createConfig struct {
	id     ir.EntityID
	values ir.Object
}

// WithEntityID creates the entity under a caller-chosen id.
func WithEntityID(id ir.EntityID) CreateOption {
	return func(c *createConfig) {
		c.id = id
	}
}

// WithValues sets initial base values. Keys may use any field reference.
func WithValues(values ir.Object) CreateOption {
	return func(c *createConfig) {
		c.values = values
	}
}

// CreateEntity adds an entity of the given type with every base field set
// to its default. Creation emits no events.
func (e *Engine) CreateEntity(ctx context.Context, typeID string, opts ...CreateOption) (ir.EntityID, error) {
	et, ok := e.schema.EntityType(typeID)
	if !ok {
		return "", unknownEntityType(typeID)
	}

	var cfg createConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.id == "" {
		cfg.id = ir.EntityID(e.ids.Generate())
	}

	ent := &ir.Entity{ID: cfg.id, Type: et.ID, Values: ir.Object{}}
	for i := range et.Fields {
		f := &et.Fields[i]
		if f.Derived() {
			continue
		}
		ent.Values[f.ID] = ir.CloneValue(f.ZeroValue())
	}
	for _, key := range cfg.values.SortedKeys() {
		f, ok := et.Field(key)
		if !ok {
			return "", unknownField(et.ID, key)
		}
		if isDerived(f) {
			return "", fmt.Errorf("%w: %s.%s", ErrDerivedField, et.ID, f.ID)
		}
		ent.Values[f.ID] = coerce(f, ir.CloneValue(cfg.values[key]))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.entities[ent.ID]; exists {
		return "", fmt.Errorf("%w: %s", ErrEntityExists, ent.ID)
	}
	e.entities[ent.ID] = ent
	e.order = append(e.order, ent.ID)

	e.logger.Debug("entity created",
		"entity", ent.ID,
		"type", ent.Type,
	)
	return ent.ID, nil
}

// DeleteEntity removes an entity.
func (e *Engine) DeleteEntity(ctx context.Context, id ir.EntityID) error {
	return e.withEntity(ctx, id, func(context.Context, *ir.Entity, *ir.EntityType) error {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.remove(id)
		return nil
	})
}

// remove drops id from the arena. Caller holds e.mu.
func (e *Engine) remove(id ir.EntityID) {
	delete(e.entities, id)
	for i, oid := range e.order {
		if oid == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

// Entities returns every entity id in creation order.
func (e *Engine) Entities() []ir.EntityID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]ir.EntityID(nil), e.order...)
}

func (e *Engine) lookup(id ir.EntityID) (*ir.Entity, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ent, ok := e.entities[id]
	return ent, ok
}

func entityNotFound(id ir.EntityID) error {
	return fmt.Errorf("%w: %s", ErrEntityNotFound, id)
}

func unknownEntityType(typeID string) error {
	return fmt.Errorf("%w: %s", ErrUnknownEntityType, typeID)
}

func unknownField(typeID, field string) error {
	return fmt.Errorf("%w: %s.%s", ErrUnknownField, typeID, field)
}
