package engine

import (
	"context"

	"github.com/roach88/forge/internal/dice"
	"github.com/roach88/forge/internal/formula"
	"github.com/roach88/forge/internal/ir"
)

// dispatch stamps ev with the next seq, publishes it on the bus and runs
// the rules listening for it. Caller holds the entity lock for
// ev.EntityID, if any.
func (e *Engine) dispatch(ctx context.Context, ev ir.Event) error {
	ev.Seq = e.clock.Next()
	e.bus.Emit(ctx, ev.Name, ev)

	if ev.EntityID == "" {
		return nil
	}
	ent, ok := e.lookup(ev.EntityID)
	if !ok {
		return nil
	}
	return e.rules.ExecuteForEvent(ctx, ev.Name, ent, ev)
}

// Trigger emits an application-defined event for an entity and runs the
// rules listening for it.
func (e *Engine) Trigger(ctx context.Context, id ir.EntityID, name string, payload ir.Object) error {
	return e.withEntity(ctx, id, func(ctx context.Context, _ *ir.Entity, _ *ir.EntityType) error {
		e.logger.Debug("event triggered",
			"entity", id,
			"event", name,
		)
		return e.dispatch(ctx, ir.Event{
			Name:     name,
			EntityID: id,
			Payload:  payload.Clone(),
		})
	})
}

// Roll rolls a formula with {field} references resolved in the entity's
// scope and emits onRoll. A notation error emits nothing.
//
// The returned error is either the notation error or a cascade guard trip
// from rules listening for onRoll; the Result is valid in the latter case.
func (e *Engine) Roll(ctx context.Context, id ir.EntityID, src, label string) (dice.Result, error) {
	var res dice.Result
	err := e.withEntity(ctx, id, func(ctx context.Context, ent *ir.Entity, et *ir.EntityType) error {
		r, err := e.roller.RollWithContext(src, e.scope(ent, et))
		if err != nil {
			return err
		}
		res = r
		return e.dispatch(ctx, ir.Event{
			Name:     ir.EventRoll,
			EntityID: id,
			Roll:     r.Record(label),
		})
	})
	return res, err
}

// Roller returns the engine's dice roller.
func (e *Engine) Roller() *dice.Roller {
	return e.roller
}

// ruleHost is the rules.Host view of the engine. Rule effects always run
// inside a dispatch, so the context they carry holds the entity lock.
type ruleHost struct {
	e *Engine
}

func (h ruleHost) GetValue(ctx context.Context, id ir.EntityID, field string) ir.Value {
	return h.e.GetValue(ctx, id, field)
}

func (h ruleHost) SetValue(ctx context.Context, id ir.EntityID, field string, v ir.Value) error {
	return h.e.SetValue(ctx, id, field, v)
}

func (h ruleHost) AddModifier(ctx context.Context, id ir.EntityID, m ir.Modifier) (ir.Modifier, error) {
	return h.e.AddModifier(ctx, id, m)
}

func (h ruleHost) Dispatch(ctx context.Context, ev ir.Event) error {
	if ev.EntityID == "" {
		return h.e.dispatch(ctx, ev)
	}
	return h.e.withEntity(ctx, ev.EntityID, func(ctx context.Context, _ *ir.Entity, _ *ir.EntityType) error {
		return h.e.dispatch(ctx, ev)
	})
}

func (h ruleHost) Scope(ctx context.Context, id ir.EntityID) formula.Context {
	var scope formula.Context = formula.Vars(nil)
	err := h.e.withEntity(ctx, id, func(_ context.Context, ent *ir.Entity, et *ir.EntityType) error {
		scope = h.e.scope(ent, et)
		return nil
	})
	if err != nil {
		h.e.logger.Warn("formula scope unresolved, using empty scope",
			"entity", id,
			"error", err,
		)
	}
	return scope
}
