package engine

import (
	"context"
	"fmt"

	"github.com/roach88/forge/internal/ir"
	"github.com/roach88/forge/internal/modifier"
)

// AddModifier attaches a modifier to an entity and emits onModifierAdded.
// The engine issues the id, the logical appliedAt timestamp and the
// current round; caller-supplied values for those are ignored. The target
// may be any field reference and is stored as the machine id.
func (e *Engine) AddModifier(ctx context.Context, id ir.EntityID, m ir.Modifier) (ir.Modifier, error) {
	var added ir.Modifier
	err := e.withEntity(ctx, id, func(ctx context.Context, ent *ir.Entity, et *ir.EntityType) error {
		f, ok := et.Field(m.Target)
		if !ok {
			return unknownField(et.ID, m.Target)
		}
		if !m.Kind.Valid() {
			return fmt.Errorf("%w: kind %q", ErrInvalidModifier, m.Kind)
		}
		if m.Duration.Kind == ir.DurationRounds && m.Duration.Rounds < 1 {
			return fmt.Errorf("%w: duration %s", ErrInvalidModifier, m.Duration)
		}

		m = m.Clone()
		m.ID = e.ids.Generate()
		m.Target = f.ID
		m.Kind = m.Kind.Canonical()
		if m.Duration.Kind == "" {
			m.Duration = ir.Permanent
		}
		if m.Value == nil {
			m.Value = ir.Number(0)
		}
		m.AppliedAt = e.clock.Next()
		m.AppliedAtRound = e.Round()
		m.Expired = false

		ent.Modifiers = append(ent.Modifiers, m)
		added = m.Clone()

		e.logger.Debug("modifier added",
			"entity", id,
			"modifier", m.ID,
			"target", m.Target,
			"kind", m.Kind,
			"duration", m.Duration.String(),
		)
		ev := added.Clone()
		return e.dispatch(ctx, ir.Event{
			Name:     ir.EventModifierAdded,
			EntityID: id,
			FieldID:  m.Target,
			Modifier: &ev,
		})
	})
	return added, err
}

// RemoveModifier detaches a modifier and emits onModifierRemoved.
func (e *Engine) RemoveModifier(ctx context.Context, id ir.EntityID, modifierID string) error {
	return e.withEntity(ctx, id, func(ctx context.Context, ent *ir.Entity, _ *ir.EntityType) error {
		idx := -1
		for i, m := range ent.Modifiers {
			if m.ID == modifierID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("%w: %s on %s", ErrModifierNotFound, modifierID, id)
		}
		removed := ent.Modifiers[idx]
		ent.Modifiers = append(ent.Modifiers[:idx:idx], ent.Modifiers[idx+1:]...)
		return e.emitRemoved(ctx, id, []ir.Modifier{removed})
	})
}

// Modifiers returns a copy of the entity's modifiers.
func (e *Engine) Modifiers(ctx context.Context, id ir.EntityID) ([]ir.Modifier, error) {
	var out []ir.Modifier
	err := e.withEntity(ctx, id, func(_ context.Context, ent *ir.Entity, _ *ir.EntityType) error {
		out = make([]ir.Modifier, len(ent.Modifiers))
		for i, m := range ent.Modifiers {
			out[i] = m.Clone()
		}
		return nil
	})
	return out, err
}

// SweepExpired drops the entity's modifiers that have expired by the
// current round, emitting onModifierRemoved for each. It returns the
// removed modifiers.
func (e *Engine) SweepExpired(ctx context.Context, id ir.EntityID) ([]ir.Modifier, error) {
	var removed []ir.Modifier
	err := e.withEntity(ctx, id, func(ctx context.Context, ent *ir.Entity, _ *ir.EntityType) error {
		removed = e.sweep(ent)
		return e.emitRemoved(ctx, id, removed)
	})
	return removed, err
}

// Rest flags the entity's until_rest modifiers as expired and sweeps.
func (e *Engine) Rest(ctx context.Context, id ir.EntityID) ([]ir.Modifier, error) {
	var removed []ir.Modifier
	err := e.withEntity(ctx, id, func(ctx context.Context, ent *ir.Entity, _ *ir.EntityType) error {
		for i := range ent.Modifiers {
			if ent.Modifiers[i].Duration.Kind == ir.DurationUntilRest {
				ent.Modifiers[i].Expired = true
			}
		}
		removed = e.sweep(ent)
		return e.emitRemoved(ctx, id, removed)
	})
	return removed, err
}

// AdvanceRound increments the round and sweeps every entity. The first
// guard trip of any resulting cascade is returned after all entities have
// been swept.
func (e *Engine) AdvanceRound(ctx context.Context) (int, error) {
	e.mu.Lock()
	e.round++
	round := e.round
	e.mu.Unlock()

	var first error
	for _, id := range e.Entities() {
		if _, err := e.SweepExpired(ctx, id); err != nil && first == nil {
			first = err
		}
	}
	return round, first
}

// sweep removes expired modifiers from ent and returns them. Caller holds
// the entity lock.
func (e *Engine) sweep(ent *ir.Entity) []ir.Modifier {
	round := e.Round()
	var kept, removed []ir.Modifier
	for _, m := range ent.Modifiers {
		if modifier.Expired(m, round) {
			removed = append(removed, m)
			continue
		}
		kept = append(kept, m)
	}
	if len(removed) > 0 {
		ent.Modifiers = kept
	}
	return removed
}

func (e *Engine) emitRemoved(ctx context.Context, id ir.EntityID, removed []ir.Modifier) error {
	var first error
	for _, m := range removed {
		e.logger.Debug("modifier removed",
			"entity", id,
			"modifier", m.ID,
			"target", m.Target,
		)
		ev := m.Clone()
		if err := e.dispatch(ctx, ir.Event{
			Name:     ir.EventModifierRemoved,
			EntityID: id,
			FieldID:  m.Target,
			Modifier: &ev,
		}); err != nil && first == nil {
			first = err
		}
	}
	return first
}
