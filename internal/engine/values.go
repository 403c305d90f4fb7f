package engine

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/forge/internal/formula"
	"github.com/roach88/forge/internal/ir"
	"github.com/roach88/forge/internal/modifier"
)

// GetValue returns a field's base value: the derived formula's result for
// derived fields, otherwise the stored value or the field default. An
// unknown entity or field logs a warning and yields Null.
func (e *Engine) GetValue(ctx context.Context, id ir.EntityID, field string) ir.Value {
	var out ir.Value = ir.Null{}
	err := e.withEntity(ctx, id, func(_ context.Context, ent *ir.Entity, et *ir.EntityType) error {
		f, ok := et.Field(field)
		if !ok {
			return unknownField(et.ID, field)
		}
		out = e.resolve(ent, et, f, nil)
		return nil
	})
	if err != nil {
		e.logger.Warn("value unresolved, using null",
			"entity", id,
			"field", field,
			"error", err,
		)
	}
	return out
}

// GetEffectiveValue returns GetValue with the entity's modifiers for the
// field applied. Non-numeric values pass through unchanged.
func (e *Engine) GetEffectiveValue(ctx context.Context, id ir.EntityID, field string) ir.Value {
	var out ir.Value = ir.Null{}
	err := e.withEntity(ctx, id, func(_ context.Context, ent *ir.Entity, et *ir.EntityType) error {
		f, ok := et.Field(field)
		if !ok {
			return unknownField(et.ID, field)
		}
		base := e.resolve(ent, et, f, nil)
		if n, ok := base.(ir.Number); ok {
			e.warnUnresolved(id, ent.Modifiers, f.ID)
			out = ir.Number(modifier.Apply(float64(n), ent.Modifiers, f.ID))
			return nil
		}
		out = base
		return nil
	})
	if err != nil {
		e.logger.Warn("effective value unresolved, using null",
			"entity", id,
			"field", field,
			"error", err,
		)
	}
	return out
}

// Breakdown lists the modifiers contributing to a field, for display.
func (e *Engine) Breakdown(ctx context.Context, id ir.EntityID, field string) ([]modifier.Line, error) {
	var out []modifier.Line
	err := e.withEntity(ctx, id, func(_ context.Context, ent *ir.Entity, et *ir.EntityType) error {
		f, ok := et.Field(field)
		if !ok {
			return unknownField(et.ID, field)
		}
		e.warnUnresolved(id, ent.Modifiers, f.ID)
		out = modifier.Breakdown(ent.Modifiers, f.ID)
		return nil
	})
	return out, err
}

func (e *Engine) warnUnresolved(id ir.EntityID, mods []ir.Modifier, target string) {
	for _, m := range modifier.Unresolved(mods, target) {
		e.logger.Warn("modifier value is not numeric, using 0",
			"entity", id,
			"modifier", m.ID,
			"target", target,
			"value", ir.FormatValue(m.Value),
		)
	}
}

// SetValue writes a base field and emits onChange with the previous and
// new values, which runs the rules listening for it. Derived fields are
// rejected with ErrDerivedField. Numeric text written to a numeric field
// and boolean text written to a boolean field are converted.
//
// A non-nil *RuntimeError means the rule cascade was cut short; the write
// itself has been applied.
func (e *Engine) SetValue(ctx context.Context, id ir.EntityID, field string, v ir.Value) error {
	return e.withEntity(ctx, id, func(ctx context.Context, ent *ir.Entity, et *ir.EntityType) error {
		f, ok := et.Field(field)
		if !ok {
			return unknownField(et.ID, field)
		}
		if isDerived(f) {
			return fmt.Errorf("%w: %s.%s", ErrDerivedField, et.ID, f.ID)
		}
		if v == nil {
			v = ir.Null{}
		}
		v = coerce(f, v)
		if f.Type == ir.FieldSelect && len(f.Options) > 0 && !slices.Contains(f.Options, ir.FormatValue(v)) {
			e.logger.Warn("value is not a declared option",
				"entity", id,
				"field", f.ID,
				"value", ir.FormatValue(v),
			)
		}

		prev := e.resolve(ent, et, f, nil)
		if ent.Values == nil {
			ent.Values = ir.Object{}
		}
		ent.Values[f.ID] = ir.CloneValue(v)

		e.logger.Debug("value set",
			"entity", id,
			"field", f.ID,
			"previous", ir.FormatValue(prev),
			"new", ir.FormatValue(v),
		)
		return e.dispatch(ctx, ir.Event{
			Name:     ir.EventChange,
			EntityID: id,
			FieldID:  f.ID,
			Previous: ir.CloneValue(prev),
			New:      ir.CloneValue(v),
		})
	})
}

// Evaluate evaluates a formula in the entity's scope. Variables resolve
// like GetValue, so {hp_max} reads a derived field.
func (e *Engine) Evaluate(ctx context.Context, id ir.EntityID, src string) (ir.Value, error) {
	var out ir.Value
	err := e.withEntity(ctx, id, func(_ context.Context, ent *ir.Entity, et *ir.EntityType) error {
		v, err := e.eval.Evaluate(src, e.scope(ent, et))
		out = v
		return err
	})
	return out, err
}

func isDerived(f *ir.Field) bool {
	return f.Derived() || f.Type == ir.FieldDerived
}

// coerce converts text written to numeric or boolean fields.
func coerce(f *ir.Field, v ir.Value) ir.Value {
	t, ok := v.(ir.Text)
	if !ok {
		return v
	}
	s := strings.TrimSpace(string(t))
	switch {
	case f.Type.Numeric():
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return ir.Number(n)
		}
	case f.Type == ir.FieldBoolean:
		if b, err := strconv.ParseBool(s); err == nil {
			return ir.Bool(b)
		}
	}
	return v
}

// resolve computes a field's base value. visiting holds the derived fields
// on the current evaluation path; re-entering one is a runtime cycle.
func (e *Engine) resolve(ent *ir.Entity, et *ir.EntityType, f *ir.Field, visiting map[string]bool) ir.Value {
	if !f.Derived() {
		if v, ok := ent.Values[f.ID]; ok && v != nil {
			return v
		}
		return f.ZeroValue()
	}

	if visiting[f.ID] {
		e.logger.Warn("derived field cycle, using 0",
			"entity", ent.ID,
			"field", f.ID,
		)
		return ir.Number(0)
	}
	if visiting == nil {
		visiting = make(map[string]bool)
	}
	visiting[f.ID] = true
	defer delete(visiting, f.ID)

	return e.eval.Resolve(f.Formula, &entityScope{engine: e, entity: ent, typ: et, visiting: visiting})
}

func (e *Engine) scope(ent *ir.Entity, et *ir.EntityType) formula.Context {
	return &entityScope{engine: e, entity: ent, typ: et}
}

// entityScope resolves formula variables against one entity. The first
// path segment is a field reference; the rest walks into object values.
// Paths that name no field fall back to the raw stored values.
type entityScope struct {
	engine   *Engine
	entity   *ir.Entity
	typ      *ir.EntityType
	visiting map[string]bool
}

func (s *entityScope) Lookup(path []string) (ir.Value, bool) {
	if len(path) == 0 {
		return nil, false
	}
	f, ok := s.typ.Field(path[0])
	if !ok {
		return s.entity.Values.Lookup(path)
	}
	v := s.engine.resolve(s.entity, s.typ, f, s.visiting)
	if len(path) == 1 {
		return v, true
	}
	obj, ok := v.(ir.Object)
	if !ok {
		return nil, false
	}
	return obj.Lookup(path[1:])
}
