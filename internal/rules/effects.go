package rules

import (
	"context"
	"fmt"

	"github.com/roach88/forge/internal/ir"
)

// executor runs one rule's effects against one entity.
type executor struct {
	engine *Engine
	ctx    context.Context
	entity ir.EntityID
	rule   ir.Rule
	event  ir.Event
}

var _ ir.EffectVisitor = (*executor)(nil)

func (x *executor) host() Host { return x.engine.host }

func (x *executor) VisitSetValue(eff ir.SetValue) error {
	v, err := x.engine.operand(x.ctx, x.entity, eff.Value)
	if err != nil {
		return err
	}
	return x.host().SetValue(x.ctx, x.entity, eff.Target, v)
}

func (x *executor) VisitAddValue(eff ir.AddValue) error {
	return x.arithmetic(eff.Target, eff.Value, func(cur, n float64) float64 { return cur + n })
}

func (x *executor) VisitSubtractValue(eff ir.SubtractValue) error {
	return x.arithmetic(eff.Target, eff.Value, func(cur, n float64) float64 { return cur - n })
}

func (x *executor) VisitMultiplyValue(eff ir.MultiplyValue) error {
	return x.arithmetic(eff.Target, eff.Value, func(cur, n float64) float64 { return cur * n })
}

// arithmetic reads the target's current value, combines it with the operand
// and writes it back.
func (x *executor) arithmetic(target string, operand ir.Value, op func(cur, n float64) float64) error {
	n, err := x.engine.number(x.ctx, x.entity, operand)
	if err != nil {
		return err
	}
	cur, ok := ir.AsNumber(x.host().GetValue(x.ctx, x.entity, target))
	if !ok {
		return fmt.Errorf("target %q is not numeric", target)
	}
	return x.host().SetValue(x.ctx, x.entity, target, ir.Number(op(cur, n)))
}

func (x *executor) VisitRollDice(eff ir.RollDice) error {
	res, err := x.engine.roller.RollWithContext(eff.Formula, x.host().Scope(x.ctx, x.entity))
	if err != nil {
		return err
	}
	if eff.Target != "" {
		if err := x.host().SetValue(x.ctx, x.entity, eff.Target, ir.Number(res.Total)); err != nil {
			return err
		}
	}
	return x.host().Dispatch(x.ctx, ir.Event{
		Name:     ir.EventRoll,
		EntityID: x.entity,
		FieldID:  eff.Target,
		Roll:     res.Record(eff.Label),
	})
}

func (x *executor) VisitShowMessage(eff ir.ShowMessage) error {
	msg := x.engine.eval.Substitute(eff.Message, x.host().Scope(x.ctx, x.entity))
	return x.host().Dispatch(x.ctx, ir.Event{
		Name:     ir.EventMessage,
		EntityID: x.entity,
		Message:  msg,
	})
}

func (x *executor) VisitTriggerEvent(eff ir.TriggerEvent) error {
	if eff.Event == "" {
		return fmt.Errorf("trigger_event without event name")
	}
	return x.host().Dispatch(x.ctx, ir.Event{
		Name:     eff.Event,
		EntityID: x.entity,
		Payload:  eff.Payload.Clone(),
	})
}

func (x *executor) VisitAddModifier(eff ir.AddModifier) error {
	v := eff.Value
	if t, ok := v.(ir.Text); ok && isFormula(string(t)) {
		r, err := x.engine.operand(x.ctx, x.entity, v)
		if err != nil {
			return err
		}
		v = r
	}
	source := eff.Source
	if source == "" {
		source = x.rule.ID
	}
	_, err := x.host().AddModifier(x.ctx, x.entity, ir.Modifier{
		Target:   eff.Target,
		Value:    v,
		Kind:     eff.ModifierKind,
		Duration: eff.Duration,
		Source:   source,
	})
	return err
}
