package rules

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/forge/internal/formula"
	"github.com/roach88/forge/internal/ir"
)

// ConditionsHold reports whether every condition of rule passes.
func (e *Engine) ConditionsHold(ctx context.Context, id ir.EntityID, rule ir.Rule, ev ir.Event) (bool, error) {
	for i, c := range rule.Conditions {
		ok, err := e.conditionHolds(ctx, id, c, ev)
		if err != nil {
			return false, fmt.Errorf("condition %d: %w", i, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (e *Engine) conditionHolds(ctx context.Context, id ir.EntityID, c ir.Condition, ev ir.Event) (bool, error) {
	var left ir.Value
	switch c.Field {
	case ir.FieldPrevious:
		left = ev.Previous
	case ir.FieldNew:
		left = ev.New
	default:
		left = e.host.GetValue(ctx, id, c.Field)
	}
	if left == nil {
		left = ir.Null{}
	}

	right, err := e.operand(ctx, id, c.Value)
	if err != nil {
		return false, err
	}
	return formula.Compare(c.Operator, left, right), nil
}

// operand resolves an effect or condition value. Numeric text becomes a
// number; text holding a variable reference or a call is evaluated as a
// formula in the entity's scope; anything else is a literal.
func (e *Engine) operand(ctx context.Context, id ir.EntityID, v ir.Value) (ir.Value, error) {
	t, ok := v.(ir.Text)
	if !ok {
		if v == nil {
			return ir.Null{}, nil
		}
		return v, nil
	}
	s := strings.TrimSpace(string(t))
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return ir.Number(n), nil
	}
	if isFormula(s) {
		return e.eval.Evaluate(s, e.host.Scope(ctx, id))
	}
	return t, nil
}

func isFormula(s string) bool {
	return strings.ContainsAny(s, "{(")
}

// number resolves an operand that must be numeric.
func (e *Engine) number(ctx context.Context, id ir.EntityID, v ir.Value) (float64, error) {
	r, err := e.operand(ctx, id, v)
	if err != nil {
		return 0, err
	}
	n, ok := ir.AsNumber(r)
	if !ok {
		return 0, fmt.Errorf("operand %q is not numeric", ir.FormatValue(r))
	}
	return n, nil
}
