package compiler

import (
	"fmt"
	"math"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/forge/internal/ir"
)

// CompileError represents a compilation error with source position.
// Pos is only valid for CUE sources.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}

// Build converts a document into a schema. It only fails on input that has
// no schema representation (unknown effect types, unparseable durations,
// list values); semantic checks are left to Validate.
func Build(doc *Document) (*ir.Schema, error) {
	schema := &ir.Schema{}
	for i := range doc.EntityTypes {
		et, err := buildEntityType(fmt.Sprintf("entityTypes[%d]", i), &doc.EntityTypes[i])
		if err != nil {
			return nil, err
		}
		schema.EntityTypes = append(schema.EntityTypes, et)
	}
	rules, err := buildRules("globalRules", "globalRules", doc.GlobalRules)
	if err != nil {
		return nil, err
	}
	schema.GlobalRules = rules
	return schema, nil
}

func buildEntityType(path string, doc *EntityTypeDoc) (ir.EntityType, error) {
	et := ir.EntityType{
		ID:   doc.ID,
		Name: doc.Name,
	}
	for i, fd := range doc.Fields {
		f, err := buildField(fmt.Sprintf("%s.fields[%d]", path, i), fd)
		if err != nil {
			return ir.EntityType{}, err
		}
		et.Fields = append(et.Fields, f)
	}
	rules, err := buildRules(path+".rules", doc.ID+".rules", doc.Rules)
	if err != nil {
		return ir.EntityType{}, err
	}
	et.Rules = rules
	return et, nil
}

func buildField(path string, doc FieldDoc) (ir.Field, error) {
	f := ir.Field{
		ID:      doc.ID,
		CodeID:  doc.CodeID,
		Name:    doc.Name,
		Type:    ir.FieldType(doc.Type),
		Formula: doc.Formula,
		Options: append([]string(nil), doc.Options...),
	}
	if doc.Default != nil {
		v, err := ir.FromAny(doc.Default)
		if err != nil {
			return ir.Field{}, &CompileError{Field: path + ".default", Message: err.Error()}
		}
		f.Default = v
	}
	return f, nil
}

// buildRules converts a rule list. idPrefix names default rule ids.
func buildRules(path, idPrefix string, docs []RuleDoc) ([]ir.Rule, error) {
	var out []ir.Rule
	for i, rd := range docs {
		rpath := fmt.Sprintf("%s[%d]", path, i)
		r := ir.Rule{
			ID:          rd.ID,
			Name:        rd.Name,
			Trigger:     rd.Trigger,
			FieldFilter: rd.FieldFilter,
		}
		if r.ID == "" {
			r.ID = fmt.Sprintf("%s[%d]", idPrefix, i)
		}
		for j, cd := range rd.Conditions {
			c, err := buildCondition(fmt.Sprintf("%s.conditions[%d]", rpath, j), cd)
			if err != nil {
				return nil, err
			}
			r.Conditions = append(r.Conditions, c)
		}
		for j, ed := range rd.Effects {
			eff, err := buildEffect(fmt.Sprintf("%s.effects[%d]", rpath, j), ed)
			if err != nil {
				return nil, err
			}
			r.Effects = append(r.Effects, eff)
		}
		out = append(out, r)
	}
	return out, nil
}

func buildCondition(path string, doc ConditionDoc) (ir.Condition, error) {
	v, err := ir.FromAny(doc.Value)
	if err != nil {
		return ir.Condition{}, &CompileError{Field: path + ".value", Message: err.Error()}
	}
	op, ok := ir.ParseOperator(doc.Operator)
	if !ok {
		// Kept raw so Validate can report it with the others.
		op = ir.Operator(doc.Operator)
	}
	return ir.Condition{Field: doc.Field, Operator: op, Value: v}, nil
}

func buildEffect(path string, doc EffectDoc) (ir.Effect, error) {
	value := func() (ir.Value, error) {
		if doc.Value == nil {
			return nil, nil
		}
		v, err := ir.FromAny(doc.Value)
		if err != nil {
			return nil, &CompileError{Field: path + ".value", Message: err.Error()}
		}
		return v, nil
	}

	switch ir.EffectKind(doc.Type) {
	case ir.EffectSetValue, ir.EffectAddValue, ir.EffectSubtractValue, ir.EffectMultiplyValue:
		v, err := value()
		if err != nil {
			return nil, err
		}
		switch ir.EffectKind(doc.Type) {
		case ir.EffectSetValue:
			return ir.SetValue{Target: doc.Target, Value: v}, nil
		case ir.EffectAddValue:
			return ir.AddValue{Target: doc.Target, Value: v}, nil
		case ir.EffectSubtractValue:
			return ir.SubtractValue{Target: doc.Target, Value: v}, nil
		default:
			return ir.MultiplyValue{Target: doc.Target, Value: v}, nil
		}
	case ir.EffectRollDice:
		return ir.RollDice{Formula: doc.Formula, Target: doc.Target, Label: doc.Label}, nil
	case ir.EffectShowMessage:
		return ir.ShowMessage{Message: doc.Message}, nil
	case ir.EffectTriggerEvent:
		var payload ir.Object
		if doc.Payload != nil {
			p, err := ir.FromAny(doc.Payload)
			if err != nil {
				return nil, &CompileError{Field: path + ".payload", Message: err.Error()}
			}
			payload = p.(ir.Object)
		}
		return ir.TriggerEvent{Event: doc.Event, Payload: payload}, nil
	case ir.EffectAddModifier:
		v, err := value()
		if err != nil {
			return nil, err
		}
		d, err := parseDuration(doc.Duration)
		if err != nil {
			return nil, &CompileError{Field: path + ".duration", Message: err.Error()}
		}
		return ir.AddModifier{
			Target:       doc.Target,
			Value:        v,
			ModifierKind: ir.ModifierKind(doc.Kind),
			Duration:     d,
			Source:       doc.Source,
		}, nil
	case "":
		return nil, &CompileError{Field: path + ".type", Message: "effect type is required"}
	default:
		return nil, &CompileError{Field: path + ".type", Message: fmt.Sprintf("unknown effect type %q", doc.Type)}
	}
}

// parseDuration accepts the duration spellings documented on EffectDoc.
func parseDuration(v any) (ir.Duration, error) {
	switch d := v.(type) {
	case nil:
		return ir.Permanent, nil
	case string:
		return ir.ParseDuration(d)
	case map[string]any:
		if kind, ok := d["kind"].(string); ok && kind != string(ir.DurationRounds) {
			return ir.ParseDuration(kind)
		}
		n, ok := d["rounds"]
		if !ok {
			return ir.Duration{}, fmt.Errorf("duration object needs rounds")
		}
		return roundsOf(n)
	case map[any]any:
		conv := make(map[string]any, len(d))
		for k, val := range d {
			ks, ok := k.(string)
			if !ok {
				return ir.Duration{}, fmt.Errorf("duration key %v is not a string", k)
			}
			conv[ks] = val
		}
		return parseDuration(conv)
	default:
		return roundsOf(v)
	}
}

func roundsOf(v any) (ir.Duration, error) {
	n, err := ir.FromAny(v)
	if err != nil {
		return ir.Duration{}, fmt.Errorf("rounds: %w", err)
	}
	f, ok := n.(ir.Number)
	if !ok || float64(f) != math.Trunc(float64(f)) || f < 1 {
		return ir.Duration{}, fmt.Errorf("rounds must be a positive integer, got %s", ir.FormatValue(n))
	}
	return ir.Rounds(int(f)), nil
}
