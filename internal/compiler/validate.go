package compiler

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/forge/internal/dice"
	"github.com/roach88/forge/internal/formula"
	"github.com/roach88/forge/internal/ir"
)

// Validation error codes (E200-E299)
const (
	ErrDuplicateEntityType = "E201" // duplicate entity type id
	ErrDuplicateField      = "E202" // duplicate field id or code id within a type
	ErrInvalidFieldType    = "E203" // unknown field type
	ErrFormulaSyntax       = "E204" // formula does not parse or evaluate
	ErrFormulaCycle        = "E205" // derived fields depend on each other
	ErrMissingID           = "E206" // entity type or field without id
	ErrSelectNoOptions     = "E207" // select field without options
	ErrDuplicateRule       = "E208" // duplicate rule id
	ErrMissingTrigger      = "E209" // rule without trigger
	ErrUnknownFilter       = "E210" // rule field filter names no field
	ErrUnknownCondition    = "E211" // condition reads no field
	ErrInvalidOperator     = "E212" // unknown condition operator
	ErrUnknownTarget       = "E213" // effect targets no field
	ErrDerivedWrite        = "E214" // effect writes a derived field
	ErrMissingAttribute    = "E215" // effect lacks a required attribute
	ErrDiceNotation        = "E216" // invalid dice notation
	ErrInvalidModifierKind = "E217" // unknown modifier kind
	ErrDerivedNoFormula    = "E218" // derived type without formula
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors is a non-empty list of validation errors used as a
// single error value.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	switch len(errs) {
	case 0:
		return "no validation errors"
	case 1:
		return errs[0].Error()
	}
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Error()
	}
	return fmt.Sprintf("%d validation errors: %s", len(errs), strings.Join(parts, "; "))
}

// validator collects errors for one schema.
type validator struct {
	schema *ir.Schema
	eval   *formula.Evaluator
	errs   []ValidationError
}

func (v *validator) add(field, code, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	})
}

// Validate checks a schema structurally.
// Returns all errors found (does not fail-fast).
func Validate(schema *ir.Schema) []ValidationError {
	v := &validator{
		schema: schema,
		eval:   formula.New(formula.WithLogger(slog.New(slog.DiscardHandler))),
	}

	typeIDs := make(map[string]bool)
	for i := range schema.EntityTypes {
		et := &schema.EntityTypes[i]
		path := fmt.Sprintf("entityTypes[%d]", i)
		if et.ID == "" {
			v.add(path+".id", ErrMissingID, "entity type id is required")
		} else if typeIDs[et.ID] {
			v.add(path+".id", ErrDuplicateEntityType, "duplicate entity type id: %q", et.ID)
		}
		typeIDs[et.ID] = true

		v.validateFields(path, et)
		v.validateFormulaCycles(path, et)
	}

	ruleIDs := make(map[string]bool)
	for i := range schema.EntityTypes {
		et := &schema.EntityTypes[i]
		for j := range et.Rules {
			path := fmt.Sprintf("entityTypes[%d].rules[%d]", i, j)
			v.validateRule(path, &et.Rules[j], []*ir.EntityType{et}, ruleIDs)
		}
	}
	all := make([]*ir.EntityType, len(schema.EntityTypes))
	for i := range schema.EntityTypes {
		all[i] = &schema.EntityTypes[i]
	}
	for j := range schema.GlobalRules {
		path := fmt.Sprintf("globalRules[%d]", j)
		v.validateRule(path, &schema.GlobalRules[j], all, ruleIDs)
	}

	return v.errs
}

func (v *validator) validateFields(path string, et *ir.EntityType) {
	keys := make(map[string]string)
	for i := range et.Fields {
		f := &et.Fields[i]
		fpath := fmt.Sprintf("%s.fields[%d]", path, i)

		if f.ID == "" {
			v.add(fpath+".id", ErrMissingID, "field id is required")
		}
		for _, k := range f.Keys() {
			if k == "" {
				continue
			}
			if owner, dup := keys[k]; dup {
				v.add(fpath, ErrDuplicateField, "field key %q already used by field %q", k, owner)
				continue
			}
			keys[k] = f.ID
		}

		if !f.Type.Valid() {
			v.add(fpath+".type", ErrInvalidFieldType, "invalid field type %q", f.Type)
		}
		if f.Type == ir.FieldDerived && f.Formula == "" {
			v.add(fpath+".formula", ErrDerivedNoFormula, "derived field %q needs a formula", f.ID)
		}
		if f.Type == ir.FieldSelect && len(f.Options) == 0 {
			v.add(fpath+".options", ErrSelectNoOptions, "select field %q needs options", f.ID)
		}
		if f.Formula != "" {
			if err := v.eval.Validate(f.Formula); err != nil {
				v.add(fpath+".formula", ErrFormulaSyntax, "%v", err)
			}
		}
	}
}

// validateFormulaCycles reports every group of derived fields that depend
// on each other.
func (v *validator) validateFormulaCycles(path string, et *ir.EntityType) {
	graph := formulaGraph(et)
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			cycle := reconstructCyclePath(scc, graph)
			v.add(path+".fields", ErrFormulaCycle, "formula cycle: %s", strings.Join(cycle, " -> "))
		}
	}
}

// formulaGraph maps each derived field to the derived fields its formula
// reads.
func formulaGraph(et *ir.EntityType) dependencyGraph {
	graph := make(dependencyGraph)
	for i := range et.Fields {
		f := &et.Fields[i]
		if !f.Derived() {
			continue
		}
		graph[f.ID] = []string{}
		for _, dep := range formula.ExtractDependencies(f.Formula) {
			head, _, _ := strings.Cut(dep, ".")
			target, ok := et.Field(head)
			if !ok || !target.Derived() {
				continue
			}
			graph[f.ID] = append(graph[f.ID], target.ID)
		}
	}
	return graph
}

// resolveIn returns the field ref names in the first type that has it.
func resolveIn(types []*ir.EntityType, ref string) (*ir.Field, bool) {
	for _, et := range types {
		if f, ok := et.Field(ref); ok {
			return f, true
		}
	}
	return nil, false
}

func (v *validator) validateRule(path string, r *ir.Rule, types []*ir.EntityType, ids map[string]bool) {
	if ids[r.ID] {
		v.add(path+".id", ErrDuplicateRule, "duplicate rule id: %q", r.ID)
	}
	ids[r.ID] = true

	if strings.TrimSpace(r.Trigger) == "" {
		v.add(path+".trigger", ErrMissingTrigger, "rule %q needs a trigger", r.ID)
	}
	if r.FieldFilter != "" {
		if _, ok := resolveIn(types, r.FieldFilter); !ok {
			v.add(path+".fieldFilter", ErrUnknownFilter, "field filter %q names no field", r.FieldFilter)
		}
	}

	for i, c := range r.Conditions {
		cpath := fmt.Sprintf("%s.conditions[%d]", path, i)
		if c.Field != ir.FieldPrevious && c.Field != ir.FieldNew {
			if _, ok := resolveIn(types, c.Field); !ok {
				v.add(cpath+".field", ErrUnknownCondition, "condition reads unknown field %q", c.Field)
			}
		}
		if _, ok := ir.ParseOperator(string(c.Operator)); !ok {
			v.add(cpath+".operator", ErrInvalidOperator, "invalid operator %q", c.Operator)
		}
		v.validateOperand(cpath+".value", c.Value)
	}

	for i, eff := range r.Effects {
		v.validateEffect(fmt.Sprintf("%s.effects[%d]", path, i), eff, types)
	}
}

// validateOperand checks text operands that will be evaluated as formulas.
func (v *validator) validateOperand(path string, val ir.Value) {
	t, ok := val.(ir.Text)
	if !ok || !strings.ContainsAny(string(t), "{(") {
		return
	}
	if err := v.eval.Validate(string(t)); err != nil {
		v.add(path, ErrFormulaSyntax, "%v", err)
	}
}

func (v *validator) validateEffect(path string, eff ir.Effect, types []*ir.EntityType) {
	target := ir.EffectTarget(eff)
	checkTarget := func(writes bool) {
		if target == "" {
			v.add(path+".target", ErrMissingAttribute, "%s needs a target", eff.Kind())
			return
		}
		f, ok := resolveIn(types, target)
		if !ok {
			v.add(path+".target", ErrUnknownTarget, "%s targets unknown field %q", eff.Kind(), target)
			return
		}
		if writes && (f.Derived() || f.Type == ir.FieldDerived) {
			v.add(path+".target", ErrDerivedWrite, "%s writes derived field %q", eff.Kind(), f.ID)
		}
	}
	checkValue := func(val ir.Value) {
		if val == nil {
			v.add(path+".value", ErrMissingAttribute, "%s needs a value", eff.Kind())
			return
		}
		v.validateOperand(path+".value", val)
	}

	switch e := eff.(type) {
	case ir.SetValue:
		checkTarget(true)
		checkValue(e.Value)
	case ir.AddValue:
		checkTarget(true)
		checkValue(e.Value)
	case ir.SubtractValue:
		checkTarget(true)
		checkValue(e.Value)
	case ir.MultiplyValue:
		checkTarget(true)
		checkValue(e.Value)
	case ir.RollDice:
		if e.Formula == "" {
			v.add(path+".formula", ErrMissingAttribute, "roll_dice needs a formula")
		} else if err := dice.Validate(e.Formula); err != nil {
			v.add(path+".formula", ErrDiceNotation, "%v", err)
		}
		if e.Target != "" {
			checkTarget(true)
		}
	case ir.ShowMessage:
		if e.Message == "" {
			v.add(path+".message", ErrMissingAttribute, "show_message needs a message")
		}
	case ir.TriggerEvent:
		if e.Event == "" {
			v.add(path+".event", ErrMissingAttribute, "trigger_event needs an event")
		}
	case ir.AddModifier:
		checkTarget(false)
		checkValue(e.Value)
		if !e.ModifierKind.Valid() {
			v.add(path+".kind", ErrInvalidModifierKind, "invalid modifier kind %q", e.ModifierKind)
		}
	}
}
