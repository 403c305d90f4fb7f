package ir

import (
	"encoding/json"
	"fmt"
)

// EffectKind is the wire tag of an effect variant.
type EffectKind string

// Effect kinds.
const (
	EffectSetValue      EffectKind = "set_value"
	EffectAddValue      EffectKind = "add_value"
	EffectSubtractValue EffectKind = "subtract_value"
	EffectMultiplyValue EffectKind = "multiply_value"
	EffectRollDice      EffectKind = "roll_dice"
	EffectShowMessage   EffectKind = "show_message"
	EffectTriggerEvent  EffectKind = "trigger_event"
	EffectAddModifier   EffectKind = "add_modifier"
)

// Effect is a sealed interface for a single rule action. Dispatch goes
// through EffectVisitor, so adding a variant breaks every visitor until it
// handles the new kind.
type Effect interface {
	Kind() EffectKind
	Accept(v EffectVisitor) error
	effect() // Sealed
}

// EffectVisitor handles each effect variant.
type EffectVisitor interface {
	VisitSetValue(SetValue) error
	VisitAddValue(AddValue) error
	VisitSubtractValue(SubtractValue) error
	VisitMultiplyValue(MultiplyValue) error
	VisitRollDice(RollDice) error
	VisitShowMessage(ShowMessage) error
	VisitTriggerEvent(TriggerEvent) error
	VisitAddModifier(AddModifier) error
}

// SetValue writes Value (a literal or formula text) to Target.
type SetValue struct {
	Target string `json:"target"`
	Value  Value  `json:"value"`
}

// AddValue adds Value to Target.
type AddValue struct {
	Target string `json:"target"`
	Value  Value  `json:"value"`
}

// SubtractValue subtracts Value from Target.
type SubtractValue struct {
	Target string `json:"target"`
	Value  Value  `json:"value"`
}

// MultiplyValue multiplies Target by Value.
type MultiplyValue struct {
	Target string `json:"target"`
	Value  Value  `json:"value"`
}

// RollDice rolls Formula and, when Target is set, writes the total to it.
type RollDice struct {
	Formula string `json:"formula"`
	Target  string `json:"target,omitempty"`
	Label   string `json:"label,omitempty"`
}

// ShowMessage emits a message after substituting {field} references.
type ShowMessage struct {
	Message string `json:"message"`
}

// TriggerEvent emits a custom event and runs the rules listening for it.
type TriggerEvent struct {
	Event   string `json:"event"`
	Payload Object `json:"payload,omitempty"`
}

// AddModifier attaches a modifier to the entity.
type AddModifier struct {
	Target       string       `json:"target"`
	Value        Value        `json:"value"`
	ModifierKind ModifierKind `json:"kind"`
	Duration     Duration     `json:"duration"`
	Source       string       `json:"source,omitempty"`
}

func (SetValue) effect()      {}
func (AddValue) effect()      {}
func (SubtractValue) effect() {}
func (MultiplyValue) effect() {}
func (RollDice) effect()      {}
func (ShowMessage) effect()   {}
func (TriggerEvent) effect()  {}
func (AddModifier) effect()   {}

func (SetValue) Kind() EffectKind      { return EffectSetValue }
func (AddValue) Kind() EffectKind      { return EffectAddValue }
func (SubtractValue) Kind() EffectKind { return EffectSubtractValue }
func (MultiplyValue) Kind() EffectKind { return EffectMultiplyValue }
func (RollDice) Kind() EffectKind      { return EffectRollDice }
func (ShowMessage) Kind() EffectKind   { return EffectShowMessage }
func (TriggerEvent) Kind() EffectKind  { return EffectTriggerEvent }
func (AddModifier) Kind() EffectKind   { return EffectAddModifier }

func (e SetValue) Accept(v EffectVisitor) error      { return v.VisitSetValue(e) }
func (e AddValue) Accept(v EffectVisitor) error      { return v.VisitAddValue(e) }
func (e SubtractValue) Accept(v EffectVisitor) error { return v.VisitSubtractValue(e) }
func (e MultiplyValue) Accept(v EffectVisitor) error { return v.VisitMultiplyValue(e) }
func (e RollDice) Accept(v EffectVisitor) error      { return v.VisitRollDice(e) }
func (e ShowMessage) Accept(v EffectVisitor) error   { return v.VisitShowMessage(e) }
func (e TriggerEvent) Accept(v EffectVisitor) error  { return v.VisitTriggerEvent(e) }
func (e AddModifier) Accept(v EffectVisitor) error   { return v.VisitAddModifier(e) }

// EffectTarget returns the field an effect writes, or "" for effects that
// write no field.
func EffectTarget(e Effect) string {
	switch eff := e.(type) {
	case SetValue:
		return eff.Target
	case AddValue:
		return eff.Target
	case SubtractValue:
		return eff.Target
	case MultiplyValue:
		return eff.Target
	case RollDice:
		return eff.Target
	case AddModifier:
		return eff.Target
	}
	return ""
}

// MarshalJSON writes the effect with its "type" tag.
func (e SetValue) MarshalJSON() ([]byte, error) {
	type plain SetValue
	return marshalTagged(e.Kind(), plain(e))
}

// MarshalJSON writes the effect with its "type" tag.
func (e AddValue) MarshalJSON() ([]byte, error) {
	type plain AddValue
	return marshalTagged(e.Kind(), plain(e))
}

// MarshalJSON writes the effect with its "type" tag.
func (e SubtractValue) MarshalJSON() ([]byte, error) {
	type plain SubtractValue
	return marshalTagged(e.Kind(), plain(e))
}

// MarshalJSON writes the effect with its "type" tag.
func (e MultiplyValue) MarshalJSON() ([]byte, error) {
	type plain MultiplyValue
	return marshalTagged(e.Kind(), plain(e))
}

// MarshalJSON writes the effect with its "type" tag.
func (e RollDice) MarshalJSON() ([]byte, error) {
	type plain RollDice
	return marshalTagged(e.Kind(), plain(e))
}

// MarshalJSON writes the effect with its "type" tag.
func (e ShowMessage) MarshalJSON() ([]byte, error) {
	type plain ShowMessage
	return marshalTagged(e.Kind(), plain(e))
}

// MarshalJSON writes the effect with its "type" tag.
func (e TriggerEvent) MarshalJSON() ([]byte, error) {
	type plain TriggerEvent
	return marshalTagged(e.Kind(), plain(e))
}

// MarshalJSON writes the effect with its "type" tag.
func (e AddModifier) MarshalJSON() ([]byte, error) {
	type plain AddModifier
	return marshalTagged(e.Kind(), plain(e))
}

func marshalTagged(kind EffectKind, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s effect: %w", kind, err)
	}
	tag := `{"type":"` + string(kind) + `"`
	if len(body) <= 2 {
		return []byte(tag + "}"), nil
	}
	return append([]byte(tag+","), body[1:]...), nil
}
