package ir

import (
	"encoding/json"
	"fmt"
)

// Event names emitted by the engine. Rules may emit any other name with
// trigger_event.
const (
	EventChange          = "onChange"
	EventModifierAdded   = "onModifierAdded"
	EventModifierRemoved = "onModifierRemoved"
	EventRoll            = "onRoll"
	EventMessage         = "onMessage"
)

// RollRecord is the outcome of a dice roll carried on an onRoll event.
type RollRecord struct {
	Formula   string   `json:"formula"`
	Label     string   `json:"label,omitempty"`
	Total     int      `json:"total"`
	Breakdown []string `json:"breakdown"`
	Critical  bool     `json:"critical,omitempty"`
	Fumble    bool     `json:"fumble,omitempty"`
}

// Event is the single payload type carried by the bus. Seq is the logical
// timestamp issued by the engine clock.
type Event struct {
	Name     string      `json:"name"`
	EntityID EntityID    `json:"entityId,omitempty"`
	FieldID  string      `json:"fieldId,omitempty"`
	Previous Value       `json:"previous,omitempty"`
	New      Value       `json:"new,omitempty"`
	Payload  Object      `json:"payload,omitempty"`
	Roll     *RollRecord `json:"roll,omitempty"`
	Message  string      `json:"message,omitempty"`
	Modifier *Modifier   `json:"modifier,omitempty"`
	Seq      int64       `json:"seq"`
}

// UnmarshalJSON implements json.Unmarshaler for Event.
func (e *Event) UnmarshalJSON(data []byte) error {
	type plain Event
	var aux struct {
		plain
		Previous json.RawMessage `json:"previous"`
		New      json.RawMessage `json:"new"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*e = Event(aux.plain)
	var err error
	if e.Previous, err = optionalValue(aux.Previous); err != nil {
		return fmt.Errorf("event %q previous: %w", e.Name, err)
	}
	if e.New, err = optionalValue(aux.New); err != nil {
		return fmt.Errorf("event %q new: %w", e.Name, err)
	}
	return nil
}

func optionalValue(raw json.RawMessage) (Value, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	return UnmarshalValue(raw)
}

// identityObject is the event content that identifies a firing for cycle
// detection. Seq and the engine-issued modifier id are excluded so two
// identical events compare equal.
func (e Event) identityObject() Object {
	obj := Object{
		"name":     Text(e.Name),
		"entityId": Text(e.EntityID),
		"fieldId":  Text(e.FieldID),
		"message":  Text(e.Message),
	}
	if e.Previous != nil {
		obj["previous"] = e.Previous
	}
	if e.New != nil {
		obj["new"] = e.New
	}
	if e.Payload != nil {
		obj["payload"] = e.Payload
	}
	if e.Modifier != nil {
		mod := e.Modifier.canonicalObject()
		delete(mod, "id")
		delete(mod, "appliedAt")
		obj["modifier"] = mod
	}
	return obj
}
