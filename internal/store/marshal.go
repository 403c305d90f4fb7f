package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/forge/internal/ir"
)

// encodeJSON writes v as compact JSON TEXT.
// HTML escaping is disabled so stored text matches canonical hashing input.
func encodeJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// marshalEntity converts an entity snapshot to JSON TEXT for storage.
func marshalEntity(e *ir.Entity) (string, error) {
	data, err := encodeJSON(e)
	if err != nil {
		return "", fmt.Errorf("marshal entity %s: %w", e.ID, err)
	}
	return data, nil
}

// unmarshalEntity parses a stored snapshot. Values and modifier values go
// through the ir decoders so numbers come back as ir.Number.
func unmarshalEntity(data string) (*ir.Entity, error) {
	var e ir.Entity
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, fmt.Errorf("unmarshal entity: %w", err)
	}
	if e.Values == nil {
		e.Values = ir.Object{}
	}
	if e.Modifiers == nil {
		e.Modifiers = []ir.Modifier{}
	}
	return &e, nil
}

// marshalEvent converts an event to JSON TEXT for storage.
func marshalEvent(ev ir.Event) (string, error) {
	data, err := encodeJSON(ev)
	if err != nil {
		return "", fmt.Errorf("marshal event %s: %w", ev.Name, err)
	}
	return data, nil
}

// unmarshalEvent parses a stored event.
func unmarshalEvent(data string) (ir.Event, error) {
	var ev ir.Event
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return ir.Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return ev, nil
}
