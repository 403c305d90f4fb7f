package ir

// Entity is a typed record of base field values and active modifiers.
// Values holds only non-derived fields, keyed by field machine id.
type Entity struct {
	ID        EntityID   `json:"id"`
	Type      string     `json:"type"`
	Values    Object     `json:"values"`
	Modifiers []Modifier `json:"modifiers"`
}

// Clone returns a deep copy that shares no mutable state with e.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	out := &Entity{
		ID:     e.ID,
		Type:   e.Type,
		Values: e.Values.Clone(),
	}
	if out.Values == nil {
		out.Values = Object{}
	}
	out.Modifiers = make([]Modifier, len(e.Modifiers))
	for i, m := range e.Modifiers {
		out.Modifiers[i] = m.Clone()
	}
	return out
}

// Modifier returns the modifier with the given id.
func (e *Entity) Modifier(id string) (Modifier, bool) {
	for _, m := range e.Modifiers {
		if m.ID == id {
			return m, true
		}
	}
	return Modifier{}, false
}

// canonicalObject converts the entity to an Object for hashing.
func (e *Entity) canonicalObject() Object {
	mods := make(Object, len(e.Modifiers))
	for i, m := range e.Modifiers {
		// Keyed by position so order participates in the hash.
		mods[FormatNumber(float64(i))] = m.canonicalObject()
	}
	values := e.Values
	if values == nil {
		values = Object{}
	}
	return Object{
		"id":        Text(e.ID),
		"type":      Text(e.Type),
		"values":    values,
		"modifiers": mods,
	}
}
