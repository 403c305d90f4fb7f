package ir

import "strings"

// EntityID identifies an entity in the engine arena.
type EntityID string

// FieldType is the declared value type of a field.
type FieldType string

// Field types understood by the engine.
const (
	FieldNumber   FieldType = "number"
	FieldText     FieldType = "text"
	FieldBoolean  FieldType = "boolean"
	FieldSelect   FieldType = "select"
	FieldResource FieldType = "resource"
	FieldDerived  FieldType = "derived"
)

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	switch t {
	case FieldNumber, FieldText, FieldBoolean, FieldSelect, FieldResource, FieldDerived:
		return true
	}
	return false
}

// Numeric reports whether values of this type are stored as numbers.
func (t FieldType) Numeric() bool {
	return t == FieldNumber || t == FieldResource || t == FieldDerived
}

// Schema is the compiled, read-only set of entity types and global rules.
type Schema struct {
	EntityTypes []EntityType `json:"entityTypes"`
	GlobalRules []Rule       `json:"globalRules,omitempty"`
}

// EntityType returns the entity type with the given id.
func (s *Schema) EntityType(id string) (*EntityType, bool) {
	for i := range s.EntityTypes {
		if s.EntityTypes[i].ID == id {
			return &s.EntityTypes[i], true
		}
	}
	return nil, false
}

// EntityType declares the fields and local rules of one kind of entity.
type EntityType struct {
	ID     string  `json:"id"`
	Name   string  `json:"name,omitempty"`
	Fields []Field `json:"fields"`
	Rules  []Rule  `json:"rules,omitempty"`
}

// Field resolves a field reference in three tiers: machine id, then code
// id, then display name (case-insensitive). Saved data may predate a rename
// of the code id, so all three are accepted.
func (et *EntityType) Field(ref string) (*Field, bool) {
	if ref == "" {
		return nil, false
	}
	for i := range et.Fields {
		if et.Fields[i].ID == ref {
			return &et.Fields[i], true
		}
	}
	for i := range et.Fields {
		if et.Fields[i].CodeID != "" && et.Fields[i].CodeID == ref {
			return &et.Fields[i], true
		}
	}
	for i := range et.Fields {
		if et.Fields[i].Name != "" && strings.EqualFold(et.Fields[i].Name, ref) {
			return &et.Fields[i], true
		}
	}
	return nil, false
}

// Field is a named, typed slot in an entity type.
type Field struct {
	ID      string    `json:"id"`
	CodeID  string    `json:"codeId,omitempty"`
	Name    string    `json:"name,omitempty"`
	Type    FieldType `json:"type"`
	Formula string    `json:"formula,omitempty"`
	Default Value     `json:"default,omitempty"`
	Options []string  `json:"options,omitempty"`
}

// Derived reports whether the field is recomputed from a formula.
func (f *Field) Derived() bool {
	return f.Formula != ""
}

// Keys returns the names a formula may use to reference this field.
func (f *Field) Keys() []string {
	keys := []string{f.ID}
	if f.CodeID != "" && f.CodeID != f.ID {
		keys = append(keys, f.CodeID)
	}
	return keys
}

// ZeroValue returns the value a field holds when nothing is stored and no
// default is declared.
func (f *Field) ZeroValue() Value {
	if f.Default != nil {
		return f.Default
	}
	switch f.Type {
	case FieldNumber, FieldResource:
		return Number(0)
	case FieldBoolean:
		return Bool(false)
	case FieldText:
		return Text("")
	case FieldSelect:
		if len(f.Options) > 0 {
			return Text(f.Options[0])
		}
		return Text("")
	}
	return Null{}
}
