package compiler

// Document is the plain-data form of a schema as authored in CUE, YAML or
// JSON. Keys are camelCase in every format.
type Document struct {
	EntityTypes []EntityTypeDoc `json:"entityTypes" yaml:"entityTypes"`
	GlobalRules []RuleDoc       `json:"globalRules,omitempty" yaml:"globalRules,omitempty"`
}

// EntityTypeDoc declares one entity type.
type EntityTypeDoc struct {
	ID     string     `json:"id" yaml:"id"`
	Name   string     `json:"name,omitempty" yaml:"name,omitempty"`
	Fields []FieldDoc `json:"fields" yaml:"fields"`
	Rules  []RuleDoc  `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// FieldDoc declares one field. Default may be any scalar or object.
type FieldDoc struct {
	ID      string   `json:"id" yaml:"id"`
	CodeID  string   `json:"codeId,omitempty" yaml:"codeId,omitempty"`
	Name    string   `json:"name,omitempty" yaml:"name,omitempty"`
	Type    string   `json:"type" yaml:"type"`
	Formula string   `json:"formula,omitempty" yaml:"formula,omitempty"`
	Default any      `json:"default,omitempty" yaml:"default,omitempty"`
	Options []string `json:"options,omitempty" yaml:"options,omitempty"`
}

// RuleDoc declares one rule. An empty ID defaults to "<type>.rules[i]" for
// local rules and "globalRules[i]" for global ones.
type RuleDoc struct {
	ID          string         `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string         `json:"name,omitempty" yaml:"name,omitempty"`
	Trigger     string         `json:"trigger" yaml:"trigger"`
	FieldFilter string         `json:"fieldFilter,omitempty" yaml:"fieldFilter,omitempty"`
	Conditions  []ConditionDoc `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Effects     []EffectDoc    `json:"effects" yaml:"effects"`
}

// ConditionDoc declares one condition. Operator accepts symbols and word
// aliases.
type ConditionDoc struct {
	Field    string `json:"field" yaml:"field"`
	Operator string `json:"operator" yaml:"operator"`
	Value    any    `json:"value" yaml:"value"`
}

// EffectDoc is the tagged union of effects, selected by Type. Only the
// attributes of the selected kind are read.
//
// Duration accepts "permanent", "until_rest", "rounds:N", a bare number
// of rounds, or an object {rounds: N}.
type EffectDoc struct {
	Type     string         `json:"type" yaml:"type"`
	Target   string         `json:"target,omitempty" yaml:"target,omitempty"`
	Value    any            `json:"value,omitempty" yaml:"value,omitempty"`
	Formula  string         `json:"formula,omitempty" yaml:"formula,omitempty"`
	Label    string         `json:"label,omitempty" yaml:"label,omitempty"`
	Message  string         `json:"message,omitempty" yaml:"message,omitempty"`
	Event    string         `json:"event,omitempty" yaml:"event,omitempty"`
	Payload  map[string]any `json:"payload,omitempty" yaml:"payload,omitempty"`
	Kind     string         `json:"kind,omitempty" yaml:"kind,omitempty"`
	Duration any            `json:"duration,omitempty" yaml:"duration,omitempty"`
	Source   string         `json:"source,omitempty" yaml:"source,omitempty"`
}
