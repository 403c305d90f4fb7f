package ir

import "strings"

// Pseudo-fields a condition may read from the triggering event.
const (
	FieldPrevious = "_previous"
	FieldNew      = "_new"
)

// Rule is an event-triggered, condition-guarded list of effects.
// Conditions are AND-only; effects run in declaration order.
type Rule struct {
	ID          string      `json:"id"`
	Name        string      `json:"name,omitempty"`
	Trigger     string      `json:"trigger"`
	FieldFilter string      `json:"fieldFilter,omitempty"`
	Conditions  []Condition `json:"conditions,omitempty"`
	Effects     []Effect    `json:"effects"`
}

// Operator compares a condition's left side with its operand.
type Operator string

// Comparison operators.
const (
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpContains     Operator = "contains"
)

var operatorAliases = map[string]Operator{
	"==":               OpEqual,
	"=":                OpEqual,
	"equals":           OpEqual,
	"!=":               OpNotEqual,
	"not_equals":       OpNotEqual,
	">":                OpGreater,
	"greater_than":     OpGreater,
	"<":                OpLess,
	"less_than":        OpLess,
	">=":               OpGreaterEqual,
	"greater_or_equal": OpGreaterEqual,
	"<=":               OpLessEqual,
	"less_or_equal":    OpLessEqual,
	"contains":         OpContains,
}

// ParseOperator resolves an operator symbol or word alias.
func ParseOperator(s string) (Operator, bool) {
	op, ok := operatorAliases[strings.ToLower(strings.TrimSpace(s))]
	return op, ok
}

// Condition guards a rule. Field names a live field or one of the
// pseudo-fields _previous and _new. A Text operand containing a variable
// reference or a call is evaluated as a formula before comparison.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    Value    `json:"value"`
}
