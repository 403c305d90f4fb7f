package ir

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ModifierKind selects how a modifier folds into a field value.
type ModifierKind string

// Modifier kinds. Bonus and penalty are accepted aliases of add and subtract.
const (
	KindAdd      ModifierKind = "add"
	KindSubtract ModifierKind = "subtract"
	KindMultiply ModifierKind = "multiply"
	KindSet      ModifierKind = "set"
	KindBonus    ModifierKind = "bonus"
	KindPenalty  ModifierKind = "penalty"
)

// Canonical folds aliases onto their primary kind.
func (k ModifierKind) Canonical() ModifierKind {
	switch k {
	case KindBonus, "":
		return KindAdd
	case KindPenalty:
		return KindSubtract
	}
	return k
}

// Valid reports whether k is a known kind or alias.
func (k ModifierKind) Valid() bool {
	switch k.Canonical() {
	case KindAdd, KindSubtract, KindMultiply, KindSet:
		return true
	}
	return false
}

// DurationKind is the lifetime class of a modifier.
type DurationKind string

// Duration kinds.
const (
	DurationPermanent DurationKind = "permanent"
	DurationRounds    DurationKind = "rounds"
	DurationUntilRest DurationKind = "until_rest"
)

// Duration is how long a modifier stays active. The zero value is permanent.
type Duration struct {
	Kind   DurationKind `json:"kind"`
	Rounds int          `json:"rounds,omitempty"`
}

// Permanent is the duration of a modifier that never expires.
var Permanent = Duration{Kind: DurationPermanent}

// Rounds returns a duration lasting n rounds.
func Rounds(n int) Duration {
	return Duration{Kind: DurationRounds, Rounds: n}
}

// UntilRest is the duration of a modifier cleared by a rest.
var UntilRest = Duration{Kind: DurationUntilRest}

// IsPermanent reports whether the duration never expires.
func (d Duration) IsPermanent() bool {
	return d.Kind == "" || d.Kind == DurationPermanent
}

// String renders the duration in the form ParseDuration accepts.
func (d Duration) String() string {
	switch d.Kind {
	case DurationRounds:
		return "rounds:" + strconv.Itoa(d.Rounds)
	case DurationUntilRest:
		return string(DurationUntilRest)
	}
	return string(DurationPermanent)
}

// ParseDuration parses "permanent", "until_rest" or "rounds:N".
// An empty string is permanent.
func ParseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "", string(DurationPermanent):
		return Permanent, nil
	case string(DurationUntilRest):
		return UntilRest, nil
	}
	n, ok := strings.CutPrefix(s, "rounds:")
	if !ok {
		return Duration{}, fmt.Errorf("invalid duration %q: want permanent, until_rest or rounds:N", s)
	}
	rounds, err := strconv.Atoi(strings.TrimSpace(n))
	if err != nil || rounds < 1 {
		return Duration{}, fmt.Errorf("invalid duration %q: rounds must be a positive integer", s)
	}
	return Rounds(rounds), nil
}

// Modifier is a timed or permanent adjustment applied to one field.
// Value is a Number or a Text; non-numeric text resolves to 0 when read.
type Modifier struct {
	ID             string       `json:"id"`
	Target         string       `json:"target"`
	Value          Value        `json:"value"`
	Kind           ModifierKind `json:"kind"`
	Duration       Duration     `json:"duration"`
	Source         string       `json:"source,omitempty"`
	AppliedAt      int64        `json:"appliedAt"`
	AppliedAtRound int          `json:"appliedAtRound"`
	Expired        bool         `json:"expired,omitempty"`
}

// Clone returns a deep copy of the modifier.
func (m Modifier) Clone() Modifier {
	m.Value = CloneValue(m.Value)
	return m
}

// UnmarshalJSON implements json.Unmarshaler for Modifier.
func (m *Modifier) UnmarshalJSON(data []byte) error {
	type plain Modifier
	var aux struct {
		plain
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = Modifier(aux.plain)
	if len(aux.Value) == 0 {
		m.Value = Null{}
		return nil
	}
	v, err := UnmarshalValue(aux.Value)
	if err != nil {
		return fmt.Errorf("modifier %q value: %w", m.ID, err)
	}
	m.Value = v
	return nil
}

func (m Modifier) canonicalObject() Object {
	value := m.Value
	if value == nil {
		value = Null{}
	}
	return Object{
		"id":             Text(m.ID),
		"target":         Text(m.Target),
		"value":          value,
		"kind":           Text(m.Kind),
		"duration":       Text(m.Duration.String()),
		"source":         Text(m.Source),
		"appliedAt":      Number(m.AppliedAt),
		"appliedAtRound": Number(m.AppliedAtRound),
		"expired":        Bool(m.Expired),
	}
}
