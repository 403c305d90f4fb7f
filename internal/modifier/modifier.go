// Package modifier aggregates bonuses and penalties applied to fields.
//
// All functions are pure: they read a modifier slice and never mutate it.
// Expiration is not automatic; callers sweep with FilterExpired on each
// round tick.
package modifier

import (
	"slices"

	"github.com/roach88/forge/internal/ir"
)

// ResolveValue converts a modifier value to a number. Numbers pass through,
// decimal strings parse and an empty value is 0. Anything else, such as
// dice notation, resolves to 0 with ok false: reads never roll dice.
func ResolveValue(m ir.Modifier) (n float64, ok bool) {
	switch v := m.Value.(type) {
	case ir.Number:
		return float64(v), true
	case ir.Text:
		if f, ok := ir.AsNumber(v); ok {
			return f, true
		}
	case nil, ir.Null:
		return 0, true
	}
	return 0, false
}

func amount(m ir.Modifier) float64 {
	n, _ := ResolveValue(m)
	return n
}

// Unresolved returns the active modifiers on target whose value does not
// resolve to a number. They count as 0 in Calculate, Apply and Breakdown.
func Unresolved(mods []ir.Modifier, target string) []ir.Modifier {
	var out []ir.Modifier
	for _, m := range mods {
		if !active(m, target) {
			continue
		}
		if _, ok := ResolveValue(m); !ok {
			out = append(out, m)
		}
	}
	return out
}

// active reports whether m targets the field and has not been flagged expired.
func active(m ir.Modifier, target string) bool {
	return m.Target == target && !m.Expired
}

// Calculate folds the additive modifiers on target: add and bonus
// contribute +value, subtract and penalty contribute -value. Multiply and
// set modifiers are ignored; see Apply.
func Calculate(mods []ir.Modifier, target string) float64 {
	total := 0.0
	for _, m := range mods {
		if !active(m, target) {
			continue
		}
		switch m.Kind.Canonical() {
		case ir.KindAdd:
			total += amount(m)
		case ir.KindSubtract:
			total -= amount(m)
		}
	}
	return total
}

// Apply computes the effective value of a numeric base: base plus the
// additive sum, multiplied by every multiply modifier, then replaced by the
// most recently applied set modifier if one exists. Ties on AppliedAt go to
// the later position in mods.
func Apply(base float64, mods []ir.Modifier, target string) float64 {
	value := base + Calculate(mods, target)

	for _, m := range mods {
		if active(m, target) && m.Kind.Canonical() == ir.KindMultiply {
			value *= amount(m)
		}
	}

	if set, ok := latestSet(mods, target); ok {
		return amount(set)
	}
	return value
}

func latestSet(mods []ir.Modifier, target string) (ir.Modifier, bool) {
	var (
		winner ir.Modifier
		found  bool
	)
	for _, m := range mods {
		if !active(m, target) || m.Kind.Canonical() != ir.KindSet {
			continue
		}
		if !found || m.AppliedAt >= winner.AppliedAt {
			winner, found = m, true
		}
	}
	return winner, found
}

// Expired reports whether m has lapsed at currentRound.
func Expired(m ir.Modifier, currentRound int) bool {
	if m.Expired {
		return true
	}
	switch m.Duration.Kind {
	case ir.DurationRounds:
		return currentRound-m.AppliedAtRound >= m.Duration.Rounds
	}
	// Permanent and until_rest persist until flagged.
	return false
}

// FilterExpired returns the modifiers still active at currentRound.
// The input slice is not modified.
func FilterExpired(mods []ir.Modifier, currentRound int) []ir.Modifier {
	out := make([]ir.Modifier, 0, len(mods))
	for _, m := range mods {
		if !Expired(m, currentRound) {
			out = append(out, m)
		}
	}
	return out
}

// GroupBySource buckets modifiers by source, preserving order within each
// bucket. Modifiers without a source are grouped under "".
func GroupBySource(mods []ir.Modifier) map[string][]ir.Modifier {
	groups := make(map[string][]ir.Modifier)
	for _, m := range mods {
		groups[m.Source] = append(groups[m.Source], m)
	}
	return groups
}

// Sources returns the distinct sources in first-seen order.
func Sources(mods []ir.Modifier) []string {
	var out []string
	for _, m := range mods {
		if !slices.Contains(out, m.Source) {
			out = append(out, m.Source)
		}
	}
	return out
}

// Line is one row of a modifier breakdown.
type Line struct {
	ModifierID string          `json:"modifierId,omitempty"`
	Source     string          `json:"source"`
	Kind       ir.ModifierKind `json:"kind"`
	Amount     float64         `json:"amount"`
	Overridden bool            `json:"overridden,omitempty"`
}

// Breakdown lists the modifiers contributing to target in the order Apply
// folds them: additive, then multiply, then the winning set. When a set
// wins, every other line is marked overridden.
func Breakdown(mods []ir.Modifier, target string) []Line {
	var additive, multiply []Line
	for _, m := range mods {
		if !active(m, target) {
			continue
		}
		line := Line{ModifierID: m.ID, Source: m.Source, Kind: m.Kind.Canonical(), Amount: amount(m)}
		switch line.Kind {
		case ir.KindAdd:
			additive = append(additive, line)
		case ir.KindSubtract:
			line.Amount = -line.Amount
			additive = append(additive, line)
		case ir.KindMultiply:
			multiply = append(multiply, line)
		}
	}

	lines := append(additive, multiply...)
	if set, ok := latestSet(mods, target); ok {
		for i := range lines {
			lines[i].Overridden = true
		}
		lines = append(lines, Line{ModifierID: set.ID, Source: set.Source, Kind: ir.KindSet, Amount: amount(set)})
	}
	return lines
}
