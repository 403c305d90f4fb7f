package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/forge/internal/engine"
	"github.com/roach88/forge/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, te := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", te.Step, FormatEvent(te.Event))
		}
	}
	return buf.String()
}

// AssertionContext gives value assertions access to the engine.
type AssertionContext struct {
	Engine *engine.Engine
	Ctx    context.Context
}

// matches reports whether a traced event satisfies the assertion's event
// name and optional entity.
func matches(ev ir.Event, name, entity string) bool {
	return ev.Name == name && (entity == "" || string(ev.EntityID) == entity)
}

// assertEventEmitted checks that at least one matching event was emitted.
func assertEventEmitted(trace []TraceEvent, a Assertion) error {
	for _, te := range trace {
		if matches(te.Event, a.Event, a.Entity) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertEventEmitted,
		Expected: describeEvent(a.Event, a.Entity),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertEventCount checks that the event appears exactly Count times.
func assertEventCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, te := range trace {
		if matches(te.Event, a.Event, a.Entity) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, describeEvent(a.Event, a.Entity)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertEventOrder checks that the first occurrence of each event follows
// the first occurrence of the one before it. Events need not be
// consecutive.
func assertEventOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, te := range trace {
		for _, name := range a.Events {
			if positions[name] == 0 && matches(te.Event, name, a.Entity) {
				positions[name] = i + 1 // 1-indexed for readability
			}
		}
	}

	for _, name := range a.Events {
		if positions[name] == 0 {
			return &AssertionError{
				Type:     AssertEventOrder,
				Expected: fmt.Sprintf("all events present: %v", a.Events),
				Actual:   fmt.Sprintf("missing event: %s", name),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Events); i++ {
		prev, curr := a.Events[i-1], a.Events[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertEventOrder,
				Expected: fmt.Sprintf("events in order: %v", a.Events),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertMessage checks that an onMessage event carried exactly the text.
func assertMessage(trace []TraceEvent, a Assertion) error {
	var seen []string
	for _, te := range trace {
		if !matches(te.Event, ir.EventMessage, a.Entity) {
			continue
		}
		if te.Event.Message == a.Message {
			return nil
		}
		seen = append(seen, fmt.Sprintf("%q", te.Event.Message))
	}
	actual := "no messages"
	if len(seen) > 0 {
		actual = "messages " + strings.Join(seen, ", ")
	}
	return &AssertionError{
		Type:     AssertMessage,
		Expected: fmt.Sprintf("message %q", a.Message),
		Actual:   actual,
		Trace:    trace,
	}
}

// assertValue compares a field's base or effective value.
func assertValue(actx *AssertionContext, a Assertion) error {
	want, err := ir.FromAny(a.Equals)
	if err != nil {
		return fmt.Errorf("%s assertion: equals: %w", a.Type, err)
	}

	id := ir.EntityID(a.Entity)
	var got ir.Value
	if a.Type == AssertEffectiveValue {
		got = actx.Engine.GetEffectiveValue(actx.Ctx, id, a.Field)
	} else {
		got = actx.Engine.GetValue(actx.Ctx, id, a.Field)
	}

	if !ir.Equal(got, want) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s.%s = %s", a.Entity, a.Field, traceValue(want)),
			Actual:   traceValue(got),
		}
	}
	return nil
}

// assertModifierCount checks the number of modifiers on an entity.
func assertModifierCount(actx *AssertionContext, a Assertion) error {
	mods, err := actx.Engine.Modifiers(actx.Ctx, ir.EntityID(a.Entity))
	if err != nil {
		return fmt.Errorf("modifier_count assertion: %w", err)
	}
	if len(mods) != a.Count {
		ids := make([]string, len(mods))
		for i, m := range mods {
			ids[i] = m.ID
		}
		return &AssertionError{
			Type:     AssertModifierCount,
			Expected: fmt.Sprintf("%d modifiers on %s", a.Count, a.Entity),
			Actual:   fmt.Sprintf("%d modifiers %v", len(mods), ids),
		}
	}
	return nil
}

func describeEvent(name, entity string) string {
	if entity == "" {
		return name
	}
	return name + " on " + entity
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// Value assertions need actx; trace assertions do not.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertEventEmitted:
			err = assertEventEmitted(result.Trace, a)
		case AssertEventCount:
			err = assertEventCount(result.Trace, a)
		case AssertEventOrder:
			err = assertEventOrder(result.Trace, a)
		case AssertMessage:
			err = assertMessage(result.Trace, a)
		case AssertValue, AssertEffectiveValue, AssertModifierCount:
			if actx == nil || actx.Engine == nil {
				err = fmt.Errorf("assertion[%d]: %s requires an engine", i, a.Type)
			} else if a.Type == AssertModifierCount {
				err = assertModifierCount(actx, a)
			} else {
				err = assertValue(actx, a)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
