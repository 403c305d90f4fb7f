package harness

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/forge/internal/ir"
)

// FormatEvent renders one event as a single trace line, for example
//
//	#9 onChange hero-1.hp 12 -> -4
//
// Text values are quoted; payloads use canonical JSON so the line is
// stable across runs.
func FormatEvent(ev ir.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s", ev.Seq, ev.Name)
	if ev.EntityID != "" {
		b.WriteString(" " + string(ev.EntityID))
		if ev.FieldID != "" {
			b.WriteString("." + ev.FieldID)
		}
	}
	if ev.Previous != nil || ev.New != nil {
		fmt.Fprintf(&b, " %s -> %s", traceValue(ev.Previous), traceValue(ev.New))
	}
	if ev.Message != "" {
		fmt.Fprintf(&b, " message=%q", ev.Message)
	}
	if r := ev.Roll; r != nil {
		fmt.Fprintf(&b, " roll=%q total=%d", r.Formula, r.Total)
		if r.Label != "" {
			fmt.Fprintf(&b, " label=%q", r.Label)
		}
		if r.Critical {
			b.WriteString(" critical")
		}
		if r.Fumble {
			b.WriteString(" fumble")
		}
	}
	if m := ev.Modifier; m != nil {
		fmt.Fprintf(&b, " modifier=%s %s %s %s", m.ID, m.Kind, traceValue(m.Value), m.Duration)
		if m.Source != "" {
			fmt.Fprintf(&b, " source=%q", m.Source)
		}
	}
	if len(ev.Payload) > 0 {
		if data, err := ir.MarshalCanonical(ev.Payload); err == nil {
			fmt.Fprintf(&b, " payload=%s", data)
		}
	}
	return b.String()
}

// traceValue renders a value for a trace line.
func traceValue(v ir.Value) string {
	switch val := v.(type) {
	case nil, ir.Null:
		return "null"
	case ir.Text:
		return strconv.Quote(string(val))
	}
	return ir.FormatValue(v)
}

// FormatTrace renders a scenario trace, one event per line, each tagged
// with the step that caused it.
func FormatTrace(name string, trace []TraceEvent) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "scenario %s\n", name)
	for _, te := range trace {
		fmt.Fprintf(&b, "[%d] %s\n", te.Step, FormatEvent(te.Event))
	}
	return b.Bytes()
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...RunOption) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, opts...)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, FormatTrace(scenarioName, result.Trace))
}
