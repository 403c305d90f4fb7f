package harness

import "github.com/roach88/forge/internal/ir"

// TraceEvent is one emitted event tagged with the 1-based step that caused
// it. Step 0 is entity setup.
type TraceEvent struct {
	Step  int      `json:"step"`
	Event ir.Event `json:"event"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step behaved as expected and every assertion
	// held.
	Pass bool `json:"pass"`

	// Trace contains every event the engine emitted, in seq order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State holds each entity's final base values, keyed by entity id.
	State map[ir.EntityID]ir.Object `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[ir.EntityID]ir.Object),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an event to the trace.
func (r *Result) AddTrace(step int, ev ir.Event) {
	r.Trace = append(r.Trace, TraceEvent{Step: step, Event: ev})
}

// Events returns the traced events without step tags.
func (r *Result) Events() []ir.Event {
	out := make([]ir.Event, len(r.Trace))
	for i, te := range r.Trace {
		out[i] = te.Event
	}
	return out
}
