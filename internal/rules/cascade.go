package rules

import (
	"context"
	"sync"
)

// CycleDetector tracks the rule firings in flight within one cascade.
//
// A cycle is a rule re-entering itself for the same entity and the same
// event content while the first firing is still running its effects. A
// firing is recorded before its effects run and released after, so sibling
// emissions of one event do not count as a cycle. Cycles happen with self-referential rules, or with rules
// that bounce a field between values:
//
//	onChange(stance: defend -> attack) -> set stance defend
//	onChange(stance: attack -> defend) -> set stance attack
//	onChange(stance: defend -> attack) ... <- CYCLE DETECTED
//
// Event content excludes the sequence number, so a repeat is recognised even
// though each emission is stamped with a fresh seq.
type CycleDetector struct {
	mu      sync.Mutex
	history map[string]bool
}

// NewCycleDetector creates a new cycle detector.
func NewCycleDetector() *CycleDetector {
	return &CycleDetector{history: make(map[string]bool)}
}

func cycleKey(ruleID, entityID, eventHash string) string {
	return ruleID + "\x00" + entityID + "\x00" + eventHash
}

// WouldCycle reports whether this firing is already in flight.
func (c *CycleDetector) WouldCycle(ruleID, entityID, eventHash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history[cycleKey(ruleID, entityID, eventHash)]
}

// Record marks a firing as in flight. Call it right after WouldCycle
// returns false.
func (c *CycleDetector) Record(ruleID, entityID, eventHash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history[cycleKey(ruleID, entityID, eventHash)] = true
}

// Release ends a firing started by Record.
func (c *CycleDetector) Release(ruleID, entityID, eventHash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.history, cycleKey(ruleID, entityID, eventHash))
}

// Size returns the number of firings in flight.
func (c *CycleDetector) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}

// QuotaEnforcer counts rule firings in a cascade and enforces a maximum.
//
// Cycle detection catches recursive patterns (A -> B -> A). The quota
// catches linear explosions of distinct firings (A -> B -> C -> ... -> Z).
// Together with the depth bound they guarantee termination.
type QuotaEnforcer struct {
	mu       sync.Mutex
	maxSteps int
	current  int
}

// NewQuotaEnforcer creates a new quota enforcer with the given limit.
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{maxSteps: maxSteps}
}

// Step increments the counter and reports whether the limit still holds.
func (q *QuotaEnforcer) Step() (steps int, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.current++
	return q.current, q.current <= q.maxSteps
}

// Current returns the current step count.
func (q *QuotaEnforcer) Current() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

// MaxSteps returns the maximum steps limit.
func (q *QuotaEnforcer) MaxSteps() int {
	return q.maxSteps
}

// Cascade is the guard state shared by every rule firing started from one
// top-level call.
type Cascade struct {
	Cycles *CycleDetector
	Quota  *QuotaEnforcer

	mu     sync.Mutex
	err    error
	halted bool
}

func newCascade(maxSteps int) *Cascade {
	return &Cascade{
		Cycles: NewCycleDetector(),
		Quota:  NewQuotaEnforcer(maxSteps),
	}
}

// trip records the first guard error of the cascade.
func (c *Cascade) trip(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// halt stops every further firing in the cascade.
func (c *Cascade) halt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.halted = true
}

// Halted reports whether the cascade has been stopped.
func (c *Cascade) Halted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.halted
}

// Err returns the first guard trip, or nil.
func (c *Cascade) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

type cascadeKey struct{}

type depthKey struct{}

// CascadeFrom returns the cascade carried by ctx, if any.
func CascadeFrom(ctx context.Context) (*Cascade, bool) {
	c, ok := ctx.Value(cascadeKey{}).(*Cascade)
	return c, ok
}

func withCascade(ctx context.Context, c *Cascade) context.Context {
	return context.WithValue(ctx, cascadeKey{}, c)
}

// Depth returns the rule re-entry depth carried by ctx.
func Depth(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}

func withDepth(ctx context.Context, d int) context.Context {
	return context.WithValue(ctx, depthKey{}, d)
}
