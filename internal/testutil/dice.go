package testutil

import "sync"

// DiceSequence is a scripted dice source. Each IntN call consumes the next
// face value (1-based, as printed on the die) and returns face-1, clamped to
// the die. The script wraps around when exhausted.
//
// It satisfies dice.Source.
type DiceSequence struct {
	mu    sync.Mutex
	faces []int
	next  int
	calls int
}

// NewDiceSequence creates a source that rolls the given faces in order.
// With no faces every die rolls 1.
func NewDiceSequence(faces ...int) *DiceSequence {
	if len(faces) == 0 {
		faces = []int{1}
	}
	return &DiceSequence{faces: append([]int(nil), faces...)}
}

// IntN returns the next scripted face minus one, within [0, n).
func (s *DiceSequence) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	face := s.faces[s.next]
	s.next = (s.next + 1) % len(s.faces)
	s.calls++

	v := face - 1
	if v < 0 {
		v = 0
	}
	if v >= n {
		v = n - 1
	}
	return v
}

// Calls returns how many dice have been rolled.
func (s *DiceSequence) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
