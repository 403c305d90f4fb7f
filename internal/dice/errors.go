package dice

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidNotation indicates text that matches no dice grammar rule.
	ErrInvalidNotation = errors.New("invalid dice notation")
	// ErrDiceLimit indicates a die count, side count or keep count out of range.
	ErrDiceLimit = errors.New("dice limit exceeded")
)

// Limits on a single dice term.
const (
	MaxDice  = 1000
	MaxSides = 100000
)

// SyntaxError describes why a formula could not be parsed.
type SyntaxError struct {
	Formula string
	Column  int // 1-based; 0 when unknown
	Message string
	Err     error // ErrInvalidNotation or ErrDiceLimit
}

func (e *SyntaxError) Error() string {
	if e.Column > 0 {
		return fmt.Sprintf("dice %q: column %d: %s", e.Formula, e.Column, e.Message)
	}
	return fmt.Sprintf("dice %q: %s", e.Formula, e.Message)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// IsSyntaxError reports whether err is a dice syntax error.
func IsSyntaxError(err error) bool {
	var serr *SyntaxError
	return errors.As(err, &serr)
}
