package rules

import (
	"errors"
	"fmt"

	"github.com/roach88/forge/internal/ir"
)

// RuntimeError represents a cascade guard trip.
//
// RuntimeError includes structured fields for diagnostics.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// RuleID identifies the rule being fired, if any.
	RuleID string

	// EntityID identifies the entity the cascade was acting on.
	EntityID ir.EntityID

	// Event is the name of the triggering event.
	Event string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeCycleDetected indicates an identical rule firing repeated in one cascade.
	ErrCodeCycleDetected RuntimeErrorCode = "CYCLE_DETECTED"

	// ErrCodeDepthExceeded indicates re-entry deeper than the max depth.
	ErrCodeDepthExceeded RuntimeErrorCode = "DEPTH_EXCEEDED"

	// ErrCodeQuotaExceeded indicates the cascade exceeded max steps.
	ErrCodeQuotaExceeded RuntimeErrorCode = "QUOTA_EXCEEDED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.RuleID != "" {
		return fmt.Sprintf("%s: %s (entity=%s, event=%s, rule=%s)", e.Code, e.Message, e.EntityID, e.Event, e.RuleID)
	}
	if e.EntityID != "" {
		return fmt.Sprintf("%s: %s (entity=%s, event=%s)", e.Code, e.Message, e.EntityID, e.Event)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsCycleError returns true if the error is a cycle detection error.
// Uses errors.As to handle wrapped errors.
func IsCycleError(err error) bool {
	return hasCode(err, ErrCodeCycleDetected)
}

// IsDepthError returns true if the error is a depth exceeded error.
func IsDepthError(err error) bool {
	return hasCode(err, ErrCodeDepthExceeded)
}

// IsQuotaError returns true if the error is a quota exceeded error.
func IsQuotaError(err error) bool {
	return hasCode(err, ErrCodeQuotaExceeded)
}

// IsGuardError returns true for any cascade guard trip.
func IsGuardError(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re)
}

// NewCycleError creates a RuntimeError for cycle detection.
func NewCycleError(ruleID string, entityID ir.EntityID, event, eventHash string) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeCycleDetected,
		Message:  "rule would fire for an identical event twice in one cascade",
		RuleID:   ruleID,
		EntityID: entityID,
		Event:    event,
		Details:  map[string]string{"event_hash": eventHash},
	}
}

// NewDepthError creates a RuntimeError for exceeded re-entry depth.
func NewDepthError(entityID ir.EntityID, event string, depth, maxDepth int) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeDepthExceeded,
		Message:  fmt.Sprintf("cascade exceeded max depth (%d >= %d)", depth, maxDepth),
		EntityID: entityID,
		Event:    event,
		Details: map[string]string{
			"depth":     fmt.Sprintf("%d", depth),
			"max_depth": fmt.Sprintf("%d", maxDepth),
		},
	}
}

// NewQuotaError creates a RuntimeError for quota exceeded.
func NewQuotaError(ruleID string, entityID ir.EntityID, event string, steps, maxSteps int) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeQuotaExceeded,
		Message:  fmt.Sprintf("cascade exceeded max steps (%d > %d)", steps, maxSteps),
		RuleID:   ruleID,
		EntityID: entityID,
		Event:    event,
		Details: map[string]string{
			"steps":     fmt.Sprintf("%d", steps),
			"max_steps": fmt.Sprintf("%d", maxSteps),
		},
	}
}
