package engine

import (
	"errors"

	"github.com/roach88/forge/internal/rules"
)

// Sentinel errors returned by Engine operations. Callers match them with
// errors.Is; the returned error wraps them with the offending id.
var (
	ErrEntityNotFound    = errors.New("entity not found")
	ErrEntityExists      = errors.New("entity already exists")
	ErrUnknownEntityType = errors.New("unknown entity type")
	ErrUnknownField      = errors.New("unknown field")
	ErrDerivedField      = errors.New("field is derived and cannot be written")
	ErrModifierNotFound  = errors.New("modifier not found")
	ErrInvalidModifier   = errors.New("invalid modifier")
)

// RuntimeError is a cascade guard trip. Mutation methods return it when a
// rule cascade they started was cut short; the mutation itself stays
// applied.
type RuntimeError = rules.RuntimeError

// IsCycleError returns true if err is an identical-firing cycle trip.
func IsCycleError(err error) bool { return rules.IsCycleError(err) }

// IsDepthError returns true if err is a re-entry depth trip.
func IsDepthError(err error) bool { return rules.IsDepthError(err) }

// IsQuotaError returns true if err is a max-steps trip.
func IsQuotaError(err error) bool { return rules.IsQuotaError(err) }

// IsGuardError returns true for any cascade guard trip.
func IsGuardError(err error) bool { return rules.IsGuardError(err) }
