// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"errors"
	"fmt"
)

// Base error kinds. Every DomainError carries one, so callers match with
// errors.Is against these instead of the concrete errors below.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Rejected input
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// Collaborator failures
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// DomainError is an error raised by one of the domain packages.
type DomainError struct {
	Domain  string // skilltree, ledger, progression
	Op      string // Build, Add, Analyze...
	Kind    error  // one of the base kinds above
	Message string
	Err     error // cause, optional
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	if t, ok := target.(*DomainError); ok {
		return e.Domain == t.Domain && e.Op == t.Op && e.Message == t.Message
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Detail returns a copy of a predeclared domain error with extra context appended to
// its message. The copy still matches the original with errors.Is.
func Detail(base *DomainError, format string, args ...any) *DomainError {
	return &DomainError{
		Domain:  base.Domain,
		Op:      base.Op,
		Kind:    base,
		Message: base.Message + ": " + fmt.Sprintf(format, args...),
	}
}

// Skill tree errors
var (
	ErrNilRoot             = NewDomainError("skilltree", "Build", ErrInvalidInput, "tree root is nil")
	ErrEmptyTreeName       = NewDomainError("skilltree", "Build", ErrEmptyValue, "tree name is empty")
	ErrNonPositiveWeight   = NewDomainError("skilltree", "Build", ErrValueOutOfRange, "tree weight must be strictly positive")
	ErrNonPositiveCapacity = NewDomainError("skilltree", "Build", ErrValueOutOfRange, "node capacity must be strictly positive")
	ErrDuplicateSkillID    = NewDomainError("skilltree", "Index", ErrAlreadyExists, "duplicate skill id")
	ErrInvalidSkillID      = NewDomainError("skilltree", "Validate", ErrInvalidID, "invalid skill id")
	ErrLeafWithChildren    = NewDomainError("skilltree", "Build", ErrInvalidInput, "leaf node cannot have children")
	ErrNilTree             = NewDomainError("skilltree", "Register", ErrInvalidInput, "tree is nil")
)

// Ledger errors
var (
	ErrNegativeXP     = NewDomainError("ledger", "Validate", ErrNegativeValue, "experience amount cannot be negative")
	ErrInvalidActorID = NewDomainError("ledger", "Validate", ErrInvalidID, "invalid actor id")
	ErrXPOverflow     = NewDomainError("ledger", "Add", ErrValueOutOfRange, "experience total would overflow")
)

// Progression errors
var (
	ErrInvalidEffectiveXP = NewDomainError("progression", "NewEffectiveXP", ErrNegativeValue, "effective xp components cannot be negative")
	ErrInvalidCapacity    = NewDomainError("progression", "NewEffectiveXP", ErrValueOutOfRange, "capacity must be strictly positive")
)

// IsNotFound reports ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

var validationKinds = []error{
	ErrValidation, ErrInvalidID, ErrInvalidInput, ErrEmptyValue,
	ErrNegativeValue, ErrValueOutOfRange, ErrInvalidFormat, ErrAlreadyExists,
}

// IsValidation reports whether err rejects the caller's input, as opposed to
// a failing collaborator.
func IsValidation(err error) bool {
	for _, kind := range validationKinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// IsExternalService reports a failure of a store or another collaborator.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) || errors.Is(err, ErrServiceUnavailable)
}
