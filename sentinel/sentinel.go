// Package sentinel validates node outputs against an optional contract.
//
// A Contract describes the required shape of a value and checks it. Three
// backends ship with the package: Schema (JSON Schema documents), Struct
// (Go struct types reflected to JSON Schema) and Func (hand-written checks).
// Validation failures are reported as *ValidationError, whose text always
// carries Marker so that downstream analytics can classify them by message.
package sentinel

import (
	"errors"
	"fmt"
)

// Marker identifies validation-class failures in error text and diagnoses.
const Marker = "Sentinel Validation Failed"

// Contract is the validation capability plugged into a wrapped node.
type Contract interface {
	// Validate checks value and returns it, possibly converted to the
	// contract's native representation.
	Validate(value any) (any, error)
	// Describe returns a machine-readable (JSON Schema) description of the
	// required shape.
	Describe() map[string]any
}

// ValidationError is returned when a value does not satisfy the contract.
type ValidationError struct {
	Value any
	Cause error
}

func (e *ValidationError) Error() string {
	if e.Cause == nil {
		return Marker
	}
	return fmt.Sprintf("%s: %v", Marker, e.Cause)
}

func (e *ValidationError) Unwrap() error { return e.Cause }

// IsValidationFailure reports whether err wraps a *ValidationError. Errors
// that merely mention Marker in their text do not count.
func IsValidationFailure(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Sentinel applies an optional contract.
type Sentinel struct {
	contract Contract
}

// New returns a Sentinel. A nil contract makes Validate the identity.
func New(contract Contract) *Sentinel {
	return &Sentinel{contract: contract}
}

func (s *Sentinel) Contract() Contract {
	if s == nil {
		return nil
	}
	return s.contract
}

// Validate returns value unchanged when no contract is configured; otherwise
// it returns the contract's result or a *ValidationError.
func (s *Sentinel) Validate(value any) (any, error) {
	if s == nil || s.contract == nil {
		return value, nil
	}
	out, err := s.contract.Validate(value)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return nil, ve
		}
		return nil, &ValidationError{Value: value, Cause: err}
	}
	return out, nil
}
