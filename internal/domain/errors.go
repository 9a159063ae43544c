package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used across all layers.
var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrValidation         = errors.New("validation error")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrOwnershipViolation = errors.New("ownership violation")
	ErrStoreUnavailable   = errors.New("store unavailable")
)

// FieldError describes a validation error for a specific field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError contains a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation: %s: %s", e.Errors[0].Field, e.Errors[0].Message)
	}
	return fmt.Sprintf("validation: %d errors", len(e.Errors))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Errors: []FieldError{{Field: field, Message: message}},
	}
}

// NewValidationErrors creates a ValidationError from multiple field errors.
func NewValidationErrors(errs []FieldError) *ValidationError {
	return &ValidationError{Errors: errs}
}

// ConflictError reports that an item is held by another user.
// Holder is empty when the conflict is a duplicate identity on create.
type ConflictError struct {
	Item   ItemRef
	Holder string
}

func (e *ConflictError) Error() string {
	if e.Holder == "" {
		return fmt.Sprintf("conflict: %s", e.Item)
	}
	return fmt.Sprintf("conflict: %s is assigned to %s", e.Item, e.Holder)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// PreconditionError reports a version mismatch. Current is the version the
// store holds, so the caller can re-read and retry.
type PreconditionError struct {
	Item     ItemRef
	Expected Version
	Current  Version
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed: %s expected version %s, current %s", e.Item, e.Expected, e.Current)
}

func (e *PreconditionError) Unwrap() error { return ErrPreconditionFailed }
