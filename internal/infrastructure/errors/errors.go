// Package errors classifies failures across the component, central store,
// and transport layers so callers can decide whether to retry, surface to
// an operator, or treat the update as permanently rejected.
package errors

import (
	"errors"
	"fmt"
)

// Category represents error classification for handling decisions.
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryNetwork    Category = "network"
	CategoryRetryable  Category = "retryable"
	CategoryPermanent  Category = "permanent"
	CategoryInternal   Category = "internal"
)

// Categorized is an error that has a category.
type Categorized interface {
	error
	Category() Category
}

func IsRetryable(err error) bool  { return hasCategory(err, CategoryRetryable) }
func IsValidation(err error) bool { return hasCategory(err, CategoryValidation) }
func IsNetwork(err error) bool    { return hasCategory(err, CategoryNetwork) }

func hasCategory(err error, c Category) bool {
	var cat Categorized
	return errors.As(err, &cat) && cat.Category() == c
}

func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func New(msg string) error                         { return errors.New(msg) }
func Newf(format string, args ...any) error         { return fmt.Errorf(format, args...) }
func Is(err, target error) bool                     { return errors.Is(err, target) }
func As(err error, target any) bool                 { return errors.As(err, target) }
func Join(errs ...error) error                      { return errors.Join(errs...) }

// ValidationError represents input validation failures — a malformed
// query graph, a match missing a required binding, and similar.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s %s", e.Field, e.Message)
}
func (e *ValidationError) Category() Category { return CategoryValidation }

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// InternalError represents unexpected internal failures — an invariant
// the consistency loop or router assumed and found violated.
type InternalError struct {
	Operation string
	Cause     error
}

func (e *InternalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("internal error in %s: %v", e.Operation, e.Cause)
	}
	return fmt.Sprintf("internal error in %s", e.Operation)
}
func (e *InternalError) Category() Category { return CategoryInternal }
func (e *InternalError) Unwrap() error      { return e.Cause }

func NewInternalError(operation string, cause error) *InternalError {
	return &InternalError{Operation: operation, Cause: cause}
}

// NetworkError represents a transient fault reaching a peer component,
// the central store, or an application backend over the wire — dial
// failure, a dropped connection mid-frame, a frame that failed to decode.
// Its category is CategoryRetryable when Retryable is set and
// CategoryNetwork otherwise, so IsNetwork reports only the non-retryable
// ones (a peer refusing a malformed frame is a network error but not
// retryable).
type NetworkError struct {
	Peer      string
	Operation string
	Cause     error
	Retryable bool
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error calling %s during %s: %v", e.Peer, e.Operation, e.Cause)
}

func (e *NetworkError) Category() Category {
	if e.Retryable {
		return CategoryRetryable
	}
	return CategoryNetwork
}
func (e *NetworkError) Unwrap() error { return e.Cause }

// NewNetworkError wraps cause as a NetworkError for the given peer and
// operation. retryable should be true for dial/timeout failures and false
// for a peer's explicit protocol-level rejection.
func NewNetworkError(peer, operation string, cause error, retryable bool) *NetworkError {
	return &NetworkError{Peer: peer, Operation: operation, Cause: cause, Retryable: retryable}
}
