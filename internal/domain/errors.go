package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// HTTPError defines errors that can be mapped to HTTP status codes.
// Implementing this interface lets handlers translate domain errors
// without enumerating every concrete type.
type HTTPError interface {
	error
	StatusCode() int
}

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrStateConflict     = errors.New("concurrent modification")
	ErrExternalService   = errors.New("external service failure")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
)

// ValidationError reports every violated rule at once so callers can
// fix a submission in a single round trip.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Violations, "; ")
}

func (e *ValidationError) StatusCode() int { return http.StatusBadRequest }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// InvalidStateTransitionError indicates an operation that is not legal
// from the entity's current status. Never retried, never coerced.
type InvalidStateTransitionError struct {
	Entity    string
	From      string
	Attempted string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("%s cannot move from %q via %s", e.Entity, e.From, e.Attempted)
}

func (e *InvalidStateTransitionError) StatusCode() int { return http.StatusConflict }

func (e *InvalidStateTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// RateLimitError carries the counts that were current when the limit
// tripped, so the caller can show them.
type RateLimitError struct {
	Rule    string
	Current int
	Limit   int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded (%s): %d of %d", e.Rule, e.Current, e.Limit)
}

func (e *RateLimitError) StatusCode() int { return http.StatusTooManyRequests }

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// StateConflictError indicates a lost optimistic-concurrency race.
// Retryable: the caller should re-fetch and resubmit.
type StateConflictError struct {
	Entity string
	ID     string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("%s %s was modified concurrently", e.Entity, e.ID)
}

func (e *StateConflictError) StatusCode() int { return http.StatusConflict }

func (e *StateConflictError) Is(target error) bool { return target == ErrStateConflict }

// ExternalServiceError wraps a failure of a consumed service (DOI
// registry, model provider). Never fatal to the primary operation.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

func (e *ExternalServiceError) StatusCode() int { return http.StatusBadGateway }

func (e *ExternalServiceError) Is(target error) bool { return target == ErrExternalService }

// NotFoundError indicates a resource was not found
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

func (e *NotFoundError) StatusCode() int { return http.StatusNotFound }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ForbiddenError indicates the caller lacks a required capability
type ForbiddenError struct {
	Capability string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("missing capability %q", e.Capability)
}

func (e *ForbiddenError) StatusCode() int { return http.StatusForbidden }

func (e *ForbiddenError) Is(target error) bool { return target == ErrForbidden }
