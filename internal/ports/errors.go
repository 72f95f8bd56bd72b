package ports

import (
	"errors"
	"fmt"
)

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Engine Specific Errors
	ErrEngineUnavailable    = errors.New("trading engine is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the trading engine")
	ErrRateLimited          = errors.New("engine API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("engine authentication failed (check API key)")
	ErrSessionExpired       = errors.New("session expired and token refresh failed")

	// Store Specific Errors
	ErrAlreadySubmitting = errors.New("same action already in flight for this entity")
	ErrTerminalState     = errors.New("entity is in a terminal state and cannot be mutated")
	ErrInvalidTransition = errors.New("status transition not permitted")

	// Database Specific Errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
)

// ErrorKind classifies a failed remote call for display and retry policy.
type ErrorKind string

const (
	KindNetwork        ErrorKind = "network"
	KindAuthentication ErrorKind = "authentication"
	KindValidation     ErrorKind = "validation"
	KindRemoteInternal ErrorKind = "remote-internal"
	KindUnknown        ErrorKind = "unknown"
)

// Retryable reports whether calls failing with this kind may be retried.
func (k ErrorKind) Retryable() bool {
	return k == KindNetwork || k == KindRemoteInternal
}

// ClassifyError maps a wrapped sentinel error to its taxonomy kind.
func ClassifyError(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrTimeout),
		errors.Is(err, ErrConnectionFailed),
		errors.Is(err, ErrContextCanceled):
		return KindNetwork
	case errors.Is(err, ErrAuthenticationFailed),
		errors.Is(err, ErrSessionExpired):
		return KindAuthentication
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrAlreadySubmitting),
		errors.Is(err, ErrTerminalState),
		errors.Is(err, ErrInvalidTransition):
		return KindValidation
	case errors.Is(err, ErrEngineUnavailable),
		errors.Is(err, ErrRateLimited):
		return KindRemoteInternal
	}
	return KindUnknown
}

// ActionError is the structured error a store surfaces to its caller after a
// failed mutating action: classification kind, the originating action and the
// affected entity, plus the underlying cause.
type ActionError struct {
	Kind     ErrorKind
	Action   string
	EntityID string
	Err      error
}

// NewActionError classifies err and wraps it with the action context.
func NewActionError(action, entityID string, err error) *ActionError {
	return &ActionError{
		Kind:     ClassifyError(err),
		Action:   action,
		EntityID: entityID,
		Err:      err,
	}
}

func (e *ActionError) Error() string {
	if e.EntityID == "" {
		return fmt.Sprintf("%s failed (%s): %v", e.Action, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s failed for %s (%s): %v", e.Action, e.EntityID, e.Kind, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }
