package request

import (
	"errors"
	"fmt"
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("permission denied: %s", e.Reason)
}

type StateError struct {
	Status Status
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("request is %s: %s", e.Status, e.Reason)
}

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ConflictError marks a concurrent mutation; the whole operation is safe to retry.
type ConflictError struct {
	Reason string
	Err    error
}

func (e *ConflictError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("conflict: %s", e.Reason)
	}
	return fmt.Sprintf("conflict: %s: %v", e.Reason, e.Err)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindState         Kind = "state"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindInternal      Kind = "internal"
)

// KindOf classifies an error returned by the negotiation engine.
func KindOf(err error) Kind {
	var (
		validationErr    *ValidationError
		authorizationErr *AuthorizationError
		stateErr         *StateError
		notFoundErr      *NotFoundError
		conflictErr      *ConflictError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.As(err, &authorizationErr):
		return KindAuthorization
	case errors.As(err, &stateErr):
		return KindState
	case errors.As(err, &notFoundErr):
		return KindNotFound
	case errors.As(err, &conflictErr):
		return KindConflict
	}
	return KindInternal
}
