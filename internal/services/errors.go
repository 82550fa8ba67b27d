package services

import "errors"

// Error kinds. Every error returned by UserService matches exactly one of
// these with errors.Is; anything else is an unexpected fault.
var (
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInternal     = errors.New("internal error")
)

// Error carries a caller-safe message and, for validation failures, the
// offending fields. Err holds the underlying cause for logs only.
type Error struct {
	Kind    error
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func validationError(message string, fields map[string]string) error {
	return &Error{Kind: ErrValidation, Message: message, Fields: fields}
}

func conflictError(message string) error {
	return &Error{Kind: ErrConflict, Message: message}
}

func notFoundError(message string) error {
	return &Error{Kind: ErrNotFound, Message: message}
}

func unauthorizedError(message string, cause error) error {
	return &Error{Kind: ErrUnauthorized, Message: message, Err: cause}
}

func internalError(message string, cause error) error {
	return &Error{Kind: ErrInternal, Message: message, Err: cause}
}
