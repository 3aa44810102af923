package models

import "errors"

// ErrorMessageResponse returns the error message response struct
type ErrorMessageResponse struct {
	Response MessageError
}

// MessageError contains the inner details for the error message response
type MessageError struct {
	Message string
	Error   string
}

var (
	// ErrNotFound is returned when a case, officer or station does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned for a move outside the case lifecycle chain
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrForbidden is returned when the actor's role does not allow the operation
	ErrForbidden = errors.New("forbidden")
	// ErrPreconditionFailed is returned when the record is not in a state that allows the operation
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrConcurrencyConflict is returned when an optimistic write lost a race; retrying is safe
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrInvalidInput is returned for malformed arguments such as out of range coordinates
	ErrInvalidInput = errors.New("invalid input")
	// ErrDuplicateKey is returned when an insert collides with a unique index
	ErrDuplicateKey = errors.New("duplicate key")
)
