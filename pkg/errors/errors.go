package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrInternal
	ErrValidation
	ErrSlotConflict
	ErrOutsideBusinessHours
	ErrInvalidTransition
	ErrStaleState
)

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

func NewValidation(message string) *AppError {
	return &AppError{
		Code:    ErrValidation,
		Message: message,
	}
}

// NewSlotConflict reports the bookings that block the requested time range.
func NewSlotConflict(conflictingIDs []string) *AppError {
	return &AppError{
		Code:    ErrSlotConflict,
		Message: fmt.Sprintf("time slot conflicts with existing appointments: %v", conflictingIDs),
	}
}

func NewOutsideBusinessHours(message string) *AppError {
	return &AppError{
		Code:    ErrOutsideBusinessHours,
		Message: message,
	}
}

func NewInvalidTransition(from, to string) *AppError {
	return &AppError{
		Code:    ErrInvalidTransition,
		Message: fmt.Sprintf("invalid status transition from %s to %s", from, to),
	}
}

// NewStaleState signals an optimistic-concurrency miss; the caller should
// re-fetch the appointment and retry with the latest version.
func NewStaleState(expected, actual int64) *AppError {
	return &AppError{
		Code:    ErrStaleState,
		Message: fmt.Sprintf("stale appointment version: expected %d, found %d", expected, actual),
	}
}

// Code extracts the ErrorCode from err, or ErrInternal if it is not an AppError.
func Code(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	return Code(err) == code
}
