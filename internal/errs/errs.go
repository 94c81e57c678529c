// Package errs defines coded application errors shared across components.
package errs

import (
	"errors"
	"fmt"
)

// Standard error codes for the application.
const (
	CodeUnknown    = "UNKNOWN"
	CodeDatabase   = "DATABASE"
	CodeValidation = "VALIDATION"
	CodeScheduler  = "SCHEDULER"
	CodeNotify     = "NOTIFY"
	CodeConfig     = "CONFIG"
)

// ApplicationError is the interface that all coded errors implement.
type ApplicationError interface {
	error
	Code() string
	Unwrap() error
}

// Error is a coded error wrapping an optional cause.
type Error struct {
	code    string
	message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}

	return e.message
}

func (e *Error) Code() string {
	return e.code
}

func (e *Error) Unwrap() error {
	return e.err
}

// Code returns the code of the first ApplicationError in err's chain,
// or CodeUnknown if there is none.
func Code(err error) string {
	var appErr ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Code()
	}

	return CodeUnknown
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	return err != nil && Code(err) == code
}

func newError(code, message string, cause error) error {
	return &Error{code: code, message: message, err: cause}
}

func NewDatabaseError(message string, cause error) error {
	return newError(CodeDatabase, message, cause)
}

func NewValidationError(message string, cause error) error {
	return newError(CodeValidation, message, cause)
}

func NewSchedulerError(message string, cause error) error {
	return newError(CodeScheduler, message, cause)
}

func NewNotifyError(message string, cause error) error {
	return newError(CodeNotify, message, cause)
}

func NewConfigError(message string, cause error) error {
	return newError(CodeConfig, message, cause)
}
