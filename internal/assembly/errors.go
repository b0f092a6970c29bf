package assembly

import (
	"errors"
	"fmt"
)

// ValidationError reports caller-supplied parameters that violate an invariant.
// It is always raised before any page is copied.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// ParseError reports a source that is not a well-formed PDF or decodable image,
// or whose pages could not be copied. Index is the 0-based position of the
// source in the caller's order.
type ParseError struct {
	Index int
	Name  string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: file #%d (%s): %v", e.Index+1, e.Name, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// LimitExceededError is returned when the usage gate denies an operation.
type LimitExceededError struct {
	Tool  string
	Used  int64
	Quota int64
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("usage limit reached for %s: %d/%d", e.Tool, e.Used, e.Quota)
}

// UnexpectedError wraps any other failure.
type UnexpectedError struct {
	Op  string
	Err error
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("%s: unexpected error: %v", e.Op, e.Err)
}

func (e *UnexpectedError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsParse(err error) bool {
	var p *ParseError
	return errors.As(err, &p)
}

func IsLimitExceeded(err error) bool {
	var l *LimitExceededError
	return errors.As(err, &l)
}

func IsUnexpected(err error) bool {
	var u *UnexpectedError
	return errors.As(err, &u)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
