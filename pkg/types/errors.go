package types

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrIO              = errors.New("io error")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrConfiguration   = errors.New("configuration error")
)

// OpError records a failed operation on a path.
type OpError struct {
	// Kind is one of the Err* kinds above.
	Kind error
	// Op is the operation that failed, e.g. "open" or "save".
	Op string
	// Path is the file involved, if any.
	Path string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *OpError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// IOError wraps err as an ErrIO failure of op on path
func IOError(op, path string, err error) error {
	return &OpError{Kind: ErrIO, Op: op, Path: path, Err: err}
}

// ArgumentError represents an error caused by an invalid argument.
type ArgumentError struct {
	// Field is the name of the argument that failed validation.
	Field string
	// Value is the invalid value provided.
	Value string
	// Reason explains why the value is invalid.
	Reason string
}

// Error implements the error interface.
func (e *ArgumentError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// Is makes every ArgumentError match ErrInvalidArgument.
func (e *ArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// InvalidArgument builds an ArgumentError
func InvalidArgument(field, value, reason string) error {
	return &ArgumentError{Field: field, Value: value, Reason: reason}
}
