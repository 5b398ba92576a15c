package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrTypeConfig         ErrorType = "config"
	ErrTypeIntrospection  ErrorType = "introspection"
	ErrTypeMetadata       ErrorType = "metadata"
	ErrTypeQuery          ErrorType = "query"
	ErrTypeIdempotent     ErrorType = "idempotent_conflict"
	ErrTypeNamingConflict ErrorType = "naming_conflict"
	ErrTypeValidation     ErrorType = "validation"
	ErrTypeDatabase       ErrorType = "database"
	ErrTypeNetwork        ErrorType = "network"
	ErrTypeAuth           ErrorType = "auth"
	ErrTypeFileSystem     ErrorType = "filesystem"
	ErrTypeInternal       ErrorType = "internal"
)

// Error represents a structured error with type and optional suggestions
type Error struct {
	Type        ErrorType
	Message     string
	Cause       error
	Suggestions []string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}

	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithSuggestion adds a suggestion for resolving the error
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// New creates a new structured error
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new structured error with formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with formatted message
func Wrapf(err error, errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Type == errType
	}

	return false
}

// GetType returns the error type if it's a structured error
func GetType(err error) ErrorType {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Type
	}

	return ErrTypeInternal
}

// Suggestions collects the suggestions of every structured error in the chain
func Suggestions(err error) []string {
	var out []string

	for err != nil {
		var structErr *Error
		if !errors.As(err, &structErr) {
			break
		}

		out = append(out, structErr.Suggestions...)
		err = structErr.Cause
	}

	return out
}

// NewConfigError creates a configuration error with suggestions
func NewConfigError(message, field string) *Error {
	err := New(ErrTypeConfig, message)
	if field != "" {
		err.Message = fmt.Sprintf("%s (field: %s)", message, field)
	}

	return err.
		WithSuggestion("Check your configuration file syntax").
		WithSuggestion("Run with --help to see valid configuration options")
}

// NewIntrospectionError marks a failed schema listing; the run cannot continue without it
func NewIntrospectionError(err error, what, schema string) *Error {
	return Wrapf(err, ErrTypeIntrospection, "failed to list %s in schema %q", what, schema).
		WithSuggestion("Check that the database is reachable from the metadata endpoint").
		WithSuggestion("Verify the target schema and database names")
}

// NewNamingConflict reports a relationship name that cannot be used on a table
func NewNamingConflict(table, name, reason string) *Error {
	if name == "" {
		return Newf(ErrTypeNamingConflict, "empty relationship name on table %q: %s", table, reason).
			WithSuggestion("Check the key column suffix configuration")
	}

	return Newf(ErrTypeNamingConflict, "relationship %q on table %q %s", name, table, reason).
		WithSuggestion("Rename one of the key columns or declare the relationship manually")
}
