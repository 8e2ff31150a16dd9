package trigger

import (
	"errors"
	"fmt"
)

// ErrTerminated is returned by Run on a trigger that has already run.
var ErrTerminated = errors.New("trigger already terminated")

// ConfigurationError reports a trigger definition that cannot work.
//
// Field names the offending parameter using its serialized key
// (select_query, id_column, ...). Err carries the underlying cause when there
// is one.
type ConfigurationError struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration: " + e.Message
	}
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ConfigurationError) Unwrap() error { return e.Err }

// ConnectionError reports that a connection reference could not be resolved
// or a connection could not be opened.
type ConnectionError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %q: %v", e.Ref, e.Err)
}

// Unwrap returns the driver or resolver error.
func (e *ConnectionError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
// Uses errors.As to handle wrapped and joined errors.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsConnectionError reports whether err is or wraps a ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

func configErr(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
