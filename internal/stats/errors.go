package stats

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Typed errors below match them with errors.Is.
var (
	ErrConfiguration = errors.New("invalid configuration")
	ErrEmptyResult   = errors.New("empty result")
)

// ConfigurationError reports invalid bounds, bin sizes, windows or populations.
// It is always returned before any partial work is done.
type ConfigurationError struct {
	Op     string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// Is reports whether target is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// EmptyResultError reports valid inputs whose filtered intersection is empty.
type EmptyResultError struct {
	What string
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("no %s within the specified parameters", e.What)
}

// Is reports whether target is ErrEmptyResult.
func (e *EmptyResultError) Is(target error) bool {
	return target == ErrEmptyResult
}

func configErrorf(op, format string, args ...any) error {
	return &ConfigurationError{Op: op, Reason: fmt.Sprintf(format, args...)}
}
