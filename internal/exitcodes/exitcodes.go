// Package exitcodes defines standard exit codes for CLI operations so that
// cron jobs and orchestrators can distinguish failure classes.
package exitcodes

import (
	"context"
	"errors"
	"strings"
)

const (
	// Success - sync completed without errors, or the process was
	// gracefully interrupted (interrupt is a clean shutdown, not a failure)
	Success = 0

	// ConfigError - configuration/flag/YAML parsing errors (non-recoverable, don't retry)
	ConfigError = 1

	// ConnectionError - source/destination database connection errors (recoverable)
	ConnectionError = 2

	// SyncError - a pass failed while moving data (retried by the next pass)
	SyncError = 3

	// SchemaError - missing ordering column, missing primary key, or
	// source/destination layout mismatch (requires operator intervention)
	SchemaError = 4
)

// ExitError wraps an error with an exit code.
type ExitError struct {
	Err  error
	Code int
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code.
func NewExitError(err error, code int) *ExitError {
	return &ExitError{Err: err, Code: code}
}

// FromError determines the appropriate exit code for an error.
// It examines error messages and types to classify the error.
func FromError(err error) int {
	if err == nil {
		return Success
	}

	// Graceful interrupt exits zero
	if errors.Is(err, context.Canceled) {
		return Success
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	errStr := strings.ToLower(err.Error())

	// Schema errors - check before ConfigError so "missing ordering column"
	// does not match ConfigError's "missing" keyword
	if containsAny(errStr, []string{
		"ordering column",
		"primary key",
		"no pk",
		"does not exist in source",
		"column mismatch",
	}) {
		return SchemaError
	}

	// Config errors
	if containsAny(errStr, []string{
		"yaml:",
		"unmarshal",
		"invalid config",
		"is required",
		"parsing config",
		"chunksize",
	}) && !containsAny(errStr, []string{"connection", "connect", "dial"}) {
		return ConfigError
	}

	// Connection errors
	if containsAny(errStr, []string{
		"connection",
		"connect",
		"dial",
		"refused",
		"timeout",
		"unreachable",
		"no such host",
		"network",
		"ping",
		"password authentication",
		"authentication",
	}) {
		return ConnectionError
	}

	if containsAny(errStr, []string{
		"cancel",
		"interrupt",
		"context deadline",
	}) {
		return Success
	}

	// Default: something went wrong mid-pass
	return SyncError
}

// IsRecoverable returns true if the error is recoverable (safe to retry).
func IsRecoverable(code int) bool {
	switch code {
	case ConnectionError, SyncError:
		return true
	default:
		return false
	}
}

// Description returns a human-readable description of the exit code.
func Description(code int) string {
	switch code {
	case Success:
		return "success"
	case ConfigError:
		return "configuration error"
	case ConnectionError:
		return "connection error (recoverable)"
	case SyncError:
		return "sync error (retried next pass)"
	case SchemaError:
		return "schema error"
	default:
		return "unknown error"
	}
}

func containsAny(s string, substrs []string) bool {
	for _, substr := range substrs {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}
