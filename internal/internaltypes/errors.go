// Package internaltypes holds the error taxonomy shared by every layer.
//
// Errors are built on github.com/cockroachdb/errors. Sentinels are used as
// marks: a concrete error is wrapped with context and marked with one of the
// sentinels below, and callers classify it with errors.Is.
//
//	return internaltypes.Mark(errors.Wrap(err, "submit"), internaltypes.ErrTransient)
package internaltypes

import (
	"fmt"

	crdb "github.com/cockroachdb/errors"
)

var (
	New      = crdb.New
	Newf     = crdb.Newf
	Wrap     = crdb.Wrap
	Wrapf    = crdb.Wrapf
	Mark     = crdb.Mark
	Is       = crdb.Is
	IsAny    = crdb.IsAny
	As       = crdb.As
	WithHint = crdb.WithHint
)

var (
	ErrUnauthorized = crdb.New("unauthorized")
	ErrNotFound     = crdb.New("not found")

	// ErrConflict is a lost compare-and-set. Callers re-read and decide.
	ErrConflict = crdb.New("conflict: status changed concurrently")
	// ErrInvalidTransition rejects a status change the state machine forbids.
	ErrInvalidTransition = crdb.New("invalid status transition")

	ErrTransient         = crdb.New("transient execution error")
	ErrDefinitive        = crdb.New("definitive rejection")
	ErrCredentialExpired = crdb.New("refresh credential expired")

	// ErrStoreUnavailable is the only error fatal to the process.
	ErrStoreUnavailable = crdb.New("job store unavailable")
)

// ConfigurationError reports a malformed intent or recurrence rule.
// Field names the offending input field.
type ConfigurationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("configuration: %s=%q: %s", e.Field, e.Value, e.Reason)
}

func Configf(field, value, format string, args ...any) error {
	return &ConfigurationError{Field: field, Value: value, Reason: fmt.Sprintf(format, args...)}
}

// IsConfiguration reports whether err carries a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return crdb.As(err, &ce)
}

func Transient(err error) bool         { return err != nil && crdb.Is(err, ErrTransient) }
func Definitive(err error) bool        { return err != nil && crdb.Is(err, ErrDefinitive) }
func CredentialExpired(err error) bool { return err != nil && crdb.Is(err, ErrCredentialExpired) }
