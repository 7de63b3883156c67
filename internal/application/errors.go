package application

import (
	"errors"
	"fmt"

	"github.com/ericfisherdev/exchangevault/internal/domain/port/driven"
)

// Request validation errors. They are reported to the caller and never retried.
var (
	ErrUnknownExchange = errors.New("unknown exchange")
	ErrMissingField    = errors.New("missing required field")
	ErrUnexpectedField = errors.New("unexpected field")
	ErrEmptyPassword   = errors.New("encryption password required")
)

// ErrStorageUnavailable wraps any store failure other than an expected absence,
// including store I/O that exceeded the configured timeout. Callers may retry
// with backoff; the vault itself never retries.
var ErrStorageUnavailable = errors.New("storage unavailable")

// ErrAuthentication aliases the port-level sentinel so callers import only the application package.
var ErrAuthentication = driven.ErrAuthentication

// ErrNotFound aliases the port-level sentinel so callers import only the application package.
var ErrNotFound = driven.ErrCredentialNotFound

// FieldError reports a credential field that failed validation for an exchange.
// It unwraps to ErrMissingField or ErrUnexpectedField.
type FieldError struct {
	Exchange string
	Field    string
	Err      error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s for exchange %q", e.Err, e.Field, e.Exchange)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
