package provider

import (
	"context"
	"errors"

	"github.com/fieldvoice/fieldvoice/internal/models"
)

// TransientError wraps a temporary backend failure that may succeed on a
// different provider or a later attempt.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string { return e.err.Error() }
func (e *TransientError) Unwrap() error { return e.err }

// NewTransientError wraps an error as transient (fallback-eligible).
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// FatalError wraps a permanent failure (bad credentials, malformed request)
// that no amount of falling back will fix for the same provider.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string { return e.err.Error() }
func (e *FatalError) Unwrap() error { return e.err }

// NewFatalError wraps an error as fatal.
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// IsTransient reports whether the error is transient.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsFatal reports whether the error is fatal.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// ClassifyErr maps a provider call error onto the result taxonomy.
func ClassifyErr(err error) models.ProviderErrKind {
	switch {
	case err == nil:
		return models.ProviderErrNone
	case errors.Is(err, context.DeadlineExceeded):
		return models.ProviderErrTimeout
	default:
		return models.ProviderErrFailed
	}
}
