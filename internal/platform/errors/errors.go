package errors

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindConfig    Kind = "config"
	KindTransport Kind = "transport"
	KindBootstrap Kind = "bootstrap"
	KindStorage   Kind = "storage"
	KindInternal  Kind = "internal"

	// Synthesis pipeline kinds. The first three trigger the fallback chain;
	// exhaustion is the only one surfaced to the caller.
	KindProviderUnavailable   Kind = "provider_unavailable"
	KindQuotaExceeded         Kind = "quota_exceeded"
	KindSynthesisFailed       Kind = "synthesis_failed"
	KindNoEligibleProvider    Kind = "no_eligible_provider"
	KindAllProvidersExhausted Kind = "all_providers_exhausted"

	// Training pipeline kinds.
	KindValidationFailed  Kind = "validation_failed"
	KindJobRetryExhausted Kind = "job_retry_exhausted"
	KindNotFound          Kind = "not_found"
	KindAlreadyTerminal   Kind = "already_terminal"
	KindInvalidRequest    Kind = "invalid_request"
)

type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func Wrap(kind Kind, op, message string, err error) *Error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Cause:   err,
	}
}

func New(kind Kind, op, message string) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
	}
}

// IsKind checks whether any error in the chain matches the provided kind.
func IsKind(err error, kind Kind) bool {
	var target *Error
	for err != nil {
		if errors.As(err, &target) {
			return target.Kind == kind
		}
		err = errors.Unwrap(err)
	}
	return false
}

// KindOf returns the kind of the first typed error in the chain, or
// KindInternal when the chain carries no typed error.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindInternal
}

// Retryable reports whether a synthesis failure of this kind should move the
// fallback chain to the next candidate instead of aborting the call.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindProviderUnavailable, KindQuotaExceeded, KindSynthesisFailed:
		return true
	}
	return false
}
