package providers

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the closed set of failure classes a provider call can end in.
// Handlers match on Kind only; no provider-specific error type leaves this package.
type Kind string

const (
	KindMissingCredential Kind = "missing_credential"
	KindAuthFailure       Kind = "auth_failure"
	KindRateLimited       Kind = "rate_limited"
	KindConnectionFailure Kind = "connection_failure"
	KindBadRequest        Kind = "bad_request"
	KindContentRejected   Kind = "content_rejected"
	KindBlocked           Kind = "blocked"
	KindEmptyResponse     Kind = "empty_response"
	KindProviderError     Kind = "provider_error"
	KindUnexpected        Kind = "unexpected"
)

// HTTPStatus maps a kind to the status code returned to the browser.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindMissingCredential, KindBadRequest, KindContentRejected, KindBlocked:
		return http.StatusBadRequest
	case KindAuthFailure:
		return http.StatusUnauthorized
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindConnectionFailure:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified provider failure. Message is safe to show to the user.
type Error struct {
	Kind     Kind
	Provider string
	// Status is the upstream HTTP status, 0 when the call never got a response.
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Provider, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus is the status for the browser. Auth failures keep 403 when the
// provider signalled permission denied rather than a bad key.
func (e *Error) HTTPStatus() int {
	if e.Kind == KindAuthFailure && e.Status == http.StatusForbidden {
		return http.StatusForbidden
	}
	return e.Kind.HTTPStatus()
}

// KindOf returns the kind of a provider error, or KindUnexpected for anything else.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return KindUnexpected
}

// AsError converts any error into a classified *Error.
func AsError(provider string, err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	return &Error{
		Kind:     KindUnexpected,
		Provider: provider,
		Message:  "An unexpected error occurred while contacting the provider.",
		Err:      err,
	}
}

func missingCredential(provider, label string) *Error {
	return &Error{
		Kind:     KindMissingCredential,
		Provider: provider,
		Message:  label + " API key is missing. Please add it in the API key settings.",
	}
}
