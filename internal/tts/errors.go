package tts

import (
	"errors"
	"fmt"
	"net/http"
)

// FailureKind classifies why a provider call failed.
type FailureKind int

const (
	// FailureAuth means the credential was rejected. Never retried.
	FailureAuth FailureKind = iota + 1
	// FailureRateLimited means the provider asked us to slow down.
	FailureRateLimited
	// FailureServerUnavailable means the provider is temporarily unable to serve.
	FailureServerUnavailable
	// FailureMalformedResponse means the provider answered with something unusable.
	FailureMalformedResponse
	// FailureNetwork means the request never produced a response.
	FailureNetwork
	// FailureInvalidRequest means the request was refused before it was sent.
	FailureInvalidRequest
)

// Sentinel errors matched by SynthesisError.Is.
var (
	ErrAuth              = errors.New("provider rejected credentials")
	ErrRateLimited       = errors.New("provider rate limited the request")
	ErrServerUnavailable = errors.New("provider unavailable")
	ErrMalformedResponse = errors.New("provider returned a malformed response")
	ErrNetwork           = errors.New("network failure reaching provider")
	ErrInvalidRequest    = errors.New("synthesis request is invalid")
	ErrRetriesExhausted  = errors.New("synthesis retries exhausted")
)

// String returns the failure kind name used in logs and metrics.
func (k FailureKind) String() string {
	switch k {
	case FailureAuth:
		return "auth"
	case FailureRateLimited:
		return "rate_limited"
	case FailureServerUnavailable:
		return "server_unavailable"
	case FailureMalformedResponse:
		return "malformed_response"
	case FailureNetwork:
		return "network"
	case FailureInvalidRequest:
		return "invalid_request"
	default:
		return "unknown"
	}
}

func (k FailureKind) sentinel() error {
	switch k {
	case FailureAuth:
		return ErrAuth
	case FailureRateLimited:
		return ErrRateLimited
	case FailureServerUnavailable:
		return ErrServerUnavailable
	case FailureMalformedResponse:
		return ErrMalformedResponse
	case FailureNetwork:
		return ErrNetwork
	case FailureInvalidRequest:
		return ErrInvalidRequest
	default:
		return nil
	}
}

// SynthesisError is the typed failure returned by providers.
type SynthesisError struct {
	Kind       FailureKind
	StatusCode int
	Detail     string
	Err        error
}

// Error implements error.
func (e *SynthesisError) Error() string {
	msg := e.Kind.String()
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}

	if e.Detail != "" {
		msg += ": " + e.Detail
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap returns the underlying cause.
func (e *SynthesisError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error for the failure kind.
func (e *SynthesisError) Is(target error) bool {
	return target != nil && errors.Is(e.Kind.sentinel(), target)
}

// KindOf returns the failure kind carried by err, or zero if err is not a
// SynthesisError.
func KindOf(err error) FailureKind {
	var synthErr *SynthesisError
	if errors.As(err, &synthErr) {
		return synthErr.Kind
	}

	return 0
}

// kindForStatus maps a non-2xx HTTP status to a failure kind.
func kindForStatus(statusCode int) FailureKind {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return FailureAuth
	case http.StatusTooManyRequests:
		return FailureRateLimited
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return FailureServerUnavailable
	default:
		return FailureMalformedResponse
	}
}

func newFailure(kind FailureKind, statusCode int, detail string, cause error) *SynthesisError {
	return &SynthesisError{
		Kind:       kind,
		StatusCode: statusCode,
		Detail:     detail,
		Err:        cause,
	}
}
