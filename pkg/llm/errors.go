package llm

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/priorauth-labs/caseflow/pkg/models"
)

// ErrGatewayExhausted is returned when every routed provider failed. It
// always wraps the last underlying cause.
var ErrGatewayExhausted = errors.New("all providers exhausted")

// ErrEmbeddingUnavailable is returned when the embedding channel has no
// configured provider.
var ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

// ProviderError wraps a provider failure with enough information to
// classify it. It preserves the original cause via Unwrap so classification
// can walk wrapped chains.
type ProviderError struct {
	Provider   models.Provider
	StatusCode int
	Transient  bool
	Err        error
}

func (e *ProviderError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s provider error (%s, status %d): %v", e.Provider, kind, e.StatusCode, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError classifies an HTTP-style status code and wraps the cause.
func NewProviderError(provider models.Provider, statusCode int, err error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		StatusCode: statusCode,
		Transient:  transientStatus(statusCode),
		Err:        err,
	}
}

// parseError marks unusable provider output (e.g. invalid JSON for a
// json-format request). Permanent for routing purposes: retrying the same
// provider is unlikely to help.
type parseError struct {
	provider models.Provider
	err      error
}

func (e *parseError) Error() string {
	return fmt.Sprintf("%s response parse error: %v", e.provider, e.err)
}

func (e *parseError) Unwrap() error { return e.err }

// transientStatus reports whether an HTTP status indicates a retryable
// condition: request timeout, rate limiting, or server-side failure.
func transientStatus(code int) bool {
	return code == 408 || code == 429 || code >= 500
}

// IsTransient classifies an error chain as transient (retry the same
// provider once) or permanent (fall through to the next provider
// immediately). Network errors, timeouts, rate limits, and 5xx responses
// are transient; auth, bad-request, and parse failures are permanent.
// Unknown error types are treated as transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		// Caller gave up; retrying cannot succeed within this call.
		return false
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient
	}

	var parseErr *parseError
	if errors.As(err, &parseErr) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Unknown types are treated as transient.
	return true
}
