package unifiedllm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrModelGateway marks a model call that failed after the retry policy was
// exhausted. Session runs surface it wrapped in a GatewayError.
var ErrModelGateway = errors.New("model gateway failure")

// GatewayError reports a terminal model failure for one provider/model pair.
type GatewayError struct {
	Provider string
	Model    string
	Attempts int
	Err      error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %s/%s after %d attempt(s): %v", ErrModelGateway, e.Provider, e.Model, e.Attempts, e.Err)
}

func (e *GatewayError) Unwrap() []error {
	return []error{ErrModelGateway, e.Err}
}

// SDKError is the base error type for all unified LLM errors.
type SDKError struct {
	Message string
	Cause   error
}

func (e *SDKError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SDKError) Unwrap() error {
	return e.Cause
}

func (e *SDKError) setCause(err error) { e.Cause = err }

// withCause attaches cause to an error built by ErrorFromStatusCode.
func withCause(err, cause error) error {
	if c, ok := err.(interface{ setCause(error) }); ok {
		c.setCause(cause)
	}
	return err
}

// ProviderError represents an error returned by an LLM provider.
type ProviderError struct {
	SDKError
	Provider   string
	StatusCode int
	ErrorCode  string
	Retryable  bool
	RetryAfter time.Duration // zero when the provider gave no hint
	Raw        map[string]any
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Provider, e.Message, e.StatusCode, e.Retryable)
}

// Concrete provider error types.

type AuthenticationError struct{ ProviderError }
type AccessDeniedError struct{ ProviderError }
type NotFoundError struct{ ProviderError }
type InvalidRequestError struct{ ProviderError }
type RateLimitError struct{ ProviderError }
type ServerError struct{ ProviderError }
type ContentFilterError struct{ ProviderError }
type ContextLengthError struct{ ProviderError }
type QuotaExceededError struct{ ProviderError }

// Non-provider errors.

type RequestTimeoutError struct{ SDKError }
type AbortError struct{ SDKError }
type NetworkError struct{ SDKError }
type ConfigurationError struct{ SDKError }

// permanent is implemented by failures that another attempt cannot fix.
type permanent interface{ permanent() }

func (*AuthenticationError) permanent() {}
func (*AccessDeniedError) permanent()   {}
func (*NotFoundError) permanent()       {}
func (*InvalidRequestError) permanent() {}
func (*ContentFilterError) permanent()  {}
func (*ContextLengthError) permanent()  {}
func (*QuotaExceededError) permanent()  {}
func (*AbortError) permanent()          {}
func (*ConfigurationError) permanent()  {}

// ErrorFromStatusCode maps an HTTP status code to the appropriate error
// type. Unrecognised statuses come back as a retryable *ProviderError.
func ErrorFromStatusCode(statusCode int, message, provider, errorCode string, raw map[string]any, retryAfter time.Duration) error {
	pe := ProviderError{
		SDKError:   SDKError{Message: message},
		Provider:   provider,
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Raw:        raw,
		RetryAfter: retryAfter,
	}

	switch statusCode {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return &InvalidRequestError{ProviderError: pe}
	case http.StatusUnauthorized:
		return &AuthenticationError{ProviderError: pe}
	case http.StatusPaymentRequired:
		return &QuotaExceededError{ProviderError: pe}
	case http.StatusForbidden:
		return &AccessDeniedError{ProviderError: pe}
	case http.StatusNotFound:
		return &NotFoundError{ProviderError: pe}
	case http.StatusRequestTimeout:
		return &RequestTimeoutError{SDKError: SDKError{Message: message}}
	case http.StatusRequestEntityTooLarge:
		return &ContextLengthError{ProviderError: pe}
	}

	pe.Retryable = true
	switch {
	case statusCode == http.StatusTooManyRequests:
		return &RateLimitError{ProviderError: pe}
	case statusCode >= 500 && statusCode <= 599:
		return &ServerError{ProviderError: pe}
	}
	return &pe
}

// IsRetryable reports whether err is worth another attempt. Cancellation
// and permanent failures never are; errors of unknown shape are.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var (
		rateLimit *RateLimitError
		server    *ServerError
		network   *NetworkError
		timeout   *RequestTimeoutError
		fatal     permanent
		provider  *ProviderError
	)
	switch {
	case errors.As(err, &rateLimit), errors.As(err, &server),
		errors.As(err, &network), errors.As(err, &timeout):
		return true
	case errors.As(err, &fatal):
		return false
	case errors.As(err, &provider):
		return provider.Retryable
	}
	return true
}
