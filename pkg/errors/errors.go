// Package errors defines unified error types for gateway operations.
// Provider failures and routing outcomes are mapped to these standard types
// so callers never depend on provider-specific error shapes.
package errors

import (
	"fmt"
	"net/http"
	"strings"
)

// LLMError represents a standardized error from an LLM provider or the
// routing layer. It carries everything needed for logging and the client
// response.
type LLMError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Retryable  bool   `json:"-"`
}

// Error implements the error interface.
func (e *LLMError) Error() string {
	return fmt.Sprintf("[%s] %s (provider=%s, model=%s, code=%d)",
		e.Type, e.Message, e.Provider, e.Model, e.StatusCode)
}

// HTTPStatusCode returns the appropriate HTTP status code for the error.
func (e *LLMError) HTTPStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// Common error types as constants for consistency.
const (
	TypeAuthentication     = "authentication_error"
	TypeRateLimit          = "rate_limit_error"
	TypeInvalidRequest     = "invalid_request_error"
	TypeNotFound           = "not_found_error"
	TypeTimeout            = "timeout_error"
	TypeServiceUnavailable = "service_unavailable_error"
	TypeInternalError      = "internal_error"
)

// NewRateLimitError creates a rate limit error (429).
func NewRateLimitError(provider, model, message string) *LLMError {
	return &LLMError{
		StatusCode: http.StatusTooManyRequests,
		Message:    message,
		Type:       TypeRateLimit,
		Provider:   provider,
		Model:      model,
		Retryable:  true,
	}
}

// NewTimeoutError creates a timeout error (408).
func NewTimeoutError(provider, model, message string) *LLMError {
	return &LLMError{
		StatusCode: http.StatusRequestTimeout,
		Message:    message,
		Type:       TypeTimeout,
		Provider:   provider,
		Model:      model,
		Retryable:  true,
	}
}

// NewServiceUnavailableError creates a service unavailable error (503).
func NewServiceUnavailableError(provider, model, message string) *LLMError {
	return &LLMError{
		StatusCode: http.StatusServiceUnavailable,
		Message:    message,
		Type:       TypeServiceUnavailable,
		Provider:   provider,
		Model:      model,
		Retryable:  true,
	}
}

// NewInternalError creates an internal server error (500).
func NewInternalError(provider, model, message string) *LLMError {
	return &LLMError{
		StatusCode: http.StatusInternalServerError,
		Message:    message,
		Type:       TypeInternalError,
		Provider:   provider,
		Model:      model,
		Retryable:  false,
	}
}

// IsCooldownRequired determines if a deployment should be cooled down based on error.
// Rate limits, auth errors, timeouts, and not found errors trigger cooldown.
// Other 4xx errors do not trigger cooldown as they are likely client errors.
func IsCooldownRequired(statusCode int) bool {
	if statusCode >= 400 && statusCode < 500 {
		switch statusCode {
		case http.StatusTooManyRequests, // 429
			http.StatusUnauthorized,   // 401
			http.StatusRequestTimeout, // 408
			http.StatusNotFound:       // 404
			return true
		default:
			return false
		}
	}
	// All 5xx errors trigger cooldown
	return statusCode >= 500
}

// DeploymentSnapshot captures one candidate's resolved limits and usage at
// the moment routing rejected it. Values use -1 to render an unlimited
// metric, since unlimited limits can never be the blocking factor.
type DeploymentSnapshot struct {
	DeploymentID string           `json:"deployment_id"`
	Model        string           `json:"model"`
	Limits       map[string]int64 `json:"limits"`
	Usage        map[string]int64 `json:"usage"`
	Exceeded     []string         `json:"exceeded"`
}

// NoEligibleDeploymentError is returned when every candidate deployment for
// a model group would exceed at least one of its configured rate limits.
// It is a rate-limit-class condition (HTTP 429), not a server fault: the
// caller is expected to retry later or surface the breakdown to operators.
type NoEligibleDeploymentError struct {
	ModelGroup string               `json:"model_group"`
	Snapshots  []DeploymentSnapshot `json:"deployments"`
}

// Error implements the error interface.
func (e *NoEligibleDeploymentError) Error() string {
	parts := make([]string, 0, len(e.Snapshots))
	for _, s := range e.Snapshots {
		parts = append(parts, fmt.Sprintf("%s exceeded %s", s.DeploymentID, strings.Join(s.Exceeded, ",")))
	}
	return fmt.Sprintf("no deployments available within rate limits for model group %q: %s",
		e.ModelGroup, strings.Join(parts, "; "))
}

// HTTPStatusCode returns 429 so the condition maps to the same class as a
// provider-side rate limit.
func (e *NoEligibleDeploymentError) HTTPStatusCode() int {
	return http.StatusTooManyRequests
}

// AsLLMError converts the routing outcome into the standard error shape.
func (e *NoEligibleDeploymentError) AsLLMError() *LLMError {
	return NewRateLimitError("router", e.ModelGroup, e.Error())
}
