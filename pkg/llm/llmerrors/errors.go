// Package llmerrors classifies LLM API failures into a fixed taxonomy and
// reports which types are retryable. The router and worker do not retry;
// they surface a failed call to the user or end the run.
package llmerrors

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"
)

// ErrorType categorizes an LLM API failure.
type ErrorType int8

const (
	// ErrorTypeRateLimit is a 429 / quota-exceeded response.
	ErrorTypeRateLimit ErrorType = iota
	// ErrorTypeTransient is a 5xx, connection reset, or timeout.
	ErrorTypeTransient
	// ErrorTypeEmptyResponse is a 200 with no usable content.
	ErrorTypeEmptyResponse
	// ErrorTypeAuth is a 401/403, bad or missing API key.
	ErrorTypeAuth
	// ErrorTypeBadPrompt is a malformed request (too long, policy violation).
	ErrorTypeBadPrompt
	// ErrorTypeUnknown is the default for anything unclassified.
	ErrorTypeUnknown
)

func (et ErrorType) String() string {
	switch et {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeEmptyResponse:
		return "empty_response"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeBadPrompt:
		return "bad_prompt"
	case ErrorTypeUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Retry attempt defaults, overridable via RetryConfig.
const (
	DefaultEmptyResponseRetries = 5
	DefaultRateLimitRetries     = 6
	DefaultTransientRetries     = 4
	DefaultAuthRetries          = 0
	DefaultBadPromptRetries     = 0
	DefaultUnknownRetries       = 1
)

// RetryConfig is the exponential backoff policy for one error type.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
}

// DefaultRetryConfigs maps each error type to its backoff policy.
var DefaultRetryConfigs = map[ErrorType]RetryConfig{ //nolint:gochecknoglobals // static policy table
	ErrorTypeEmptyResponse: {
		MaxRetries: DefaultEmptyResponseRetries, InitialDelay: 2 * time.Second,
		MaxDelay: 30 * time.Second, BackoffFactor: 2.0, Jitter: true,
	},
	ErrorTypeRateLimit: {
		MaxRetries: DefaultRateLimitRetries, InitialDelay: 1 * time.Second,
		MaxDelay: 60 * time.Second, BackoffFactor: 2.0, Jitter: true,
	},
	ErrorTypeTransient: {
		MaxRetries: DefaultTransientRetries, InitialDelay: 500 * time.Millisecond,
		MaxDelay: 10 * time.Second, BackoffFactor: 2.0, Jitter: true,
	},
	ErrorTypeAuth: {
		MaxRetries: DefaultAuthRetries, BackoffFactor: 1.0,
	},
	ErrorTypeBadPrompt: {
		MaxRetries: DefaultBadPromptRetries, BackoffFactor: 1.0,
	},
	ErrorTypeUnknown: {
		MaxRetries: DefaultUnknownRetries, InitialDelay: 1 * time.Second,
		MaxDelay: 5 * time.Second, BackoffFactor: 2.0, Jitter: true,
	},
}

// Error is a classified LLM failure.
type Error struct {
	Err        error
	Message    string
	BodyStub   string
	Type       ErrorType
	StatusCode int
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("llm error (%s): %s", e.Type, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("llm error (%s): %v", e.Type, e.Err)
	}
	return fmt.Sprintf("llm error (%s): status %d", e.Type, e.StatusCode)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether this error's type is classified as retryable.
// Blocklist approach: everything retries unless explicitly excluded.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeAuth, ErrorTypeBadPrompt:
		return false
	default:
		return true
	}
}

// RetryConfig returns the backoff policy for this error's type.
func (e *Error) RetryConfig() RetryConfig {
	if cfg, ok := DefaultRetryConfigs[e.Type]; ok {
		return cfg
	}
	return DefaultRetryConfigs[ErrorTypeUnknown]
}

// Is reports whether err is a classified *Error of the given type.
func Is(err error, errorType ErrorType) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == errorType
	}
	return false
}

// TypeOf returns err's classified type, or ErrorTypeUnknown.
func TypeOf(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}

func NewError(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

func NewErrorWithStatus(errorType ErrorType, statusCode int, message string) *Error {
	return &Error{Type: errorType, StatusCode: statusCode, Message: message}
}

func NewErrorWithCause(errorType ErrorType, cause error, message string) *Error {
	return &Error{Type: errorType, Err: cause, Message: message}
}

// SanitizePrompt truncates a prompt for logging, replacing the middle with a
// content hash so correlated failures can still be spotted without leaking
// the full prompt text.
func SanitizePrompt(prompt string, maxChars int) string {
	if len(prompt) <= maxChars {
		return prompt
	}
	half := maxChars / 2
	if half < 100 {
		half = 100
	}
	first := prompt[:half]
	last := prompt[len(prompt)-half:]
	hash := sha256.Sum256([]byte(prompt))
	return fmt.Sprintf("%s...[%d chars, hash:%x]...%s", first, len(prompt), hash[:8], last)
}
