package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different types of errors
type ErrorType int

const (
	ErrInvalidURL ErrorType = iota
	ErrProtocolMismatch
	ErrRemoteRejected
	ErrTransport
	ErrMalformedToken
	ErrFileSystem
	ErrCancelled
)

// ErrorSeverity represents the severity of an error
type ErrorSeverity int

const (
	SeverityInfo ErrorSeverity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// LinkError is the error type surfaced by resolution and download operations.
type LinkError struct {
	Code       int                    `json:"code,omitempty"` // HTTP status when one is involved
	Message    string                 `json:"message"`
	Type       ErrorType              `json:"type"`
	Severity   ErrorSeverity          `json:"severity"`
	Step       string                 `json:"step,omitempty"`
	URL        string                 `json:"url,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Cause      error                  `json:"-"`
}

// Error implements the error interface
func (e *LinkError) Error() string {
	var parts []string

	head := e.Type.String()
	if e.Step != "" {
		head = fmt.Sprintf("%s at %s", head, e.Step)
	}
	parts = append(parts, head)

	if e.Message != "" {
		parts = append(parts, e.Message)
	}

	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause.
func (e *LinkError) Unwrap() error {
	return e.Cause
}

// DetailedError returns a detailed error message with all available information
func (e *LinkError) DetailedError() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s] %s Error", e.Severity.String(), e.Type.String()))

	if e.Code != 0 {
		parts = append(parts, fmt.Sprintf("Code: %d", e.Code))
	}
	if e.Step != "" {
		parts = append(parts, fmt.Sprintf("Step: %s", e.Step))
	}
	if e.Message != "" {
		parts = append(parts, fmt.Sprintf("Message: %s", e.Message))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause: %v", e.Cause))
	}

	// Add URL if available (redacted)
	if e.URL != "" {
		parts = append(parts, fmt.Sprintf("URL: %s", redactSensitiveURL(e.URL)))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("Context: %s", strings.Join(contextParts, ", ")))
	}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("\nSuggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, "\n")
}

// String returns the string representation of ErrorType
func (et ErrorType) String() string {
	switch et {
	case ErrInvalidURL:
		return "InvalidURL"
	case ErrProtocolMismatch:
		return "ProtocolMismatch"
	case ErrRemoteRejected:
		return "RemoteRejected"
	case ErrTransport:
		return "Transport"
	case ErrMalformedToken:
		return "MalformedToken"
	case ErrFileSystem:
		return "FileSystem"
	case ErrCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// String returns the string representation of ErrorSeverity
func (es ErrorSeverity) String() string {
	switch es {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// NewLinkError creates a new LinkError with the default suggestion and severity
// of its type.
func NewLinkError(errorType ErrorType, message string) *LinkError {
	return &LinkError{
		Message:    message,
		Type:       errorType,
		Severity:   getDefaultSeverity(errorType),
		Suggestion: getDefaultSuggestion(errorType),
		Context:    make(map[string]interface{}),
	}
}

// WithStep records which resolution step failed.
func (e *LinkError) WithStep(step string) *LinkError {
	e.Step = step
	return e
}

// WithCode records an HTTP status code.
func (e *LinkError) WithCode(code int) *LinkError {
	e.Code = code
	return e
}

// WithSuggestion adds a custom suggestion to the error
func (e *LinkError) WithSuggestion(suggestion string) *LinkError {
	e.Suggestion = suggestion
	return e
}

// WithURL adds URL context to the error (will be redacted in logs)
func (e *LinkError) WithURL(url string) *LinkError {
	e.URL = url
	return e
}

// WithCause wraps an underlying error.
func (e *LinkError) WithCause(cause error) *LinkError {
	e.Cause = cause
	return e
}

// WithContext adds context information to the error
func (e *LinkError) WithContext(key string, value interface{}) *LinkError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// IsRetryable returns true if the error is retryable
func (e *LinkError) IsRetryable() bool {
	switch e.Type {
	case ErrTransport:
		return e.Code == 0 || e.Code >= 500
	default:
		return false
	}
}

// IsCritical returns true if the error is critical and should stop execution
func (e *LinkError) IsCritical() bool {
	return e.Severity == SeverityCritical
}

// IsType reports whether err is, or wraps, a LinkError of the given type.
func IsType(err error, errorType ErrorType) bool {
	var linkErr *LinkError
	if errors.As(err, &linkErr) {
		return linkErr.Type == errorType
	}
	return false
}

// IsCancelled reports whether err represents a cooperative cancellation.
func IsCancelled(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	return IsType(err, ErrCancelled)
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field      string                 `json:"field"`
	Message    string                 `json:"message"`
	Value      interface{}            `json:"value,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	parts := []string{fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("Suggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, " - ")
}

// DetailedError returns a detailed validation error message
func (e *ValidationError) DetailedError() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Validation Error for field '%s'", e.Field))
	parts = append(parts, fmt.Sprintf("Message: %s", e.Message))

	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("Provided value: %v", e.Value))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("Context: %s", strings.Join(contextParts, ", ")))
	}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("\nSuggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, "\n")
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// NewValidationErrorWithValue creates a ValidationError with the invalid value
func NewValidationErrorWithValue(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
		Context: make(map[string]interface{}),
	}
}

// WithSuggestion adds a suggestion to the validation error
func (e *ValidationError) WithSuggestion(suggestion string) *ValidationError {
	e.Suggestion = suggestion
	return e
}

// WithContext adds context to the validation error
func (e *ValidationError) WithContext(key string, value interface{}) *ValidationError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func getDefaultSuggestion(errorType ErrorType) string {
	switch errorType {
	case ErrInvalidURL:
		return "Provide an absolute http(s) share URL"
	case ErrProtocolMismatch:
		return "The provider page layout changed; the resolver needs updating"
	case ErrRemoteRejected:
		return "Check the share password and that the share still exists"
	case ErrTransport:
		return "Check your network connection or proxy settings and try again"
	case ErrMalformedToken:
		return "The anti-bot challenge format changed; the solver tables need updating"
	case ErrFileSystem:
		return "Check permissions and free space in the output directory"
	default:
		return ""
	}
}

func getDefaultSeverity(errorType ErrorType) ErrorSeverity {
	switch errorType {
	case ErrCancelled:
		return SeverityInfo
	case ErrTransport:
		return SeverityWarning
	case ErrFileSystem:
		return SeverityCritical
	default:
		return SeverityError
	}
}

// redactSensitiveURL redacts sensitive information from URLs
func redactSensitiveURL(url string) string {
	if i := strings.IndexAny(url, "?&"); i >= 0 {
		return url[:i+1] + "[REDACTED]"
	}
	return url
}

// Common error constructors for frequently used errors

// NewInvalidURLError creates an error for unusable input URLs
func NewInvalidURLError(url string, reason string) *LinkError {
	return NewLinkError(ErrInvalidURL, fmt.Sprintf("invalid URL: %s", reason)).
		WithURL(url)
}

// NewProtocolMismatchError reports that a page no longer has the expected shape.
func NewProtocolMismatchError(step, detail string) *LinkError {
	return NewLinkError(ErrProtocolMismatch, detail).WithStep(step)
}

// NewRemoteRejectedError wraps a provider's own rejection message.
func NewRemoteRejectedError(provider, message string) *LinkError {
	return NewLinkError(ErrRemoteRejected, message).WithContext("provider", provider)
}

// NewTransportError creates an error for network or HTTP status failures.
func NewTransportError(url string, cause error) *LinkError {
	return NewLinkError(ErrTransport, "request failed").WithURL(url).WithCause(cause)
}

// NewHTTPStatusError creates a transport error for an unexpected status code.
func NewHTTPStatusError(url string, code int) *LinkError {
	return NewLinkError(ErrTransport, fmt.Sprintf("unexpected HTTP status %d", code)).
		WithURL(url).
		WithCode(code)
}

// NewMalformedTokenError reports a challenge token the solver cannot transform.
func NewMalformedTokenError(reason string) *LinkError {
	return NewLinkError(ErrMalformedToken, reason).WithStep("challenge")
}

// NewFileSystemError wraps a local file operation failure.
func NewFileSystemError(path string, cause error) *LinkError {
	return NewLinkError(ErrFileSystem, "file operation failed").
		WithContext("path", path).
		WithCause(cause)
}

// NewCancelledError marks a cooperative cancellation.
func NewCancelledError(operation string) *LinkError {
	return NewLinkError(ErrCancelled, fmt.Sprintf("%s cancelled", operation)).
		WithCause(context.Canceled)
}
