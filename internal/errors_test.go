package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestLinkError_Error(t *testing.T) {
	err := NewProtocolMismatchError("ajax-data", "data block not found")

	result := err.Error()

	if result != "ProtocolMismatch at ajax-data: data block not found" {
		t.Errorf("Error() = %q", result)
	}
}

func TestLinkError_ErrorWithCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewTransportError("https://www.lanzoux.com/", cause)

	result := err.Error()
	if !strings.Contains(result, "Transport") {
		t.Error("Error message should contain error type")
	}
	if !strings.Contains(result, "connection reset") {
		t.Error("Error message should contain the cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should see the wrapped cause")
	}
}

func TestLinkError_DetailedError(t *testing.T) {
	err := NewHTTPStatusError("https://www.lanzoux.com/ajaxm.php?file=1&pwd=1234", 502).
		WithStep("submit").
		WithContext("attempts", 3)

	result := err.DetailedError()

	checks := []string{
		"WARNING",
		"Transport Error",
		"Code: 502",
		"Step: submit",
		"unexpected HTTP status 502",
		"attempts=3",
		"Suggestion:",
		"www.lanzoux.com/ajaxm.php?[REDACTED]",
	}
	for _, want := range checks {
		if !strings.Contains(result, want) {
			t.Errorf("DetailedError() should contain %q, got:\n%s", want, result)
		}
	}
	if strings.Contains(result, "1234") {
		t.Error("DetailedError() should not leak the share password")
	}
}

func TestLinkError_IsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       *LinkError
		retryable bool
	}{
		{"network_failure", NewTransportError("https://a", errors.New("eof")), true},
		{"server_error", NewHTTPStatusError("https://a", 503), true},
		{"client_error", NewHTTPStatusError("https://a", 404), false},
		{"invalid_url", NewInvalidURLError("ftp://a", "scheme"), false},
		{"remote_rejected", NewRemoteRejectedError("lanzou", "密码不正确"), false},
		{"protocol_mismatch", NewProtocolMismatchError("ajax-url", "missing"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := tt.err.IsRetryable(); result != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", result, tt.retryable)
			}
		})
	}
}

func TestLinkError_IsCritical(t *testing.T) {
	if !NewFileSystemError("/out/file.bin", errors.New("read-only")).IsCritical() {
		t.Error("File system errors should be critical")
	}
	if NewTransportError("https://a", nil).IsCritical() {
		t.Error("Transport errors should not be critical")
	}
}

func TestIsType(t *testing.T) {
	wrapped := fmt.Errorf("resolve: %w", NewRemoteRejectedError("lanzou", "文件取消分享了"))

	if !IsType(wrapped, ErrRemoteRejected) {
		t.Error("IsType should see through wrapping")
	}
	if IsType(wrapped, ErrTransport) {
		t.Error("IsType should not match a different type")
	}
	if IsType(errors.New("plain"), ErrTransport) {
		t.Error("IsType should be false for non-LinkError values")
	}
}

func TestIsCancelled(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		cancelled bool
	}{
		{"nil", nil, false},
		{"context_canceled", context.Canceled, true},
		{"wrapped_context_canceled", fmt.Errorf("read: %w", context.Canceled), true},
		{"cancelled_link_error", NewCancelledError("download"), true},
		{"deadline", context.DeadlineExceeded, false},
		{"transport", NewTransportError("https://a", errors.New("eof")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := IsCancelled(tt.err); result != tt.cancelled {
				t.Errorf("IsCancelled() = %v, want %v", result, tt.cancelled)
			}
		})
	}
}

func TestErrorType_String(t *testing.T) {
	tests := []struct {
		errorType ErrorType
		expected  string
	}{
		{ErrInvalidURL, "InvalidURL"},
		{ErrProtocolMismatch, "ProtocolMismatch"},
		{ErrRemoteRejected, "RemoteRejected"},
		{ErrTransport, "Transport"},
		{ErrMalformedToken, "MalformedToken"},
		{ErrFileSystem, "FileSystem"},
		{ErrCancelled, "Cancelled"},
		{ErrorType(99), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if result := tt.errorType.String(); result != tt.expected {
				t.Errorf("ErrorType.String() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestErrorSeverity_String(t *testing.T) {
	tests := []struct {
		severity ErrorSeverity
		expected string
	}{
		{SeverityInfo, "INFO"},
		{SeverityWarning, "WARNING"},
		{SeverityError, "ERROR"},
		{SeverityCritical, "CRITICAL"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if result := tt.severity.String(); result != tt.expected {
				t.Errorf("ErrorSeverity.String() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	err := NewValidationError("url", "invalid format").
		WithSuggestion("Use an https:// share link")

	result := err.Error()

	if !strings.Contains(result, "validation error for url") {
		t.Error("Error should contain field name")
	}
	if !strings.Contains(result, "invalid format") {
		t.Error("Error should contain message")
	}
	if !strings.Contains(result, "Suggestion:") {
		t.Error("Error should contain suggestion")
	}
}

func TestValidationError_DetailedError(t *testing.T) {
	err := NewValidationErrorWithValue("limit-rate", "invalid rate limit format", "5Q").
		WithSuggestion("Use values like 500K or 5M").
		WithContext("units", "K,M,G")

	result := err.DetailedError()

	if !strings.Contains(result, "Validation Error for field 'limit-rate'") {
		t.Error("Detailed error should contain field name")
	}
	if !strings.Contains(result, "Provided value: 5Q") {
		t.Error("Detailed error should contain provided value")
	}
	if !strings.Contains(result, "units=K,M,G") {
		t.Error("Detailed error should contain context")
	}
	if !strings.Contains(result, "Suggestion:") {
		t.Error("Detailed error should contain suggestion")
	}
}

func TestCommonErrorConstructors(t *testing.T) {
	t.Run("NewInvalidURLError", func(t *testing.T) {
		err := NewInvalidURLError("ftp://x", "unsupported scheme")
		if err.Type != ErrInvalidURL {
			t.Error("Should create InvalidURL error type")
		}
		if err.URL != "ftp://x" {
			t.Error("Should keep the offending URL")
		}
		if !strings.Contains(err.Message, "unsupported scheme") {
			t.Error("Should include the reason")
		}
	})

	t.Run("NewRemoteRejectedError", func(t *testing.T) {
		err := NewRemoteRejectedError("lanzou", "密码不正确")
		if err.Type != ErrRemoteRejected {
			t.Error("Should create RemoteRejected error type")
		}
		if err.Message != "密码不正确" {
			t.Errorf("Message should be the provider text verbatim, got %q", err.Message)
		}
		if err.Context["provider"] != "lanzou" {
			t.Error("Should record the provider")
		}
	})

	t.Run("NewMalformedTokenError", func(t *testing.T) {
		err := NewMalformedTokenError("token must be 40 hex characters")
		if err.Type != ErrMalformedToken {
			t.Error("Should create MalformedToken error type")
		}
		if err.Step != "challenge" {
			t.Errorf("Step = %q, want challenge", err.Step)
		}
	})

	t.Run("NewCancelledError", func(t *testing.T) {
		err := NewCancelledError("download")
		if err.Severity != SeverityInfo {
			t.Error("Cancellation should be informational")
		}
		if !errors.Is(err, context.Canceled) {
			t.Error("Should wrap context.Canceled")
		}
	})
}

func TestGetDefaultSuggestion(t *testing.T) {
	tests := []struct {
		errorType ErrorType
		contains  string
	}{
		{ErrInvalidURL, "http(s)"},
		{ErrProtocolMismatch, "layout changed"},
		{ErrRemoteRejected, "password"},
		{ErrTransport, "network"},
		{ErrMalformedToken, "challenge"},
		{ErrFileSystem, "permissions"},
	}

	for _, tt := range tests {
		t.Run(tt.errorType.String(), func(t *testing.T) {
			suggestion := getDefaultSuggestion(tt.errorType)
			if !strings.Contains(strings.ToLower(suggestion), strings.ToLower(tt.contains)) {
				t.Errorf("Suggestion %q should contain %q", suggestion, tt.contains)
			}
		})
	}
}

func TestGetDefaultSeverity(t *testing.T) {
	tests := []struct {
		errorType ErrorType
		severity  ErrorSeverity
	}{
		{ErrCancelled, SeverityInfo},
		{ErrTransport, SeverityWarning},
		{ErrInvalidURL, SeverityError},
		{ErrProtocolMismatch, SeverityError},
		{ErrRemoteRejected, SeverityError},
		{ErrFileSystem, SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.errorType.String(), func(t *testing.T) {
			if severity := getDefaultSeverity(tt.errorType); severity != tt.severity {
				t.Errorf("getDefaultSeverity(%v) = %v, want %v", tt.errorType, severity, tt.severity)
			}
		})
	}
}

func TestRedactSensitiveURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "url_with_query_params",
			input:    "https://wx.mail.qq.com/ftn/download?func=4&key=a&code=b",
			expected: "https://wx.mail.qq.com/ftn/download?[REDACTED]",
		},
		{
			name:     "share_url_with_password_marker",
			input:    "https://www.lanzoux.com/iAbc&pwd=1234",
			expected: "https://www.lanzoux.com/iAbc&[REDACTED]",
		},
		{
			name:     "url_without_query_params",
			input:    "https://www.lanzoux.com/iAbc",
			expected: "https://www.lanzoux.com/iAbc",
		},
		{
			name:     "empty_url",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := redactSensitiveURL(tt.input); result != tt.expected {
				t.Errorf("redactSensitiveURL() = %q, want %q", result, tt.expected)
			}
		})
	}
}
