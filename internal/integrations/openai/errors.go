package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Category classifies a failed completion call.
type Category string

const (
	CategoryRateLimited    Category = "RateLimited"
	CategoryAuthFailed     Category = "AuthFailed"
	CategoryInvalidRequest Category = "InvalidRequest"
	CategoryUnavailable    Category = "Unavailable"
	CategoryTimeout        Category = "Timeout"
	CategoryUnknown        Category = "Unknown"
)

// UpstreamError is the single error type returned for failed completion calls.
// StatusCode is zero when no HTTP response was received.
type UpstreamError struct {
	Category   Category
	StatusCode int
	URL        string
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("openai: %s: unexpected status %d from %s: %s", e.Category, e.StatusCode, e.URL, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("openai: %s: %v", e.Category, e.Err)
	default:
		return fmt.Sprintf("openai: %s", e.Category)
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func (e *UpstreamError) ErrorCategory() string {
	return string(e.Category)
}

func (e *UpstreamError) HTTPStatusCode() int {
	return e.StatusCode
}

func categoryForStatus(status int) Category {
	switch {
	case status == http.StatusTooManyRequests:
		return CategoryRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CategoryAuthFailed
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return CategoryTimeout
	case status >= 500:
		return CategoryUnavailable
	case status >= 400:
		return CategoryInvalidRequest
	default:
		return CategoryUnknown
	}
}

func categoryForTransport(err error) Category {
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout
	}
	if errors.Is(err, context.Canceled) {
		return CategoryUnknown
	}
	return CategoryUnavailable
}
