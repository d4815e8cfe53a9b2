package generation

import (
	"fmt"
	"net/http"
)

// Kind classifies an upstream generation failure
type Kind string

const (
	KindRateLimited    Kind = "RATE_LIMITED"
	KindUnavailable    Kind = "UNAVAILABLE"
	KindInvalidRequest Kind = "INVALID_REQUEST"
	KindUnauthorized   Kind = "UNAUTHORIZED"
	KindUnknown        Kind = "UNKNOWN"
)

// Error is a classified upstream failure. RequestID ties it back to the log
// lines of the attempt that produced it.
type Error struct {
	Kind       Kind
	Message    string
	HTTPStatus int
	RequestID  string
}

func (e *Error) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("generation failed (%s, HTTP %d): %s", e.Kind, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("generation failed (%s): %s", e.Kind, e.Message)
}

// Retryable reports whether another attempt may succeed
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindUnavailable
}

// KindFromStatus maps an upstream HTTP status to a failure kind
func KindFromStatus(status int) Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthorized
	case status >= 400 && status < 500:
		return KindInvalidRequest
	case status >= 500:
		return KindUnavailable
	default:
		return KindUnknown
	}
}
