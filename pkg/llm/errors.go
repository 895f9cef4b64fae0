package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a provider failure by what the caller can do about it.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuth
	KindRateLimit
	KindBadRequest
	KindUnavailable
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate limited"
	case KindBadRequest:
		return "bad request"
	case KindUnavailable:
		return "unavailable"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// KindForStatus maps an HTTP status code returned by a provider API.
func KindForStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusTooManyRequests:
		return KindRateLimit
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return KindTimeout
	case code >= 500:
		return KindUnavailable
	case code >= 400:
		return KindBadRequest
	default:
		return KindUnknown
	}
}

// Error is a classified provider failure. Status is zero when no HTTP
// response was received.
type Error struct {
	Provider string
	Kind     Kind
	Status   int
	Msg      string
	Err      error
}

func (e *Error) Error() string {
	s := e.Provider + ": " + e.Kind.String()
	if e.Status != 0 {
		s += fmt.Sprintf(" (%d)", e.Status)
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Retryable reports whether repeating the call later may succeed.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimit, KindUnavailable, KindTimeout:
		return true
	}
	return false
}
