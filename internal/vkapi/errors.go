package vkapi

import (
	"errors"
	"fmt"
)

// CodeTooManyRequests is the API error code asking the caller to slow down
// and resubmit.
const CodeTooManyRequests = 6

// ErrRateLimited matches (via errors.Is) any *APIError carrying
// CodeTooManyRequests.
var ErrRateLimited = errors.New("vkapi: too many requests per second")

// APIError is an error payload returned by the API.
type APIError struct {
	Code int
	Msg  string
}

// Error returns the API-supplied message verbatim.
func (e *APIError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("api error %d", e.Code)
	}
	return e.Msg
}

func (e *APIError) Is(target error) bool {
	return target == ErrRateLimited && e.Code == CodeTooManyRequests
}

// IsRateLimited reports whether err asks for a slowed-down resubmit.
func IsRateLimited(err error) bool { return errors.Is(err, ErrRateLimited) }

// TransportError is a network or decoding failure: the request either never
// produced a response or the response was not an API reply.
type TransportError struct {
	Op     string // "request", "read", "decode", "status"
	Status int    // HTTP status when known
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transport %s (http %d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
