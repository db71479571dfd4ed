package apiclient

import (
	"errors"
	"net/http"
	"strings"
)

// Error is returned for every failed API call. Message is the API's
// {"error": ...} text when present, otherwise the operation's fallback.
// StatusCode is 0 when the request never got a response.
type Error struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsUnauthorized reports a 401 from the API.
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

// IsNotFound reports a 404 from the API.
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

// IsDuplicateKey detects the unique-index violation the API passes through
// on signup (E11000 from the document store).
func IsDuplicateKey(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "e11000") || strings.Contains(msg, "duplicate key")
}

// countsAsFailure decides what trips the circuit breaker: transport errors
// and 5xx responses. 4xx responses are the caller's problem.
func countsAsFailure(err error) bool {
	status := StatusOf(err)
	return status == 0 || status >= http.StatusInternalServerError
}
