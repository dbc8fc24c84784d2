package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrCircuitOpen is returned without contacting the backend while the
// circuit breaker is open.
var ErrCircuitOpen = errors.New("backend circuit breaker open")

// APIError is a non-2xx response from the ranking backend.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend returned %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the request may succeed when repeated.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// errorBody matches both the backend's flat error body and the nested
// {"error":{"code","message"}} envelope.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
