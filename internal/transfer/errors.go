// Package transfer provides an HTTP client for the Globus Transfer REST API
// with automatic retry, error classification, and typed wrappers for the
// endpoint, filesystem-operation, task, and access-rule resources.
package transfer

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for Transfer API failures.
// Use errors.Is(err, transfer.ErrNotFound) to check.
var (
	ErrBadRequest       = errors.New("transfer: bad request")
	ErrUnauthorized     = errors.New("transfer: unauthorized")
	ErrPermissionDenied = errors.New("transfer: permission denied")
	ErrNotFound         = errors.New("transfer: not found")
	ErrExists           = errors.New("transfer: already exists")
	ErrConflict         = errors.New("transfer: conflict")
	ErrThrottled        = errors.New("transfer: throttled")
	ErrServerError      = errors.New("transfer: server error")
)

// Vendor error codes the workflows branch on.
const (
	CodeNotFound         = "ClientError.NotFound"
	CodeExists           = "Exists"
	CodePermissionDenied = "PermissionDenied"
)

// APIError is a non-2xx Transfer API response. Code is the vendor error code
// from the JSON body (e.g. "ClientError.NotFound"); Err is the sentinel it
// classifies to, for errors.Is().
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
	Resource   string
	Err        error
}

func (e *APIError) Error() string {
	code := e.Code
	if code == "" {
		code = http.StatusText(e.StatusCode)
	}

	if e.RequestID != "" {
		return fmt.Sprintf("transfer: HTTP %d %s (request-id: %s): %s", e.StatusCode, code, e.RequestID, e.Message)
	}

	return fmt.Sprintf("transfer: HTTP %d %s: %s", e.StatusCode, code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsCode reports whether err is an *APIError carrying the given vendor code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	return apiErr.Code == code
}

// classify maps a vendor error code and HTTP status to a sentinel error.
// The code wins when it is specific; the status is the fallback.
func classify(code string, status int) error {
	switch {
	case strings.HasSuffix(code, "NotFound"):
		return ErrNotFound
	case strings.HasPrefix(code, CodePermissionDenied):
		return ErrPermissionDenied
	case code == CodeExists:
		return ErrExists
	}

	switch status {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrPermissionDenied
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if status >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
