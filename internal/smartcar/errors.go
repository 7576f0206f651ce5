package smartcar

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies Smartcar API failures for the caller.
type ErrorKind string

const (
	// KindUnauthorized means the access token was rejected.
	KindUnauthorized ErrorKind = "unauthorized"
	// KindNotFound means the vehicle does not exist or access was revoked.
	KindNotFound ErrorKind = "not_found"
	// KindTransient covers network failures, timeouts, rate limits and 5xx.
	KindTransient ErrorKind = "transient"
	// KindUnsupported means the vehicle lacks the requested capability.
	KindUnsupported ErrorKind = "unsupported"
)

// APIError is a classified Smartcar API failure.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("smartcar: %s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("smartcar: %s: %s", e.Kind, e.Message)
}

// KindOf extracts the ErrorKind from an error chain. Unknown errors are
// treated as transient so callers retry rather than disconnect vehicles.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindTransient
}

// classifyStatus maps an HTTP response status to an ErrorKind.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusNotImplemented || status == http.StatusConflict:
		return KindUnsupported
	default:
		return KindTransient
	}
}
