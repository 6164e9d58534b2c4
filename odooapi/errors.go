package odooapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// User-facing fault categories. Sync and create flows surface these verbatim
// so screens can show a stable message per failure class.
const (
	MsgAuthFailed       = "authentication failed - check your API key"
	MsgPermissionDenied = "permission denied"
	MsgEndpointNotFound = "server endpoint not found - check server configuration"
	MsgServerError      = "server error - try again later"
	MsgNetworkError     = "network error - check your connection"
	MsgTimeout          = "request timed out"
)

// APIError is a non-success HTTP outcome from the Odoo endpoint, carrying the
// server-provided error message when one was decodable.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

// Classify converts any fault from a remote call into the user-facing message
// the result stream carries. HTTP statuses map to fixed categories; transport
// faults are split into host-resolution and timeout classes.
func Classify(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized:
			return MsgAuthFailed
		case http.StatusForbidden:
			return MsgPermissionDenied
		case http.StatusNotFound:
			return MsgEndpointNotFound
		case http.StatusInternalServerError:
			return MsgServerError
		default:
			if apiErr.Message != "" {
				return "sync failed: " + apiErr.Message
			}
			return fmt.Sprintf("sync failed: server returned status %d", apiErr.StatusCode)
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return MsgNetworkError
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return MsgTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return MsgTimeout
	}
	return "sync failed: " + err.Error()
}

// Transient reports whether a fault is worth replaying through the retry
// queue: server errors and transport faults are; client-side 4xx are not.
func Transient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}
