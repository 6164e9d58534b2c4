package odooapi

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unauthorized", &APIError{StatusCode: 401}, MsgAuthFailed},
		{"forbidden", &APIError{StatusCode: 403}, MsgPermissionDenied},
		{"not found", &APIError{StatusCode: 404}, MsgEndpointNotFound},
		{"server error", &APIError{StatusCode: 500}, MsgServerError},
		{"other status with message", &APIError{StatusCode: 422, Message: "bad partner_id"},
			"sync failed: bad partner_id"},
		{"other status without message", &APIError{StatusCode: 503},
			"sync failed: server returned status 503"},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "erp.example.com"},
			MsgNetworkError},
		{"deadline", context.DeadlineExceeded, MsgTimeout},
		{"net timeout", timeoutErr{}, MsgTimeout},
		{"generic", errors.New("boom"), "sync failed: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassifyWrapped(t *testing.T) {
	err := errors.Join(errors.New("failed to call /customer"), &APIError{StatusCode: 401})
	require.Equal(t, MsgAuthFailed, Classify(err))
}

func TestTransient(t *testing.T) {
	require.True(t, Transient(&APIError{StatusCode: 500}))
	require.True(t, Transient(&APIError{StatusCode: 503}))
	require.False(t, Transient(&APIError{StatusCode: 400}))
	require.False(t, Transient(&APIError{StatusCode: 401}))
	require.True(t, Transient(errors.New("connection refused")))
	require.True(t, Transient(timeoutErr{}))
}
