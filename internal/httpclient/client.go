package httpclient

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// NewDefaultHTTPClient creates a simple HTTP client with a timeout
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
	}
}

// NewTriggerHTTPClient creates the client used for fire-and-forget stage
// triggers: a long per-call timeout and no redirect following, since trigger
// endpoints answer 202 directly.
func NewTriggerHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// IsTimeout reports whether err is a client-side timeout or cancellation
// rather than a definite transport failure. Trigger callers interpret these
// as "the stage is still running server-side".
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
