package retrier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"testing"
)

func TestErrorRetrierStatusCodes(t *testing.T) {
	r := NewErrorRetrier()
	cases := []struct {
		statusCode int
		want       RetryDecision
	}{
		{http.StatusOK, DontRetry},
		{http.StatusBadRequest, DontRetry},
		{http.StatusNotFound, DontRetry},
		{http.StatusConflict, DontRetry},
		{http.StatusTooManyRequests, RetryRequest},
		{http.StatusInternalServerError, RetryRequest},
		{http.StatusBadGateway, RetryRequest},
		{http.StatusServiceUnavailable, RetryRequest},
	}
	for _, c := range cases {
		resp := &http.Response{StatusCode: c.statusCode}
		if got := r.Retry(resp, nil, &RetrierOptions{}); got != c.want {
			t.Fatalf("status %d: expected %v, got %v", c.statusCode, c.want, got)
		}
	}
}

func TestErrorRetrierTransportErrors(t *testing.T) {
	r := NewErrorRetrier()
	cases := []struct {
		name string
		err  error
		want RetryDecision
	}{
		{"canceled", context.Canceled, DontRetry},
		{"deadline", context.DeadlineExceeded, RetryRequest},
		{"wrapped canceled", &url.Error{Op: "Get", URL: "https://api", Err: context.Canceled}, DontRetry},
		{"wrapped deadline", &url.Error{Op: "Get", URL: "https://api", Err: context.DeadlineExceeded}, RetryRequest},
		{"dns", &net.DNSError{Err: "no such host", Name: "api.sandchest.com"}, RetryRequest},
		{"refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, RetryRequest},
		{"reset", &net.OpError{Op: "read", Err: syscall.ECONNRESET}, RetryRequest},
		{"pipe", &net.OpError{Op: "write", Err: syscall.EPIPE}, RetryRequest},
		{"permission", &net.OpError{Op: "dial", Err: syscall.EACCES}, DontRetry},
		{"closed connection", errors.New("use of closed network connection"), RetryRequest},
		{"idle connection", fmt.Errorf("http: server closed idle connection"), RetryRequest},
		{"generic", errors.New("something else"), DontRetry},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := r.Retry(nil, c.err, &RetrierOptions{}); got != c.want {
				t.Fatalf("expected %v, got %v", c.want, got)
			}
		})
	}
}

func TestNeverRetrier(t *testing.T) {
	r := NewNeverRetrier()
	resp := &http.Response{StatusCode: http.StatusInternalServerError}
	if got := r.Retry(resp, nil, &RetrierOptions{}); got != DontRetry {
		t.Fatalf("expected DontRetry, got %v", got)
	}
}

func TestCustomizedRetrier(t *testing.T) {
	r := NewRetrier(func(_ *http.Response, _ error, opts *RetrierOptions) RetryDecision {
		if opts.Attempts < 2 {
			return RetryRequest
		}
		return DontRetry
	})
	if got := r.Retry(nil, errors.New("boom"), &RetrierOptions{Attempts: 0}); got != RetryRequest {
		t.Fatalf("expected RetryRequest, got %v", got)
	}
	if got := r.Retry(nil, errors.New("boom"), &RetrierOptions{Attempts: 2}); got != DontRetry {
		t.Fatalf("expected DontRetry, got %v", got)
	}
}
