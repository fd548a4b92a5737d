package retrier

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"

	"github.com/sandchest/sandchest-go/backoff"
)

type (
	// RetryDecision 重试决策
	RetryDecision int

	// RetrierOptions 重试器选项
	RetrierOptions backoff.BackoffOptions

	// Retrier 重试器接口
	Retrier interface {
		// Retry 判断一次请求的结果是否需要重试
		Retry(*http.Response, error, *RetrierOptions) RetryDecision
	}

	neverRetrier      struct{}
	errorRetrier      struct{}
	customizedRetrier struct {
		retryFn func(*http.Response, error, *RetrierOptions) RetryDecision
	}
)

const (
	// DontRetry 不再重试
	DontRetry RetryDecision = iota

	// RetryRequest 重试请求
	RetryRequest
)

// NewRetrier 创建自定义重试器
func NewRetrier(fn func(*http.Response, error, *RetrierOptions) RetryDecision) Retrier {
	return customizedRetrier{retryFn: fn}
}

func (retrier customizedRetrier) Retry(response *http.Response, err error, options *RetrierOptions) RetryDecision {
	return retrier.retryFn(response, err, options)
}

// NewNeverRetrier 创建从不重试的重试器
func NewNeverRetrier() Retrier {
	return neverRetrier{}
}

func (neverRetrier) Retry(*http.Response, error, *RetrierOptions) RetryDecision {
	return DontRetry
}

// NewErrorRetrier 创建默认的错误重试器。
// 重试 429 与 5xx 响应，以及超时和连接层面的传输错误；
// 其余 4xx 响应与调用方主动取消不重试。
func NewErrorRetrier() Retrier {
	return errorRetrier{}
}

func (errorRetrier) Retry(response *http.Response, err error, _ *RetrierOptions) RetryDecision {
	if err != nil {
		return retryDecisionForError(err)
	}
	if isResponseRetryable(response) {
		return RetryRequest
	}
	return DontRetry
}

func isResponseRetryable(resp *http.Response) bool {
	if resp == nil {
		return false
	}
	return IsStatusCodeRetryable(resp.StatusCode)
}

// IsStatusCodeRetryable 判断响应状态码是否可以重试。
func IsStatusCodeRetryable(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}

// IsErrorRetryable 判断传输错误是否可以重试。
func IsErrorRetryable(err error) bool {
	return retryDecisionForError(err) == RetryRequest
}

func retryDecisionForError(err error) RetryDecision {
	if err == nil {
		return DontRetry
	}

	unwrapped := unwrapUnderlyingError(err)
	if unwrapped == context.Canceled {
		// 调用方主动取消
		return DontRetry
	}
	if unwrapped == context.DeadlineExceeded || os.IsTimeout(unwrapped) {
		return RetryRequest
	}
	var dnsError *net.DNSError
	if errors.As(unwrapped, &dnsError) {
		return RetryRequest
	}
	var errno syscall.Errno
	if errors.As(unwrapped, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNABORTED, syscall.ECONNRESET,
			syscall.EHOSTUNREACH, syscall.ENETUNREACH, syscall.EPIPE:
			return RetryRequest
		default:
			return DontRetry
		}
	}

	desc := unwrapped.Error()
	if strings.Contains(desc, "use of closed network connection") ||
		strings.Contains(desc, "unexpected EOF reading trailer") ||
		strings.Contains(desc, "transport connection broken") ||
		strings.Contains(desc, "server closed idle connection") {
		return RetryRequest
	}
	return DontRetry
}

func tryToUnwrapUnderlyingError(err error) (error, bool) {
	switch err := err.(type) {
	case *os.PathError:
		return err.Err, true
	case *os.SyscallError:
		return err.Err, true
	case *url.Error:
		return err.Err, true
	case *net.OpError:
		return err.Err, true
	}
	return err, false
}

func unwrapUnderlyingError(err error) error {
	ok := true
	for ok {
		err, ok = tryToUnwrapUnderlyingError(err)
	}
	return err
}
