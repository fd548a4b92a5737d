package sandchest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrorCode SDK 错误码，与服务端错误响应的 error 字段对应。
type ErrorCode string

const (
	ErrCodeBadRequest         ErrorCode = "bad_request"
	ErrCodeUnauthorized       ErrorCode = "unauthorized"
	ErrCodeForbidden          ErrorCode = "forbidden"
	ErrCodeNotFound           ErrorCode = "not_found"
	ErrCodeConflict           ErrorCode = "conflict"
	ErrCodeRateLimited        ErrorCode = "rate_limited"
	ErrCodeSandboxNotRunning  ErrorCode = "sandbox_not_running"
	ErrCodeValidation         ErrorCode = "validation_error"
	ErrCodeInternal           ErrorCode = "internal_error"
	ErrCodeServiceUnavailable ErrorCode = "service_unavailable"
	ErrCodeTimeout            ErrorCode = "timeout"
	ErrCodeConnection         ErrorCode = "connection_error"
)

// Error 表示 SDK 的类型化错误。
// 所有传输和协议层面的失败在请求引擎边界被一次性归类到该类型。
type Error struct {
	// Code 错误码
	Code ErrorCode
	// Message 人类可读的错误描述
	Message string
	// Status HTTP 状态码等价值，非 HTTP 失败为 0
	Status int
	// RequestID 请求关联标识，未发出请求时为空
	RequestID string

	// RetryAfter 服务端建议的重试等待时长，仅 rate_limited 携带
	RetryAfter time.Duration
	// TimeoutMs 超时时长（毫秒），仅 timeout 携带
	TimeoutMs int64
	// Cause 底层错误，仅 connection_error 携带
	Cause error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("sandchest: %s (status %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("sandchest: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// AsError 提取错误链中的 *Error。
func AsError(err error) (*Error, bool) {
	var sdkErr *Error
	if errors.As(err, &sdkErr) {
		return sdkErr, true
	}
	return nil, false
}

func hasCode(err error, code ErrorCode) bool {
	if sdkErr, ok := AsError(err); ok {
		return sdkErr.Code == code
	}
	return false
}

// IsNotFound 判断错误是否为"资源不存在"。
func IsNotFound(err error) bool { return hasCode(err, ErrCodeNotFound) }

// IsUnauthorized 判断错误是否为认证失败。
func IsUnauthorized(err error) bool { return hasCode(err, ErrCodeUnauthorized) }

// IsSandboxNotRunning 判断错误是否为"沙箱不在所需状态"。
func IsSandboxNotRunning(err error) bool { return hasCode(err, ErrCodeSandboxNotRunning) }

// IsRateLimited 判断错误是否为限流。
func IsRateLimited(err error) bool { return hasCode(err, ErrCodeRateLimited) }

// IsTimeout 判断错误是否为请求超时。
func IsTimeout(err error) bool { return hasCode(err, ErrCodeTimeout) }

// IsConnectionError 判断错误是否为网络连接失败。
func IsConnectionError(err error) bool { return hasCode(err, ErrCodeConnection) }

func newTimeoutError(message string, timeoutMs int64) *Error {
	return &Error{
		Code:      ErrCodeTimeout,
		Message:   message,
		TimeoutMs: timeoutMs,
	}
}

func newConnectionError(message string, cause error) *Error {
	if message == "" {
		message = "network request failed"
	}
	return &Error{
		Code:    ErrCodeConnection,
		Message: message,
		Cause:   cause,
	}
}

// errorBody 服务端错误响应体。
type errorBody struct {
	Error      string  `json:"error"`
	Message    string  `json:"message"`
	RequestID  string  `json:"request_id"`
	RetryAfter float64 `json:"retry_after"`
}

// errorFromResponse 将非 2xx 响应映射为类型化错误。
// 响应体解析失败时退化为状态码派生的消息，
// request_id 从响应头 X-Request-Id 兜底。
func errorFromResponse(resp *http.Response) *Error {
	var parsed errorBody
	var bodyOK bool
	if resp.Body != nil {
		if raw, err := io.ReadAll(resp.Body); err == nil {
			bodyOK = json.Unmarshal(raw, &parsed) == nil
		}
	}

	message := parsed.Message
	if !bodyOK || message == "" {
		message = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	requestID := parsed.RequestID
	if requestID == "" {
		requestID = resp.Header.Get("X-Request-Id")
	}

	e := &Error{
		Message:   message,
		Status:    resp.StatusCode,
		RequestID: requestID,
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		e.Code = ErrCodeValidation
	case http.StatusUnauthorized:
		e.Code = ErrCodeUnauthorized
	case http.StatusForbidden:
		e.Code = ErrCodeForbidden
	case http.StatusNotFound:
		e.Code = ErrCodeNotFound
	case http.StatusConflict:
		e.Code = ErrCodeSandboxNotRunning
	case http.StatusTooManyRequests:
		e.Code = ErrCodeRateLimited
		retryAfter := parsed.RetryAfter
		if retryAfter <= 0 {
			retryAfter = 1
		}
		e.RetryAfter = time.Duration(retryAfter * float64(time.Second))
	case http.StatusServiceUnavailable:
		e.Code = ErrCodeServiceUnavailable
	default:
		if bodyOK && parsed.Error != "" {
			e.Code = ErrorCode(parsed.Error)
		} else if resp.StatusCode >= 500 {
			e.Code = ErrCodeInternal
		} else {
			e.Code = ErrCodeBadRequest
		}
	}
	return e
}
