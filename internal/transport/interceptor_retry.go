package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/sandchest/sandchest-go/backoff"
	"github.com/sandchest/sandchest-go/retrier"
)

// DefaultRetryMax 默认最大重试次数。
const DefaultRetryMax = 3

// MaxRateLimitWait 429 退避等待时长上限。
const MaxRateLimitWait = 60 * time.Second

// DefaultRateLimitWait 429 响应未携带 retry_after 时的默认等待时长。
const DefaultRateLimitWait = time.Second

type RetryConfig struct {
	RetryMax int             // 最大重试次数
	Backoff  backoff.Backoff // 重试等待策略
	Retrier  retrier.Retrier // 重试决策
}

func (c *RetryConfig) init() {
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.Backoff == nil {
		c.Backoff = backoff.NewRetryBackoff()
	}
	if c.Retrier == nil {
		c.Retrier = retrier.NewErrorRetrier()
	}
}

type retryInterceptor struct {
	config RetryConfig
}

// NewRetryInterceptor 创建重试拦截器。
// 429 按服务端给出的 retry_after 等待（上限 MaxRateLimitWait），
// 5xx 和传输层错误按退避策略等待；其余失败不重试。
// 重试耗尽后返回最后一次观察到的响应或错误。
func NewRetryInterceptor(config RetryConfig) Interceptor {
	return &retryInterceptor{config: config}
}

func (r *retryInterceptor) Priority() InterceptorPriority {
	return InterceptorPriorityRetry
}

func (r *retryInterceptor) Intercept(req *http.Request, handler Handler) (resp *http.Response, err error) {
	config := r.config
	config.init()

	if config.RetryMax == 0 {
		return handler(req)
	}

	for attempt := 0; ; attempt++ {
		// Clone 防止后面 Handler 处理对 req 有污染
		reqBefore := req.Clone(req.Context())
		resp, err = handler(req)

		if attempt >= config.RetryMax {
			return resp, err
		}
		if config.Retrier.Retry(resp, err, &retrier.RetrierOptions{Attempts: attempt}) != retrier.RetryRequest {
			return resp, err
		}
		if req.Context().Err() != nil {
			return resp, err
		}

		wait := r.waitDuration(req.Context(), resp, attempt)
		if resp != nil && resp.Body != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		select {
		case <-req.Context().Done():
			return resp, err
		case <-time.After(wait):
		}

		req = reqBefore
		if req.GetBody != nil {
			if body, bErr := req.GetBody(); bErr == nil {
				req.Body = body
			}
		}
	}
}

// waitDuration 计算下一次尝试前的等待时长。
func (r *retryInterceptor) waitDuration(ctx context.Context, resp *http.Response, attempt int) time.Duration {
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		if wait, ok := retryAfterFromResponse(resp); ok {
			if wait > MaxRateLimitWait {
				wait = MaxRateLimitWait
			}
			return wait
		}
		return DefaultRateLimitWait
	}

	config := r.config
	config.init()
	return config.Backoff.Time(ctx, &backoff.BackoffOptions{Attempts: attempt})
}

// retryAfterFromResponse 从 429 响应体解析 retry_after（秒）。
// 响应体读取后会被复原，供上层的错误解析复用。
func retryAfterFromResponse(resp *http.Response) (time.Duration, bool) {
	if resp.Body == nil {
		return 0, false
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return 0, false
	}

	var parsed struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if json.Unmarshal(raw, &parsed) != nil || parsed.RetryAfter <= 0 {
		return 0, false
	}
	return time.Duration(parsed.RetryAfter * float64(time.Second)), true
}
