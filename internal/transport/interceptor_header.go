package transport

import (
	"net/http"
)

type headerInterceptor struct {
	userAgent string
}

// NewHeaderInterceptor 创建默认请求头拦截器，设置 User-Agent，
// 并在未指定时补充 Accept: application/json。
func NewHeaderInterceptor(userAgent string) Interceptor {
	return &headerInterceptor{userAgent: userAgent}
}

func (interceptor *headerInterceptor) Priority() InterceptorPriority {
	return InterceptorPrioritySetHeader
}

func (interceptor *headerInterceptor) Intercept(req *http.Request, handler Handler) (*http.Response, error) {
	if req != nil {
		if interceptor.userAgent != "" {
			req.Header.Set("User-Agent", interceptor.userAgent)
		}
		if req.Header.Get("Accept") == "" {
			req.Header.Set("Accept", contentTypeJSON)
		}
	}
	return handler(req)
}
