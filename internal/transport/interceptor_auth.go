package transport

import (
	"net/http"
)

type authInterceptor struct {
	apiKey string
}

// NewAuthInterceptor 创建 Bearer 认证拦截器，为每个请求注入
// Authorization 请求头。
func NewAuthInterceptor(apiKey string) Interceptor {
	return &authInterceptor{apiKey: apiKey}
}

func (interceptor *authInterceptor) Priority() InterceptorPriority {
	return InterceptorPriorityAuth
}

func (interceptor *authInterceptor) Intercept(req *http.Request, handler Handler) (*http.Response, error) {
	if interceptor == nil || req == nil {
		return handler(req)
	}
	if interceptor.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+interceptor.apiKey)
	}
	return handler(req)
}
