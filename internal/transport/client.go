package transport

import (
	"net/http"
	"sort"
)

// Client 发送 HTTP 请求的最小接口，*http.Client 天然满足。
type Client interface {
	Do(req *http.Request) (*http.Response, error)
}

type Handler func(req *http.Request) (*http.Response, error)

type client struct {
	coreClient   Client
	interceptors []Interceptor
}

// NewClient 创建带拦截器链的客户端。
// 拦截器按 Priority 从小到大排列，数字越小越靠近调用方（越早介入请求）。
// 调试拦截器总是被追加到链的最内层。
func NewClient(cli Client, interceptors ...Interceptor) Client {
	if cli == nil {
		cli = http.DefaultClient
	}

	var is interceptorList = interceptors
	is = append(is, newDebugInterceptor())
	sort.Sort(is)

	// 反转后逐层包裹，使优先级最小的拦截器位于最外层
	for i, j := 0, len(is)-1; i < j; i, j = i+1, j-1 {
		is[i], is[j] = is[j], is[i]
	}

	return &client{
		coreClient:   cli,
		interceptors: is,
	}
}

func (c *client) Do(req *http.Request) (*http.Response, error) {
	handler := func(req *http.Request) (*http.Response, error) {
		return c.coreClient.Do(req)
	}

	for _, interceptor := range c.interceptors {
		h := handler
		i := interceptor
		handler = func(r *http.Request) (*http.Response, error) {
			return i.Intercept(r, h)
		}
	}

	return handler(req)
}

// Do 构造请求并通过客户端发送。不做状态码到错误的转换，
// 响应的分类统一由上层完成。
func Do(c Client, options RequestParams) (*http.Response, error) {
	req, err := NewRequest(options)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}
