package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
)

type timeoutInterceptor struct{}

// NewTimeoutInterceptor 创建单次尝试超时拦截器。
// 每次经过该拦截器的请求都会获得一个独立的超时窗口（重试时窗口重新计算）。
// 对要求缓冲响应的请求，响应体会在窗口内被完整读入内存；
// 流式请求的超时在响应体关闭时解除。
func NewTimeoutInterceptor() Interceptor {
	return timeoutInterceptor{}
}

func (timeoutInterceptor) Priority() InterceptorPriority {
	return InterceptorPriorityTimeout
}

func (timeoutInterceptor) Intercept(req *http.Request, handler Handler) (*http.Response, error) {
	ctx := req.Context()
	timeout := attemptTimeoutFromContext(ctx)
	if timeout <= 0 {
		resp, err := handler(req)
		if err == nil && isBufferResponse(ctx) {
			if bErr := bufferResponse(resp); bErr != nil {
				return nil, bErr
			}
		}
		return resp, err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	resp, err := handler(req.WithContext(attemptCtx))
	if err != nil {
		cancel()
		return resp, err
	}

	if isBufferResponse(ctx) {
		bErr := bufferResponse(resp)
		cancel()
		if bErr != nil {
			return nil, bErr
		}
		return resp, nil
	}

	// 流式响应在 Body 关闭前不能取消 context
	resp.Body = &cancelOnCloseBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func bufferResponse(resp *http.Response) error {
	buf, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return err
	}
	resp.Body = io.NopCloser(bytes.NewReader(buf))
	resp.ContentLength = int64(len(buf))
	return nil
}

type cancelOnCloseBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnCloseBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
