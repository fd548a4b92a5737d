package sandchest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sandchest/sandchest-go/internal/transport"
)

// httpClient 承载全部 HTTP 调用。
// json 链路带重试与幂等键，供 JSON 接口使用；
// raw 链路不重试，供文件内容与事件流使用。
type httpClient struct {
	baseURL string
	timeout time.Duration
	json    transport.Client
	raw     transport.Client
	core    *http.Client
	closed  atomic.Bool
}

func newHTTPClient(apiKey, baseURL string, timeout time.Duration, retries int, core *http.Client) *httpClient {
	if core == nil {
		core = &http.Client{}
	}
	shared := []transport.Interceptor{
		transport.NewIdempotencyInterceptor(),
		transport.NewTimeoutInterceptor(),
		transport.NewHeaderInterceptor(userAgent()),
		transport.NewAuthInterceptor(apiKey),
	}
	jsonChain := append([]transport.Interceptor{
		transport.NewRetryInterceptor(transport.RetryConfig{RetryMax: retries}),
	}, shared...)
	return &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		json:    transport.NewClient(core, jsonChain...),
		raw:     transport.NewClient(core, shared...),
		core:    core,
	}
}

// requestOptions 单次请求的覆盖项。
type requestOptions struct {
	timeout        time.Duration
	idempotencyKey string
}

func (o *requestOptions) effectiveTimeout(def time.Duration) time.Duration {
	if o != nil && o.timeout > 0 {
		return o.timeout
	}
	return def
}

func (o *requestOptions) header() http.Header {
	if o == nil || o.idempotencyKey == "" {
		return nil
	}
	header := make(http.Header)
	header.Set(transport.IdempotencyKeyHeader, o.idempotencyKey)
	return header
}

// request 发送 JSON 请求并将 2xx 响应体解码到 ret。
// ret 为 nil 或响应为 204 时不做解码。
func (h *httpClient) request(ctx context.Context, method, path string, body interface{}, query url.Values, ret interface{}, opts *requestOptions) error {
	if h.closed.Load() {
		return newConnectionError("client is closed", nil)
	}
	timeout := opts.effectiveTimeout(h.timeout)
	params := transport.RequestParams{
		Context:        ctx,
		Method:         method,
		URL:            h.baseURL + path,
		Query:          query,
		Header:         opts.header(),
		BufferResponse: true,
		Timeout:        timeout,
	}
	if body != nil {
		getBody, err := transport.GetJSONRequestBody(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		params.GetBody = getBody
	}

	resp, err := transport.Do(h.json, params)
	if err != nil {
		return h.transportError(err, timeout)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errorFromResponse(resp)
	}
	if ret == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return h.transportError(err, timeout)
	}
	if len(raw) == 0 {
		return nil
	}
	if err = json.Unmarshal(raw, ret); err != nil {
		return &Error{
			Code:      ErrCodeInternal,
			Message:   fmt.Sprintf("invalid JSON in response body: %s", err),
			Status:    resp.StatusCode,
			RequestID: resp.Header.Get("X-Request-Id"),
		}
	}
	return nil
}

// requestRaw 发送并接收原始字节，不经过重试链路。
func (h *httpClient) requestRaw(ctx context.Context, method, path string, query url.Values, body []byte, contentType string, opts *requestOptions) ([]byte, error) {
	if h.closed.Load() {
		return nil, newConnectionError("client is closed", nil)
	}
	timeout := opts.effectiveTimeout(h.timeout)
	params := transport.RequestParams{
		Context:        ctx,
		Method:         method,
		URL:            h.baseURL + path,
		Query:          query,
		Header:         opts.header(),
		BufferResponse: true,
		Timeout:        timeout,
	}
	if body != nil {
		params.GetBody = transport.GetRawRequestBody(body, contentType)
	}

	resp, err := transport.Do(h.raw, params)
	if err != nil {
		return nil, h.transportError(err, timeout)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errorFromResponse(resp)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, h.transportError(err, timeout)
	}
	return raw, nil
}

// requestStream 建立流式响应，调用方负责关闭 resp.Body。
// 流的生命周期由远端命令时长决定，不施加单次请求超时。
func (h *httpClient) requestStream(ctx context.Context, method, path string, query url.Values, header http.Header) (*http.Response, error) {
	if h.closed.Load() {
		return nil, newConnectionError("client is closed", nil)
	}
	params := transport.RequestParams{
		Context: ctx,
		Method:  method,
		URL:     h.baseURL + path,
		Query:   query,
		Header:  header,
	}

	resp, err := transport.Do(h.raw, params)
	if err != nil {
		return nil, h.transportError(err, h.timeout)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, errorFromResponse(resp)
	}
	return resp, nil
}

// transportError 将传输层失败归类为 timeout 或 connection_error。
func (h *httpClient) transportError(err error, timeout time.Duration) *Error {
	if isTimeoutError(err) {
		return newTimeoutError(
			fmt.Sprintf("request timed out after %s", timeout),
			timeout.Milliseconds())
	}
	return newConnectionError(err.Error(), err)
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (h *httpClient) close() {
	if h.closed.Swap(true) {
		return
	}
	h.core.CloseIdleConnections()
}
