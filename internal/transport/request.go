package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	contentTypeJSON        = "application/json"
	contentTypeOctetStream = "application/octet-stream"
)

type GetRequestBody func(options *RequestParams) (io.ReadCloser, error)

// GetJSONRequestBody 构造 JSON 请求体。请求体会被预先序列化，
// 每次调用返回一个新的 reader，以便重试时重新发送。
func GetJSONRequestBody(object interface{}) (GetRequestBody, error) {
	reqBody, err := json.Marshal(object)
	if err != nil {
		return nil, err
	}
	return func(o *RequestParams) (io.ReadCloser, error) {
		o.Header.Set("Content-Type", contentTypeJSON)
		return io.NopCloser(bytes.NewReader(reqBody)), nil
	}, nil
}

// GetRawRequestBody 构造原始字节请求体。
func GetRawRequestBody(data []byte, contentType string) GetRequestBody {
	if contentType == "" {
		contentType = contentTypeOctetStream
	}
	return func(o *RequestParams) (io.ReadCloser, error) {
		o.Header.Set("Content-Type", contentType)
		return io.NopCloser(bytes.NewReader(data)), nil
	}
}

type RequestParams struct {
	Context context.Context
	Method  string
	URL     string
	Query   url.Values
	Header  http.Header
	GetBody GetRequestBody

	// BufferResponse 要求在超时窗口内将响应体完整读入内存。
	// 流式请求（SSE、下载）不设置。
	BufferResponse bool

	// Timeout 单次尝试的超时时间，每次重试都有独立的时间窗口。
	Timeout time.Duration
}

func (o *RequestParams) init() {
	if o.Context == nil {
		o.Context = context.Background()
	}

	if len(o.Method) == 0 {
		o.Method = http.MethodGet
	}

	if o.Header == nil {
		o.Header = http.Header{}
	}

	if o.GetBody == nil {
		o.GetBody = func(options *RequestParams) (io.ReadCloser, error) {
			return nil, nil
		}
	}
}

func NewRequest(options RequestParams) (req *http.Request, err error) {
	options.init()

	body, err := options.GetBody(&options)
	if err != nil {
		return nil, err
	}

	reqURL := options.URL
	if len(options.Query) > 0 {
		reqURL += "?" + options.Query.Encode()
	}

	req, err = http.NewRequest(options.Method, reqURL, body)
	if err != nil {
		return
	}

	ctx := options.Context
	if options.BufferResponse {
		ctx = context.WithValue(ctx, contextKeyBufferResponse{}, struct{}{})
	}
	if options.Timeout > 0 {
		ctx = context.WithValue(ctx, contextKeyAttemptTimeout{}, options.Timeout)
	}
	req = req.WithContext(ctx)

	req.Header = options.Header
	if body != nil && body != http.NoBody {
		req.GetBody = func() (io.ReadCloser, error) {
			return options.GetBody(&options)
		}
	}
	return
}
