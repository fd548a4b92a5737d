package transport

import (
	"encoding/hex"
	"net/http"

	"github.com/google/uuid"
)

// IdempotencyKeyHeader 幂等键请求头名称。
const IdempotencyKeyHeader = "Idempotency-Key"

// NewIdempotencyKey 生成一个 128 位随机幂等键，32 个十六进制字符。
func NewIdempotencyKey() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

type idempotencyInterceptor struct{}

// NewIdempotencyInterceptor 创建幂等键拦截器。
// 非 GET 请求在未显式携带幂等键时自动附加一个新键，
// 同一逻辑调用的所有重试共享同一个键，便于服务端对变更请求去重。
// GET 请求不附加。
func NewIdempotencyInterceptor() Interceptor {
	return idempotencyInterceptor{}
}

func (idempotencyInterceptor) Priority() InterceptorPriority {
	return InterceptorPriorityIdempotency
}

func (idempotencyInterceptor) Intercept(req *http.Request, handler Handler) (*http.Response, error) {
	if req != nil && req.Method != http.MethodGet && req.Header.Get(IdempotencyKeyHeader) == "" {
		req.Header.Set(IdempotencyKeyHeader, NewIdempotencyKey())
	}
	return handler(req)
}
