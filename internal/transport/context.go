package transport

import (
	"context"
	"time"
)

type (
	contextKeyBufferResponse struct{}
	contextKeyAttemptTimeout struct{}
)

func isBufferResponse(ctx context.Context) bool {
	return ctx.Value(contextKeyBufferResponse{}) != nil
}

func attemptTimeoutFromContext(ctx context.Context) time.Duration {
	if t, ok := ctx.Value(contextKeyAttemptTimeout{}).(time.Duration); ok {
		return t
	}
	return 0
}
