package middleware

import (
	"context"
	"time"
)

// TimeoutMiddleware bounds each call by timeout. The deadline reaches the transport
// through ctx, so connect, send and receive all stop when it expires.
// A tighter deadline already on ctx wins.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next Invoker) Invoker {
		return func(ctx context.Context, call *Call) error {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, call)
		}
	}
}
