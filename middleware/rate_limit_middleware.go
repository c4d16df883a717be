package middleware

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
)

var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitMiddleware 创建一个基于令牌桶算法的限流中间件
// Calls over the limit fail with ErrRateLimited before any network work is done.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next Invoker) Invoker {
		return func(ctx context.Context, call *Call) error {
			if !limiter.Allow() {
				return ErrRateLimited
			}
			return next(ctx, call)
		}
	}
}
