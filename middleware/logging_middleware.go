package middleware

import (
	"context"
	"time"

	"mprpc/logger"
)

// LoggingMiddleware records every call's path and duration, and its error if any.
func LoggingMiddleware(l *logger.Logger) Middleware {
	return func(next Invoker) Invoker {
		return func(ctx context.Context, call *Call) error {
			start := time.Now()
			err := next(ctx, call)
			duration := time.Since(start)
			if err != nil {
				l.Errorf("call %s failed after %s: %v", call.Path(), duration, err)
				return err
			}
			l.Infof("call %s ok in %s", call.Path(), duration)
			return nil
		}
	}
}
