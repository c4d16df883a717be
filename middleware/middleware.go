// Package middleware wraps channel calls in interceptors (logging, deadlines, rate limits).
package middleware

import (
	"context"
)

// Call describes one invocation passing through the chain.
type Call struct {
	Service  string
	Method   string
	Request  any
	Response any
}

// Path returns the registry path of the called method.
func (c *Call) Path() string {
	return "/" + c.Service + "/" + c.Method
}

// Invoker performs a call. The innermost Invoker is the channel itself.
type Invoker func(ctx context.Context, call *Call) error

type Middleware func(next Invoker) Invoker

// Chain 将多个中间件组合成一个中间件
// Chain(A, B, C)(invoker) → A(B(C(invoker))), so A sees the call first.
func Chain(middlewares ...Middleware) Middleware {
	return func(next Invoker) Invoker {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
