// Package client implements the RPC call channel: the single synchronous entry point
// that generated call stubs use to invoke a remote method.
//
// One call, start to finish:
//
//	Encode request → build RpcHeader → assemble frame
//	  → registry lookup "/<service>/<method>" → "host:port"
//	    → dial → write frame → read response frame → close
//	      → Decode response into the caller's message
//
// Every step that fails ends the call at once and marks the caller's Controller.
// Nothing survives between calls: no pooled connections, no cached endpoints.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"mprpc/codec"
	"mprpc/logger"
	"mprpc/message"
	"mprpc/middleware"
	"mprpc/protocol"
	"mprpc/registry"
	"mprpc/transport"
)

// Channel turns method invocations into framed requests. It is safe for concurrent use:
// its fields are read-only after NewChannel and every call allocates its own socket.
type Channel struct {
	registry    registry.Registry
	codec       codec.Codec
	dialer      transport.Dialer
	timeout     time.Duration // Default deadline for calls whose ctx has none; 0 = no deadline
	maxResponse uint32
	log         *logger.Logger // Optional; receives a trace of every frame
	middlewares []middleware.Middleware
	invoke      middleware.Invoker // middleware(middleware(...(c.call)))
}

type Option func(*Channel)

// WithCodec sets the codec for requests and responses. Default: protobuf.
func WithCodec(cdc codec.Codec) Option {
	return func(c *Channel) { c.codec = cdc }
}

func WithDialer(d transport.Dialer) Option {
	return func(c *Channel) { c.dialer = d }
}

// WithTimeout bounds calls whose context carries no deadline of its own.
func WithTimeout(d time.Duration) Option {
	return func(c *Channel) { c.timeout = d }
}

// WithMaxResponseSize sets the largest response body accepted.
// Default: protocol.DefaultMaxResponseSize.
func WithMaxResponseSize(n uint32) Option {
	return func(c *Channel) { c.maxResponse = n }
}

// WithLogger traces every outgoing frame through l.
func WithLogger(l *logger.Logger) Option {
	return func(c *Channel) { c.log = l }
}

// WithMiddleware adds interceptors, applied in the order given.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(c *Channel) { c.middlewares = append(c.middlewares, mws...) }
}

// NewChannel creates a channel that locates providers through reg.
func NewChannel(reg registry.Registry, opts ...Option) *Channel {
	c := &Channel{
		registry:    reg,
		codec:       &codec.ProtoCodec{},
		dialer:      &net.Dialer{},
		maxResponse: protocol.DefaultMaxResponseSize,
	}
	for _, opt := range opts {
		opt(c)
	}

	// Build the middleware chain once, not per call
	c.invoke = middleware.Chain(c.middlewares...)(c.call)
	return c
}

// Call invokes service.method with request and decodes the reply into response,
// which must be a zero value of the expected response type.
//
// The outcome is recorded on ctrl (if non-nil) and returned. Errors produced by the
// channel are *CallError; use KindOf or errors.Is with the Err* sentinels to branch.
func (c *Channel) Call(ctx context.Context, service, method string, request, response any, ctrl *Controller) error {
	if ctrl != nil {
		ctrl.Reset()
	}

	err := c.invoke(ctx, &middleware.Call{
		Service:  service,
		Method:   method,
		Request:  request,
		Response: response,
	})
	if err != nil && ctrl != nil {
		ctrl.setFailed(err)
	}
	return err
}

// call is the innermost invoker: the actual header/registry/socket work.
func (c *Channel) call(ctx context.Context, call *middleware.Call) error {
	path := registry.MethodPath(call.Service, call.Method)

	if c.timeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
	}

	// Step 1: serialize the request; argsSize is the length of this payload
	args, err := c.codec.Encode(call.Request)
	if err != nil {
		return newCallError(KindSerialization, path, fmt.Errorf("serialize request error: %w", err))
	}

	// Step 2+3: header and frame: [headerLen][RpcHeader][args]
	header := &message.RpcHeader{
		ServiceName: call.Service,
		MethodName:  call.Method,
	}
	frame, err := protocol.BuildRequest(header, args)
	if err != nil {
		return newCallError(KindSerialization, path, fmt.Errorf("serialize rpc header error: %w", err))
	}
	c.trace(header, frame)

	// Step 4: locate the provider
	endpoint, err := registry.Resolve(ctx, c.registry, call.Service, call.Method)
	if err != nil {
		if errors.Is(err, registry.ErrInvalidEndpoint) {
			return newCallError(KindInvalidEndpoint, path, err)
		}
		return newCallError(KindEndpointNotFound, path, err)
	}

	// Step 5-8: one connection, one frame out, one frame back
	body, err := transport.Exchange(ctx, c.dialer, endpoint.Addr(), frame, c.maxResponse)
	if err != nil {
		return newCallError(exchangeKind(err), path, err)
	}

	// Step 9: decode exactly the bytes received; zero bytes inside are data
	if err := c.codec.Decode(body, call.Response); err != nil {
		return newCallError(KindDeserialization, path, err)
	}
	return nil
}

func exchangeKind(err error) Kind {
	var opErr *transport.OpError
	if errors.As(err, &opErr) {
		switch opErr.Op {
		case transport.OpConnect:
			return KindConnect
		case transport.OpSend:
			return KindSend
		}
	}
	return KindRecv
}

func (c *Channel) trace(h *message.RpcHeader, frame []byte) {
	if c.log == nil {
		return
	}
	c.log.Infof("header_size: %d service_name: %s method_name: %s args_size: %d frame_size: %d",
		len(frame)-protocol.LengthSize-int(h.ArgsSize), h.ServiceName, h.MethodName, h.ArgsSize, len(frame))
}
