package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/wrapperspb"

	"mprpc/codec"
	"mprpc/logger"
	"mprpc/message"
	"mprpc/middleware"
	"mprpc/protocol"
	"mprpc/registry"
)

// provider is a minimal RPC provider: it decodes one request frame per connection and
// answers with whatever handle returns.
type provider struct {
	addr     string
	accepted atomic.Int32
}

func startProvider(t *testing.T, handle func(h *message.RpcHeader, args []byte) []byte) *provider {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	p := &provider{addr: ln.Addr().String()}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			p.accepted.Add(1)
			go func() {
				defer conn.Close()
				h, args, err := protocol.DecodeRequest(conn, 0, 0)
				if err != nil {
					return
				}
				if body := handle(h, args); body != nil {
					protocol.EncodeResponse(conn, body)
				}
			}()
		}
	}()
	return p
}

// echoUpper answers a StringValue request with the upper-cased string.
func echoUpper(t *testing.T) func(h *message.RpcHeader, args []byte) []byte {
	return func(h *message.RpcHeader, args []byte) []byte {
		req := &wrapperspb.StringValue{}
		if err := (&codec.ProtoCodec{}).Decode(args, req); err != nil {
			t.Errorf("provider: bad args: %v", err)
			return nil
		}
		if uint32(len(args)) != h.ArgsSize {
			t.Errorf("provider: args_size %d, got %d bytes", h.ArgsSize, len(args))
		}
		body, _ := (&codec.ProtoCodec{}).Encode(wrapperspb.String(strings.ToUpper(req.GetValue())))
		return body
	}
}

type countingDialer struct {
	dials atomic.Int32
	net.Dialer
}

func (d *countingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.dials.Add(1)
	return d.Dialer.DialContext(ctx, network, address)
}

func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestCallSuccess(t *testing.T) {
	p := startProvider(t, echoUpper(t))
	reg := registry.NewStaticRegistry()
	reg.Set("UserServiceRpc", "Login", p.addr)

	ch := NewChannel(reg)
	ctrl := &Controller{}
	resp := &wrapperspb.StringValue{}

	err := ch.Call(context.Background(), "UserServiceRpc", "Login", wrapperspb.String("zhang san"), resp, ctrl)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if ctrl.Failed() || ctrl.ErrorText() != "" || ctrl.Err() != nil {
		t.Fatalf("controller should report success, got %q", ctrl.ErrorText())
	}
	if resp.GetValue() != "ZHANG SAN" {
		t.Fatalf("expect ZHANG SAN, got %q", resp.GetValue())
	}
	if reg.Lookups() != 1 {
		t.Fatalf("expect exactly 1 registry lookup, got %d", reg.Lookups())
	}
}

func TestCallFixedEndpoint(t *testing.T) {
	// Fixed provider on 127.0.0.1:8888, answering a fixed payload
	ln, err := net.Listen("tcp", "127.0.0.1:8888")
	if err != nil {
		t.Skipf("port 8888 unavailable: %v", err)
	}
	defer ln.Close()

	fixed, _ := (&codec.ProtoCodec{}).Encode(wrapperspb.Bool(true))
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		protocol.DecodeRequest(conn, 0, 0)
		protocol.EncodeResponse(conn, fixed)
	}()

	reg := registry.NewStaticRegistry()
	reg.Set("UserServiceRpc", "Login", "127.0.0.1:8888")

	resp := &wrapperspb.BoolValue{}
	if err := NewChannel(reg).Call(context.Background(), "UserServiceRpc", "Login", wrapperspb.String("x"), resp, nil); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if !resp.GetValue() {
		t.Fatal("expect decoded response true")
	}
}

func TestCallSerializationFailureNeverConnects(t *testing.T) {
	reg := registry.NewStaticRegistry()
	reg.Set("UserServiceRpc", "Login", "127.0.0.1:1")
	d := &countingDialer{}

	ch := NewChannel(reg, WithDialer(d))
	ctrl := &Controller{}

	// A plain struct is not a proto.Message
	err := ch.Call(context.Background(), "UserServiceRpc", "Login", struct{ Name string }{"x"}, &wrapperspb.StringValue{}, ctrl)
	if KindOf(err) != KindSerialization || !errors.Is(err, ErrSerialization) {
		t.Fatalf("expect serialization error, got %v", err)
	}
	if !ctrl.Failed() || !strings.Contains(ctrl.ErrorText(), "serialize request error") {
		t.Fatalf("unexpected controller state %v %q", ctrl.Failed(), ctrl.ErrorText())
	}
	if d.dials.Load() != 0 {
		t.Fatalf("expect zero connect attempts, got %d", d.dials.Load())
	}
	if reg.Lookups() != 0 {
		t.Fatalf("expect zero registry lookups, got %d", reg.Lookups())
	}
}

func TestCallEmptyMethodIsSerializationError(t *testing.T) {
	d := &countingDialer{}
	ch := NewChannel(registry.NewStaticRegistry(), WithDialer(d))

	err := ch.Call(context.Background(), "UserServiceRpc", "", wrapperspb.String("x"), &wrapperspb.StringValue{}, nil)
	if KindOf(err) != KindSerialization {
		t.Fatalf("expect serialization error, got %v", err)
	}
	if !errors.Is(err, message.ErrEmptyMethodName) {
		t.Fatalf("expect ErrEmptyMethodName cause, got %v", err)
	}
	if d.dials.Load() != 0 {
		t.Fatalf("expect zero connect attempts, got %d", d.dials.Load())
	}
}

func TestCallEndpointErrors(t *testing.T) {
	reg := registry.NewStaticRegistry()
	reg.Set("UserServiceRpc", "Broken", "127.0.0.1")
	d := &countingDialer{}
	ch := NewChannel(reg, WithDialer(d))

	ctrl := &Controller{}
	err := ch.Call(context.Background(), "UserServiceRpc", "Missing", wrapperspb.String("x"), &wrapperspb.StringValue{}, ctrl)
	if KindOf(err) != KindEndpointNotFound || !errors.Is(err, ErrEndpointNotFound) {
		t.Fatalf("expect endpoint not found, got %v", err)
	}
	if !strings.Contains(ctrl.ErrorText(), "/UserServiceRpc/Missing") {
		t.Fatalf("expect path in error text, got %q", ctrl.ErrorText())
	}

	err = ch.Call(context.Background(), "UserServiceRpc", "Broken", wrapperspb.String("x"), &wrapperspb.StringValue{}, ctrl)
	if KindOf(err) != KindInvalidEndpoint || !errors.Is(err, ErrInvalidEndpoint) {
		t.Fatalf("expect invalid endpoint, got %v", err)
	}

	if d.dials.Load() != 0 {
		t.Fatalf("expect zero connect attempts, got %d", d.dials.Load())
	}
}

func TestCallConnectRefused(t *testing.T) {
	reg := registry.NewStaticRegistry()
	reg.Set("UserServiceRpc", "Login", closedAddr(t))

	ctrl := &Controller{}
	resp := &wrapperspb.StringValue{}
	err := NewChannel(reg).Call(context.Background(), "UserServiceRpc", "Login", wrapperspb.String("x"), resp, ctrl)
	if KindOf(err) != KindConnect || !errors.Is(err, ErrConnect) {
		t.Fatalf("expect connect error, got %v", err)
	}
	if !strings.Contains(ctrl.ErrorText(), "errno:") {
		t.Fatalf("expect OS errno in error text, got %q", ctrl.ErrorText())
	}
	if resp.GetValue() != "" {
		t.Fatal("response must stay untouched")
	}
}

func TestCallProviderHangsUp(t *testing.T) {
	p := startProvider(t, func(h *message.RpcHeader, args []byte) []byte { return nil })
	reg := registry.NewStaticRegistry()
	reg.Set("UserServiceRpc", "Login", p.addr)

	err := NewChannel(reg).Call(context.Background(), "UserServiceRpc", "Login", wrapperspb.String("x"), &wrapperspb.StringValue{}, nil)
	if KindOf(err) != KindRecv {
		t.Fatalf("expect recv error, got %v", err)
	}
}

func TestCallDeserializationError(t *testing.T) {
	p := startProvider(t, func(h *message.RpcHeader, args []byte) []byte {
		return []byte{0x0a, 0x7f, 'x'} // string field claiming 127 bytes
	})
	reg := registry.NewStaticRegistry()
	reg.Set("UserServiceRpc", "Login", p.addr)

	ctrl := &Controller{}
	err := NewChannel(reg).Call(context.Background(), "UserServiceRpc", "Login", wrapperspb.String("x"), &wrapperspb.StringValue{}, ctrl)
	if KindOf(err) != KindDeserialization || !errors.Is(err, ErrDeserialization) {
		t.Fatalf("expect deserialization error, got %v", err)
	}
	if !ctrl.Failed() {
		t.Fatal("controller should be failed")
	}
}

func TestCallResponseTooLarge(t *testing.T) {
	big := strings.Repeat("x", 1024)
	p := startProvider(t, func(h *message.RpcHeader, args []byte) []byte {
		body, _ := (&codec.ProtoCodec{}).Encode(wrapperspb.String(big))
		return body
	})
	reg := registry.NewStaticRegistry()
	reg.Set("UserServiceRpc", "Login", p.addr)

	err := NewChannel(reg, WithMaxResponseSize(512)).Call(context.Background(), "UserServiceRpc", "Login", wrapperspb.String("x"), &wrapperspb.StringValue{}, nil)
	if KindOf(err) != KindRecv || !errors.Is(err, protocol.ErrResponseTooLarge) {
		t.Fatalf("expect recv error wrapping ErrResponseTooLarge, got %v", err)
	}

	// The same response fits under a larger ceiling
	resp := &wrapperspb.StringValue{}
	if err := NewChannel(reg, WithMaxResponseSize(4096)).Call(context.Background(), "UserServiceRpc", "Login", wrapperspb.String("x"), resp, nil); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if resp.GetValue() != big {
		t.Fatal("large response mismatch")
	}
}

func TestCallTimeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	p := startProvider(t, func(h *message.RpcHeader, args []byte) []byte {
		<-release
		return nil
	})
	reg := registry.NewStaticRegistry()
	reg.Set("UserServiceRpc", "Login", p.addr)

	start := time.Now()
	err := NewChannel(reg, WithTimeout(100*time.Millisecond)).Call(context.Background(), "UserServiceRpc", "Login", wrapperspb.String("x"), &wrapperspb.StringValue{}, nil)
	if time.Since(start) > 2*time.Second {
		t.Fatal("call ignored its deadline")
	}
	if KindOf(err) != KindRecv || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expect recv deadline error, got %v", err)
	}
}

func TestCallConcurrent(t *testing.T) {
	p := startProvider(t, echoUpper(t))
	reg := registry.NewStaticRegistry()
	reg.Set("UserServiceRpc", "Login", p.addr)
	ch := NewChannel(reg)

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctrl := &Controller{}
			resp := &wrapperspb.StringValue{}
			name := fmt.Sprintf("user-%d", i)
			if err := ch.Call(context.Background(), "UserServiceRpc", "Login", wrapperspb.String(name), resp, ctrl); err != nil {
				t.Errorf("call %d failed: %v", i, err)
				return
			}
			if resp.GetValue() != strings.ToUpper(name) {
				t.Errorf("call %d: expect %s, got %s", i, strings.ToUpper(name), resp.GetValue())
			}
		}(i)
	}
	wg.Wait()

	// One socket per call
	if got := p.accepted.Load(); got != n {
		t.Fatalf("expect %d connections, got %d", n, got)
	}
}

func TestCallControllerResetBetweenCalls(t *testing.T) {
	p := startProvider(t, echoUpper(t))
	reg := registry.NewStaticRegistry()
	reg.Set("UserServiceRpc", "Login", p.addr)
	ch := NewChannel(reg)
	ctrl := &Controller{}

	ch.Call(context.Background(), "UserServiceRpc", "Missing", wrapperspb.String("x"), &wrapperspb.StringValue{}, ctrl)
	if !ctrl.Failed() {
		t.Fatal("first call should fail")
	}

	if err := ch.Call(context.Background(), "UserServiceRpc", "Login", wrapperspb.String("x"), &wrapperspb.StringValue{}, ctrl); err != nil {
		t.Fatal(err)
	}
	if ctrl.Failed() {
		t.Fatalf("controller should be reset, still holds %q", ctrl.ErrorText())
	}
}

func TestCallJSONCodec(t *testing.T) {
	type LoginRequest struct{ Name, Pwd string }
	type LoginResponse struct {
		Success bool
		Msg     string
	}

	p := startProvider(t, func(h *message.RpcHeader, args []byte) []byte {
		var req LoginRequest
		(&codec.JSONCodec{}).Decode(args, &req)
		body, _ := (&codec.JSONCodec{}).Encode(&LoginResponse{Success: req.Pwd == "123456", Msg: "hi " + req.Name})
		return body
	})
	reg := registry.NewStaticRegistry()
	reg.Set("UserServiceRpc", "Login", p.addr)

	resp := &LoginResponse{}
	ch := NewChannel(reg, WithCodec(codec.GetCodec(codec.CodecTypeJSON)))
	if err := ch.Call(context.Background(), "UserServiceRpc", "Login", &LoginRequest{Name: "zhang san", Pwd: "123456"}, resp, nil); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.Msg != "hi zhang san" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestCallMiddlewareRateLimit(t *testing.T) {
	p := startProvider(t, echoUpper(t))
	reg := registry.NewStaticRegistry()
	reg.Set("UserServiceRpc", "Login", p.addr)
	d := &countingDialer{}

	ch := NewChannel(reg, WithDialer(d), WithMiddleware(middleware.RateLimitMiddleware(0.001, 1)))

	if err := ch.Call(context.Background(), "UserServiceRpc", "Login", wrapperspb.String("x"), &wrapperspb.StringValue{}, nil); err != nil {
		t.Fatalf("first call should pass: %v", err)
	}

	ctrl := &Controller{}
	err := ch.Call(context.Background(), "UserServiceRpc", "Login", wrapperspb.String("x"), &wrapperspb.StringValue{}, ctrl)
	if !errors.Is(err, middleware.ErrRateLimited) || KindOf(err) != KindUnknown {
		t.Fatalf("expect rate limit rejection, got %v", err)
	}
	if ctrl.ErrorText() != "rate limit exceeded" {
		t.Fatalf("unexpected controller text %q", ctrl.ErrorText())
	}
	if d.dials.Load() != 1 {
		t.Fatalf("rejected call must not dial, got %d dials", d.dials.Load())
	}
}

func TestCallTracesThroughLogger(t *testing.T) {
	p := startProvider(t, echoUpper(t))
	reg := registry.NewStaticRegistry()
	reg.Set("UserServiceRpc", "Login", p.addr)

	dir := t.TempDir()
	now := time.Date(2026, time.October, 14, 10, 0, 0, 0, time.Local)
	l := logger.Start(logger.WithDir(dir), logger.WithClock(func() time.Time { return now }))

	ch := NewChannel(reg, WithLogger(l), WithMiddleware(middleware.LoggingMiddleware(l)))
	if err := ch.Call(context.Background(), "UserServiceRpc", "Login", wrapperspb.String("zhang san"), &wrapperspb.StringValue{}, nil); err != nil {
		t.Fatal(err)
	}
	if err := l.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, logger.FileName(now)))
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	// "zhang san" as a StringValue is 11 bytes: tag, length, 9 bytes
	if !strings.Contains(text, "service_name: UserServiceRpc method_name: Login args_size: 11") {
		t.Fatalf("missing frame trace in %q", text)
	}
	if !strings.Contains(text, "[info]call /UserServiceRpc/Login ok") {
		t.Fatalf("missing call log in %q", text)
	}
}

func TestControllerSetFailed(t *testing.T) {
	ctrl := &Controller{}
	ctrl.SetFailed("first")
	ctrl.SetFailed("second")

	if !ctrl.Failed() || ctrl.ErrorText() != "first" {
		t.Fatalf("expect first failure to stick, got %q", ctrl.ErrorText())
	}
	ctrl.Reset()
	if ctrl.Failed() || ctrl.Err() != nil {
		t.Fatal("expect clean controller after Reset")
	}
}
