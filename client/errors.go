package client

import (
	"errors"
	"fmt"
)

// Kind classifies the step at which a call failed.
type Kind int

const (
	KindUnknown          Kind = iota // Failure outside the channel, e.g. a middleware rejection
	KindSerialization                // Request or header could not be encoded
	KindEndpointNotFound             // Registry has no provider for the method, or the lookup failed
	KindInvalidEndpoint              // Registry value is not "host:port"
	KindConnect                      // TCP connection to the provider failed
	KindSend                         // Request frame could not be written
	KindRecv                         // Response frame could not be read
	KindDeserialization              // Response bytes could not be decoded
)

// Sentinels for errors.Is; a *CallError matches the sentinel of its Kind.
var (
	ErrSerialization    = errors.New("serialization error")
	ErrEndpointNotFound = errors.New("endpoint not found")
	ErrInvalidEndpoint  = errors.New("invalid endpoint")
	ErrConnect          = errors.New("connect error")
	ErrSend             = errors.New("send error")
	ErrRecv             = errors.New("recv error")
	ErrDeserialization  = errors.New("deserialization error")
)

var kindSentinels = map[Kind]error{
	KindSerialization:    ErrSerialization,
	KindEndpointNotFound: ErrEndpointNotFound,
	KindInvalidEndpoint:  ErrInvalidEndpoint,
	KindConnect:          ErrConnect,
	KindSend:             ErrSend,
	KindRecv:             ErrRecv,
	KindDeserialization:  ErrDeserialization,
}

func (k Kind) String() string {
	if err, ok := kindSentinels[k]; ok {
		return err.Error()
	}
	return "unknown error"
}

// CallError is the error of a failed call.
type CallError struct {
	Kind Kind
	Path string // "/<service>/<method>"
	Err  error  // Underlying cause; carries the OS errno for network failures
}

func (e *CallError) Error() string {
	return fmt.Sprintf("mprpc: %s: %s: %v", e.Path, e.Kind, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

func (e *CallError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && target == sentinel
}

// KindOf returns the Kind of err, or KindUnknown if err did not come from the channel.
func KindOf(err error) Kind {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

func newCallError(kind Kind, path string, err error) *CallError {
	return &CallError{Kind: kind, Path: path, Err: err}
}
