// Package registry resolves a method path to the network address of its provider.
//
// The registry is a key/value lookup: providers publish "host:port" under
// "/<service>/<method>", callers read it back before every call.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

var (
	ErrEndpointNotFound = errors.New("registry: endpoint not found")
	ErrInvalidEndpoint  = errors.New("registry: invalid endpoint")
)

// Registry looks up the value stored under path.
// A missing key is reported as ("", nil), not as an error.
type Registry interface {
	Get(ctx context.Context, path string) (string, error)
}

// MethodPath returns the registry key of a method: "/<service>/<method>".
func MethodPath(service, method string) string {
	return "/" + service + "/" + method
}

// Endpoint is a provider address parsed from a registry value.
type Endpoint struct {
	Host string
	Port uint16
}

// Addr returns the endpoint in "host:port" form, suitable for net.Dial.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(int(e.Port)))
}

func (e Endpoint) String() string {
	return e.Addr()
}

// ParseEndpoint splits a "host:port" registry value at its first ':'.
func ParseEndpoint(value string) (Endpoint, error) {
	if value == "" {
		return Endpoint{}, ErrEndpointNotFound
	}

	idx := strings.Index(value, ":")
	if idx == -1 {
		return Endpoint{}, fmt.Errorf("%w: %q has no port", ErrInvalidEndpoint, value)
	}

	host := value[:idx]
	if host == "" {
		return Endpoint{}, fmt.Errorf("%w: %q has no host", ErrInvalidEndpoint, value)
	}
	port, err := strconv.ParseUint(value[idx+1:], 10, 16)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %q: bad port: %v", ErrInvalidEndpoint, value, err)
	}
	return Endpoint{Host: host, Port: uint16(port)}, nil
}

// Resolve looks up the provider of service.method and parses its address.
func Resolve(ctx context.Context, reg Registry, service, method string) (Endpoint, error) {
	path := MethodPath(service, method)
	value, err := reg.Get(ctx, path)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %s: %v", ErrEndpointNotFound, path, err)
	}
	if value == "" {
		return Endpoint{}, fmt.Errorf("%w: %s", ErrEndpointNotFound, path)
	}
	return ParseEndpoint(value)
}
