package registry

import (
	"context"
	"sync"
	"sync/atomic"
)

// StaticRegistry is an in-memory Registry, used for fixed deployments and tests.
type StaticRegistry struct {
	mu      sync.RWMutex
	entries map[string]string
	lookups atomic.Int64
}

func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{entries: make(map[string]string)}
}

// Set stores addr under the method path of service.method.
func (r *StaticRegistry) Set(service, method, addr string) {
	r.SetPath(MethodPath(service, method), addr)
}

// SetPath stores value under an arbitrary path.
func (r *StaticRegistry) SetPath(path, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[path] = value
}

func (r *StaticRegistry) Delete(service, method string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, MethodPath(service, method))
}

func (r *StaticRegistry) Get(ctx context.Context, path string) (string, error) {
	r.lookups.Add(1)
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[path], nil
}

// Lookups returns how many times Get has been called.
func (r *StaticRegistry) Lookups() int64 {
	return r.lookups.Load()
}
