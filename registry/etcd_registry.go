package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// EtcdConfig configures the etcd connection.
type EtcdConfig struct {
	Endpoints   []string
	DialTimeout time.Duration // 0 leaves the etcd client default
	Logger      *zap.Logger   // nil keeps the etcd client's own logger
}

// EtcdRegistry implements Registry on top of etcd v3.
//
// It stores one key per method, exactly the path callers look up:
//
//	Key:   /{ServiceName}/{MethodName}
//	Value: "host:port" of the provider
//
// Publishing uses TTL-based leases: if the provider crashes, the lease expires
// and the entry is removed, so callers stop resolving a dead address.
type EtcdRegistry struct {
	client *clientv3.Client // thread-safe, shared across goroutines

	mu        sync.Mutex
	published map[string]context.CancelFunc // path -> stops KeepAlive for that lease
}

// NewEtcdRegistry creates a registry connected to the configured endpoints.
// The connection is established lazily, so an unreachable cluster surfaces on the first Get.
func NewEtcdRegistry(cfg EtcdConfig) (*EtcdRegistry, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("registry: no etcd endpoints configured")
	}

	c, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{
		client:    c,
		published: make(map[string]context.CancelFunc),
	}, nil
}

// Get returns the value stored at exactly path, or "" if the key does not exist.
func (r *EtcdRegistry) Get(ctx context.Context, path string) (string, error) {
	resp, err := r.client.Get(ctx, path)
	if err != nil {
		return "", err
	}
	if len(resp.Kvs) == 0 {
		return "", nil
	}
	return string(resp.Kvs[0].Value), nil
}

// Publish announces addr as the provider of service.method.
//
// Flow:
//  1. Create a lease with the given TTL (seconds)
//  2. Put the method path with the lease attached
//  3. Start KeepAlive to renew the lease until Unpublish or Close
func (r *EtcdRegistry) Publish(ctx context.Context, service, method, addr string, ttl int64) error {
	path := MethodPath(service, method)

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	if _, err := r.client.Put(ctx, path, addr, clientv3.WithLease(lease.ID)); err != nil {
		return err
	}

	// KeepAlive must outlive ctx, which usually only covers the publish request itself
	keepCtx, cancel := context.WithCancel(context.Background())
	ch, err := r.client.KeepAlive(keepCtx, lease.ID)
	if err != nil {
		cancel()
		return err
	}

	r.mu.Lock()
	if prev, ok := r.published[path]; ok {
		prev()
	}
	r.published[path] = cancel
	r.mu.Unlock()

	// Consume KeepAlive responses so the channel never fills up
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Unpublish stops renewing the lease of service.method and deletes its key.
func (r *EtcdRegistry) Unpublish(ctx context.Context, service, method string) error {
	path := MethodPath(service, method)

	r.mu.Lock()
	if cancel, ok := r.published[path]; ok {
		cancel()
		delete(r.published, path)
	}
	r.mu.Unlock()

	_, err := r.client.Delete(ctx, path)
	return err
}

// Close stops all lease renewals and closes the etcd connection.
// Published keys expire once their TTL runs out.
func (r *EtcdRegistry) Close() error {
	r.mu.Lock()
	for path, cancel := range r.published {
		cancel()
		delete(r.published, path)
	}
	r.mu.Unlock()

	return r.client.Close()
}
