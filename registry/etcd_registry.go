// Etcd-backed Registry.
//
//	Key:   /machinery/{ServiceID}/{Addr}
//	Value: JSON-encoded ServiceInstance
//
// Every key is attached to a TTL lease that is kept alive while the server
// runs. If the server dies, the lease expires and the entry disappears.
package registry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// KeyPrefix is the root of every registry key.
const KeyPrefix = "/machinery/"

// EtcdRegistry implements Registry on etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client
	logger *zap.Logger

	mu     sync.Mutex
	leases map[string]registration // key → lease of a live registration
}

type registration struct {
	lease  clientv3.LeaseID
	cancel context.CancelFunc
}

// NewEtcdRegistry connects to the given endpoints.
func NewEtcdRegistry(endpoints []string, dialTimeout time.Duration, logger *zap.Logger) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EtcdRegistry{client: c, logger: logger, leases: make(map[string]registration)}, nil
}

func instanceKey(serviceID, addr string) string {
	return servicePrefix(serviceID) + addr
}

func servicePrefix(serviceID string) string {
	return KeyPrefix + serviceID + "/"
}

// Register puts the instance under a fresh lease of ttl seconds and keeps the
// lease alive until Deregister or Close.
func (r *EtcdRegistry) Register(ctx context.Context, serviceID string, instance ServiceInstance, ttl int64) error {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	key := instanceKey(serviceID, instance.Addr)
	if _, err := r.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return err
	}

	// The keepalive outlives ctx, which only bounds the registration itself.
	kaCtx, cancel := context.WithCancel(context.Background())
	ch, err := r.client.KeepAlive(kaCtx, lease.ID)
	if err != nil {
		cancel()
		return err
	}
	go func() {
		for range ch {
		}
		r.logger.Debug("lease keepalive stopped", zap.String("key", key))
	}()

	r.mu.Lock()
	if old, ok := r.leases[key]; ok {
		old.cancel()
	}
	r.leases[key] = registration{lease: lease.ID, cancel: cancel}
	r.mu.Unlock()
	return nil
}

// Deregister removes the instance and revokes its lease.
func (r *EtcdRegistry) Deregister(ctx context.Context, serviceID string, addr string) error {
	key := instanceKey(serviceID, addr)

	r.mu.Lock()
	reg, ok := r.leases[key]
	delete(r.leases, key)
	r.mu.Unlock()

	if ok {
		reg.cancel()
		if _, err := r.client.Revoke(ctx, reg.lease); err != nil {
			r.logger.Warn("lease revoke failed", zap.String("key", key), zap.Error(err))
		}
	}
	_, err := r.client.Delete(ctx, key)
	return err
}

// Discover returns the instances currently registered for serviceID.
func (r *EtcdRegistry) Discover(ctx context.Context, serviceID string) ([]ServiceInstance, error) {
	resp, err := r.client.Get(ctx, servicePrefix(serviceID), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance ServiceInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			r.logger.Warn("skipping malformed instance", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Watch re-reads the instance list on every change under the service prefix
// until ctx ends.
func (r *EtcdRegistry) Watch(ctx context.Context, serviceID string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)

	go func() {
		defer close(ch)
		for range r.client.Watch(ctx, servicePrefix(serviceID), clientv3.WithPrefix()) {
			instances, err := r.Discover(ctx, serviceID)
			if err != nil {
				r.logger.Warn("watch refresh failed", zap.String("service", serviceID), zap.Error(err))
				continue
			}
			select {
			case ch <- instances:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Close stops every keepalive and closes the etcd client.
func (r *EtcdRegistry) Close() error {
	r.mu.Lock()
	for key, reg := range r.leases {
		reg.cancel()
		delete(r.leases, key)
	}
	r.mu.Unlock()
	return r.client.Close()
}
