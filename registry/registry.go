// Package registry lets servers advertise the services they dispatch and lets
// clients find an address for a ServiceID.
package registry

import "context"

type ServiceInstance struct {
	Addr    string `json:"addr"`
	Weight  int    `json:"weight"` // weight for load balancing
	Version string `json:"version,omitempty"`
}

type Registry interface {
	Register(ctx context.Context, serviceID string, instance ServiceInstance, ttl int64) error
	Deregister(ctx context.Context, serviceID string, addr string) error
	Discover(ctx context.Context, serviceID string) ([]ServiceInstance, error)
	Watch(ctx context.Context, serviceID string) <-chan []ServiceInstance
}
