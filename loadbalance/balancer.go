// Package loadbalance picks one instance of a service for each call.
//
// Three strategies are implemented:
//   - RoundRobin:      equal-capacity instances
//   - WeightedRandom:  instances of different capacity
//   - ConsistentHash:  the same ServiceID always lands on the same instance
package loadbalance

import (
	"errors"
	"fmt"
	"machinery/registry"
)

// ErrNoInstances is returned when a service has no registered instance.
var ErrNoInstances = errors.New("no instances available")

// Balancer selects a target instance. key is the ServiceID being called.
// Pick is called on every call and must be safe for concurrent use.
type Balancer interface {
	Pick(key string, instances []registry.ServiceInstance) (*registry.ServiceInstance, error)
	Name() string
}

// New returns the balancer registered under name.
func New(name string) (Balancer, error) {
	switch name {
	case "", "round_robin":
		return &RoundRobinBalancer{}, nil
	case "weighted_random":
		return &WeightedRandomBalancer{}, nil
	case "consistent_hash":
		return NewConsistentHashBalancer(), nil
	}
	return nil, fmt.Errorf("loadbalance: unknown strategy %q", name)
}
