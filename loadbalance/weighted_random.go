package loadbalance

import (
	"machinery/registry"
	"math/rand"
)

// WeightedRandomBalancer picks an instance with probability proportional to
// its weight. Instances with a weight below one count as one.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(_ string, instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	total := 0
	for _, v := range instances {
		total += weight(v)
	}

	r := rand.Intn(total)
	for i := range instances {
		r -= weight(instances[i])
		if r < 0 {
			return &instances[i], nil
		}
	}
	return &instances[len(instances)-1], nil
}

func weight(inst registry.ServiceInstance) int {
	return max(inst.Weight, 1)
}

func (b *WeightedRandomBalancer) Name() string {
	return "weighted_random"
}
