package transport

import (
	"context"
	"fmt"
	"go.uber.org/zap"
	"machinery/codec"
	"machinery/loadbalance"
	"machinery/registry"
	"sync"
)

// Discovery routes each call to an instance that advertised its ServiceID.
// One Pool of ClientTransports is kept per instance address.
//
// Instance lists are cached per ServiceID. The first call for an ID reads the
// registry and starts a Watch; later calls use the cached list, which the
// watch keeps current. If a watch ends, the next call reads the registry again.
type Discovery struct {
	registry  registry.Registry
	balancer  loadbalance.Balancer
	codecType codec.CodecType
	poolSize  int
	logger    *zap.Logger
	dial      func(ctx context.Context, addr string) (*ClientTransport, error)

	ctx    context.Context // ends watches on Close
	cancel context.CancelFunc

	mu       sync.Mutex
	pools    map[string]*Pool
	services map[string]*instanceCache
}

// instanceCache holds the latest known instances of one ServiceID.
type instanceCache struct {
	mu        sync.RWMutex
	instances []registry.ServiceInstance
	ready     bool // a list has been stored
	watched   bool // the list came from the watch, not the cold read
}

// DiscoveryOption configures a Discovery transport.
type DiscoveryOption func(*Discovery)

// WithCodec selects the frame codec. JSON is the default.
func WithCodec(t codec.CodecType) DiscoveryOption {
	return func(d *Discovery) { d.codecType = t }
}

// WithPoolSize bounds the transports kept per address. The default is 4.
func WithPoolSize(n int) DiscoveryOption {
	return func(d *Discovery) { d.poolSize = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) DiscoveryOption {
	return func(d *Discovery) { d.logger = l }
}

// NewDiscovery returns a Discovery transport over reg.
func NewDiscovery(reg registry.Registry, bal loadbalance.Balancer, opts ...DiscoveryOption) *Discovery {
	d := &Discovery{
		registry:  reg,
		balancer:  bal,
		codecType: codec.CodecTypeJSON,
		poolSize:  4,
		logger:    zap.NewNop(),
		pools:     make(map[string]*Pool),
		services:  make(map[string]*instanceCache),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.dial = func(ctx context.Context, addr string) (*ClientTransport, error) {
		return Dial(ctx, addr, d.codecType)
	}
	return d
}

func (d *Discovery) pool(addr string) *Pool {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pools[addr]
	if !ok {
		p = NewPool(d.poolSize, func(ctx context.Context) (*ClientTransport, error) {
			d.logger.Debug("dialing instance", zap.String("addr", addr))
			return d.dial(ctx, addr)
		})
		d.pools[addr] = p
	}
	return p
}

// instances returns the cached instance list of serviceID, reading the
// registry and starting a watch when the cache is cold.
func (d *Discovery) instances(ctx context.Context, serviceID string) ([]registry.ServiceInstance, error) {
	d.mu.Lock()
	c, ok := d.services[serviceID]
	if !ok {
		c = &instanceCache{}
		d.services[serviceID] = c
		// Watch before the cold read, so no change between the two is lost.
		go d.watch(serviceID, c, d.registry.Watch(d.ctx, serviceID))
	}
	d.mu.Unlock()

	c.mu.RLock()
	if c.ready {
		list := c.instances
		c.mu.RUnlock()
		return list, nil
	}
	c.mu.RUnlock()

	list, err := d.registry.Discover(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	// A watch update is newer than this read; keep it.
	if c.watched {
		return c.instances, nil
	}
	c.instances, c.ready = list, true
	return list, nil
}

// watch applies updates to c until the registry closes the channel, then
// drops c so the next call starts over.
func (d *Discovery) watch(serviceID string, c *instanceCache, updates <-chan []registry.ServiceInstance) {
	for list := range updates {
		c.mu.Lock()
		c.instances, c.ready, c.watched = list, true, true
		c.mu.Unlock()
		d.logger.Debug("instances updated", zap.String("service", serviceID), zap.Int("count", len(list)))
	}

	d.mu.Lock()
	if d.services[serviceID] == c {
		delete(d.services, serviceID)
	}
	d.mu.Unlock()
}

// Send picks an instance of serviceID and sends the call over a pooled
// connection to it.
func (d *Discovery) Send(ctx context.Context, serviceID string, args []byte) ([]byte, error) {
	instances, err := d.instances(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", serviceID, err)
	}
	instance, err := d.balancer.Pick(serviceID, instances)
	if err != nil {
		return nil, fmt.Errorf("pick instance for %s: %w", serviceID, err)
	}

	p := d.pool(instance.Addr)
	t, err := p.Get(ctx)
	if err != nil {
		d.logger.Warn("no connection to instance", zap.String("addr", instance.Addr), zap.Error(err))
		return nil, fmt.Errorf("connect %s: %w", instance.Addr, err)
	}
	defer p.Put(t)

	return t.Send(ctx, serviceID, args)
}

// Close stops every watch and closes every pooled connection.
func (d *Discovery) Close() error {
	d.cancel()
	d.mu.Lock()
	defer d.mu.Unlock()
	for addr, p := range d.pools {
		p.Close()
		delete(d.pools, addr)
	}
	return nil
}
