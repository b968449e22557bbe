package server

import (
	"go.uber.org/zap"
	"machinery/registry"
	"machinery/schema"
)

type options struct {
	logger     *zap.Logger
	introspect *schema.Schema
	registry   registry.Registry
	advertise  string
	ttl        int64
}

// Option configures a Dispatcher or a Server. Options that do not apply to
// the value being built are ignored.
type Option func(*options)

func newOptions(opts []Option) *options {
	o := &options{
		logger: zap.NewNop(),
		ttl:    10,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithIntrospection makes the dispatcher serve s as the result of
// machinery_introspection::schema.
func WithIntrospection(s *schema.Schema) Option {
	return func(o *options) { o.introspect = s }
}

// WithRegistry makes the server advertise every ServiceID it dispatches at
// addr, with leases of ttl seconds, and withdraw them on Shutdown.
func WithRegistry(reg registry.Registry, addr string, ttl int64) Option {
	return func(o *options) {
		o.registry = reg
		o.advertise = addr
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}
