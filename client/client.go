// Package client builds a tree of callable stubs from a schema.
//
// Every service becomes a Stub placed at its namespace path, so a service
// declared at api::greeting::hello is reached as
//
//	c.Lookup("api", "greeting", "hello")
//	c.Call(ctx, "api.greeting.hello", "Ana")
//
// The tree is built once and never changes; a Client is safe for concurrent
// use as long as its transport is.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"go.uber.org/zap"
	"machinery/namespace"
	"machinery/schema"
	"machinery/transport"
	"strings"
)

// ErrNotFound is returned by Call for a path that does not name a service.
var ErrNotFound = errors.New("no service at path")

type options struct {
	basePath []string
	logger   *zap.Logger
}

type Option func(*options)

// WithBasePath drops prefix from the front of every service's tree path.
// ServiceIDs on the wire keep the full namespace.
func WithBasePath(prefix ...string) Option {
	return func(o *options) { o.basePath = append([]string(nil), prefix...) }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Client is a namespace tree whose leaves are *Stub.
type Client struct {
	root     *namespace.Branch
	messages []schema.MessageDescriptor
}

// New validates s and builds one stub per service, merging each into the tree
// in schema order. It fails with *schema.DuplicateServiceError on a repeated
// ServiceID and *namespace.StructuralConflictError when a service path collides
// with a namespace path or, after WithBasePath, with another service.
func New(s *schema.Schema, t transport.Transport, opts ...Option) (*Client, error) {
	o := &options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	if s == nil {
		return nil, errors.New("client: nil schema")
	}
	if t == nil {
		return nil, errors.New("client: nil transport")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	root := namespace.NewBranch()
	for _, svc := range s.Services {
		if len(svc.Namespace) > 0 && svc.Namespace[0] == schema.IntrospectionNamespace {
			continue
		}
		stub := &Stub{
			desc:      svc,
			id:        svc.ID(),
			transport: t,
			logger:    o.logger,
		}
		path := schema.TrimPrefix(svc.Namespace, o.basePath)
		// ServiceIDs are unique, but stripping the base path can still land two
		// services on one tree path. Replacing the first would make it
		// unreachable, so that is a conflict too.
		at := append(append([]string(nil), path...), svc.Name)
		if n, ok := namespace.Lookup(root, at...); ok {
			if prev, isLeaf := n.(*namespace.Leaf); isLeaf {
				return nil, fmt.Errorf("client: place %s: %w", stub.id, &namespace.StructuralConflictError{
					Path:     at,
					Existing: "service " + prev.Value.(*Stub).id,
					Incoming: "service " + stub.id,
				})
			}
		}

		var err error
		root, err = namespace.Merge(root, namespace.Fragment(path, svc.Name, stub))
		if err != nil {
			return nil, fmt.Errorf("client: place %s: %w", stub.id, err)
		}
	}

	return &Client{
		root:     root,
		messages: append([]schema.MessageDescriptor(nil), s.Messages...),
	}, nil
}

// Lookup returns the stub at path.
func (c *Client) Lookup(path ...string) (*Stub, bool) {
	n, ok := namespace.Lookup(c.root, path...)
	if !ok {
		return nil, false
	}
	leaf, ok := n.(*namespace.Leaf)
	if !ok {
		return nil, false
	}
	return leaf.Value.(*Stub), true
}

// Call invokes the service at the dot-separated path.
func (c *Client) Call(ctx context.Context, path string, args ...any) (json.RawMessage, error) {
	stub, ok := c.Lookup(strings.Split(path, ".")...)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return stub.Call(ctx, args...)
}

// Namespace returns a view of the subtree at path. The view shares stubs with
// c.
func (c *Client) Namespace(path ...string) (*Client, bool) {
	n, ok := namespace.Lookup(c.root, path...)
	if !ok {
		return nil, false
	}
	b, ok := n.(*namespace.Branch)
	if !ok {
		return nil, false
	}
	return &Client{root: b, messages: c.messages}, true
}

// Tree returns the root of the stub tree. It must not be modified.
func (c *Client) Tree() *namespace.Branch {
	return c.root
}

// Services lists every stub path, dot-joined and sorted.
func (c *Client) Services() []string {
	return namespace.Paths(c.root)
}

// Messages returns the message descriptors of the schema, unchanged.
func (c *Client) Messages() []schema.MessageDescriptor {
	return append([]schema.MessageDescriptor(nil), c.messages...)
}
