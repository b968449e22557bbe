package transport

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolClosed is returned by Get after Close.
var ErrPoolClosed = errors.New("transport pool closed")

// Pool lends ClientTransports for a single address. Transports are dialed
// lazily up to max; broken ones are dropped when returned or found idle.
type Pool struct {
	mu     sync.Mutex
	idle   chan *ClientTransport
	open   int // transports created and not yet dropped
	max    int
	closed bool
	dial   func(ctx context.Context) (*ClientTransport, error)
}

// NewPool creates an empty pool. max must be positive.
func NewPool(max int, dial func(ctx context.Context) (*ClientTransport, error)) *Pool {
	if max <= 0 {
		max = 1
	}
	return &Pool{
		idle: make(chan *ClientTransport, max),
		max:  max,
		dial: dial,
	}
}

// Get returns an idle transport, dials a new one while under the limit, or
// waits for one to be returned.
func (p *Pool) Get(ctx context.Context) (*ClientTransport, error) {
	for {
		select {
		case t := <-p.idle:
			if t.Closed() {
				p.discard(t)
				continue
			}
			return t, nil
		default:
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		if p.open < p.max {
			p.open++
			p.mu.Unlock()
			t, err := p.dial(ctx)
			if err != nil {
				p.drop()
				return nil, err
			}
			return t, nil
		}
		p.mu.Unlock()

		select {
		case t := <-p.idle:
			if t.Closed() {
				p.discard(t)
				continue
			}
			return t, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Put hands t back. Broken transports, and any returned after Close, are
// closed and forgotten.
func (p *Pool) Put(t *ClientTransport) {
	p.mu.Lock()
	if !p.closed && !t.Closed() {
		// idle holds up to max and open never exceeds max, so this send does
		// not block. Sending under mu keeps Close from draining in between.
		p.idle <- t
		p.mu.Unlock()
		return
	}
	p.open--
	p.mu.Unlock()
	t.Close()
}

// discard closes a transport found broken in idle and frees its slot.
func (p *Pool) discard(t *ClientTransport) {
	t.Close()
	p.drop()
}

func (p *Pool) drop() {
	p.mu.Lock()
	p.open--
	p.mu.Unlock()
}

// Close closes every idle transport. Borrowed transports are closed when
// they are returned.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for {
		select {
		case t := <-p.idle:
			t.Close()
			p.open--
		default:
			return nil
		}
	}
}
