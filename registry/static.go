package registry

import (
	"context"
	"sync"
)

// Static is an in-memory Registry. It suits fixed deployments and tests; TTLs
// are ignored.
type Static struct {
	mu        sync.RWMutex
	instances map[string][]ServiceInstance
	watchers  map[string][]chan []ServiceInstance
}

func NewStatic() *Static {
	return &Static{
		instances: make(map[string][]ServiceInstance),
		watchers:  make(map[string][]chan []ServiceInstance),
	}
}

func (s *Static) Register(_ context.Context, serviceID string, inst ServiceInstance, _ int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	insts := s.instances[serviceID]
	for i := range insts {
		if insts[i].Addr == inst.Addr {
			insts[i] = inst
			s.notify(serviceID)
			return nil
		}
	}
	s.instances[serviceID] = append(insts, inst)
	s.notify(serviceID)
	return nil
}

func (s *Static) Deregister(_ context.Context, serviceID string, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	insts := s.instances[serviceID]
	for i, inst := range insts {
		if inst.Addr == addr {
			s.instances[serviceID] = append(insts[:i:i], insts[i+1:]...)
			break
		}
	}
	s.notify(serviceID)
	return nil
}

func (s *Static) Discover(_ context.Context, serviceID string) ([]ServiceInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ServiceInstance(nil), s.instances[serviceID]...), nil
}

// Watch emits the instance list after every change until ctx ends. Updates
// that find the channel full are dropped; the next one carries the full list.
func (s *Static) Watch(ctx context.Context, serviceID string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	s.mu.Lock()
	s.watchers[serviceID] = append(s.watchers[serviceID], ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		ws := s.watchers[serviceID]
		for i, w := range ws {
			if w == ch {
				s.watchers[serviceID] = append(ws[:i:i], ws[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

// notify must be called with mu held.
func (s *Static) notify(serviceID string) {
	snapshot := append([]ServiceInstance(nil), s.instances[serviceID]...)
	for _, ch := range s.watchers[serviceID] {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snapshot:
		default:
		}
	}
}
