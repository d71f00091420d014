package saga

import (
	"context"
	"sync"
)

// Store keeps one state record per saga instance, keyed by saga id, with
// create-if-absent semantics enforcing the single-use-id rule.
type Store[S any] struct {
	mu        sync.RWMutex
	instances map[string]*instance[S]
}

type instance[S any] struct {
	mu    sync.RWMutex
	state S
	done  chan struct{}
}

func NewStore[S any]() *Store[S] {
	return &Store[S]{instances: make(map[string]*instance[S])}
}

// create admits a new instance; created is false if the id is taken.
func (s *Store[S]) create(id string, initial S) (*instance[S], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.instances[id]; ok {
		return nil, false
	}
	inst := &instance[S]{state: initial, done: make(chan struct{})}
	s.instances[id] = inst
	return inst, true
}

func (s *Store[S]) lookup(id string) (*instance[S], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[id]
	return inst, ok
}

func (s *Store[S]) get(id string) (S, bool) {
	inst, ok := s.lookup(id)
	if !ok {
		var zero S
		return zero, false
	}
	inst.mu.RLock()
	defer inst.mu.RUnlock()
	return inst.state, true
}

func (s *Store[S]) set(id string, state S) {
	inst, ok := s.lookup(id)
	if !ok {
		return
	}
	inst.mu.Lock()
	inst.state = state
	inst.mu.Unlock()
}

func (s *Store[S]) mutate(id string, fn func(S) S) {
	inst, ok := s.lookup(id)
	if !ok {
		return
	}
	inst.mu.Lock()
	inst.state = fn(inst.state)
	inst.mu.Unlock()
}

// wait blocks until the instance finishes or ctx expires.
func (s *Store[S]) wait(ctx context.Context, id string) error {
	inst, ok := s.lookup(id)
	if !ok {
		return nil
	}
	select {
	case <-inst.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (i *instance[S]) finish() {
	close(i.done)
}
