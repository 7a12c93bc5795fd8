package store

import (
	"context"
	"fmt"
	"sync"
)

// InMemory is a thread-safe in-memory key-value store with blocking
// waits on absent keys.
type InMemory struct {
	mu      sync.Mutex
	data    map[string][]byte
	waiters map[string][]chan []byte
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		data:    make(map[string][]byte),
		waiters: make(map[string][]chan []byte),
	}
}

// Set stores value under key and wakes any waiters.
func (s *InMemory) Set(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = append([]byte(nil), value...)

	for _, ch := range s.waiters[key] {
		ch <- append([]byte(nil), value...)
	}
	delete(s.waiters, key)
}

// Get returns the value for key, if present.
func (s *InMemory) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.data[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), value...), true
}

// Wait blocks until key exists or ctx is done.
func (s *InMemory) Wait(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	if value, ok := s.data[key]; ok {
		s.mu.Unlock()
		return append([]byte(nil), value...), nil
	}

	ch := make(chan []byte, 1)
	s.waiters[key] = append(s.waiters[key], ch)
	s.mu.Unlock()

	select {
	case value := <-ch:
		return value, nil
	case <-ctx.Done():
		s.removeWaiter(key, ch)
		return nil, fmt.Errorf("waiting for key %q: %w", key, ctx.Err())
	}
}

func (s *InMemory) removeWaiter(key string, ch chan []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	waiters := s.waiters[key]
	for i, w := range waiters {
		if w == ch {
			s.waiters[key] = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(s.waiters[key]) == 0 {
		delete(s.waiters, key)
	}
}
