package store

import (
	"context"
	"strings"
	"sync"
)

// Memory is an in-process KV. It backs single-node deployments and tests.
type Memory struct {
	mu      sync.RWMutex
	data    map[string][]byte
	watches *watchHub
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		data:    make(map[string][]byte),
		watches: newWatchHub(),
	}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (m *Memory) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]byte)
	for key, value := range m.data {
		if strings.HasPrefix(key, prefix) {
			out[key] = append([]byte(nil), value...)
		}
	}
	return out, nil
}

func (m *Memory) Put(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	m.data[key] = append([]byte(nil), value...)
	m.mu.Unlock()

	m.notify(Event{Key: key, Op: OpPut})
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	_, existed := m.data[key]
	delete(m.data, key)
	m.mu.Unlock()

	if existed {
		m.notify(Event{Key: key, Op: OpDelete})
	}
	return nil
}

func (m *Memory) DeletePrefix(ctx context.Context, prefix string) error {
	var removed []string

	m.mu.Lock()
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			delete(m.data, key)
			removed = append(removed, key)
		}
	}
	m.mu.Unlock()

	for _, key := range removed {
		m.notify(Event{Key: key, Op: OpDelete})
	}
	return nil
}

func (m *Memory) Watch(ctx context.Context, prefix string) (<-chan Event, error) {
	return m.watches.subscribe(ctx, prefix), nil
}

func (m *Memory) notify(ev Event) {
	m.watches.notify(ev)
}

func (m *Memory) Close() error {
	return nil
}
