package credentials

import (
	"context"
	"sync"
)

type MemoryStore[T entry[T]] struct {
	mu    sync.Mutex
	order []string
	byID  map[string]T
}

func NewMemoryStore[T entry[T]]() *MemoryStore[T] {
	return &MemoryStore[T]{byID: make(map[string]T)}
}

func (m *MemoryStore[T]) Insert(_ context.Context, v T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[v.key()] = v.withActive(false)
	m.order = append(m.order, v.key())
	return nil
}

func (m *MemoryStore[T]) Get(_ context.Context, id string) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.byID[id]
	if !ok {
		return v, ErrNotFound
	}
	return v, nil
}

func (m *MemoryStore[T]) List(_ context.Context) ([]T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]T, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.byID[id])
	}
	return out, nil
}

func (m *MemoryStore[T]) Update(_ context.Context, v T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[v.key()]
	if !ok {
		return ErrNotFound
	}
	m.byID[v.key()] = v.withActive(cur.active())
	return nil
}

func (m *MemoryStore[T]) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	if v.active() {
		return ErrActive
	}
	delete(m.byID, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryStore[T]) Activate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	for oid, v := range m.byID {
		if v.active() {
			m.byID[oid] = v.withActive(false)
		}
	}
	m.byID[id] = target.withActive(true)
	return nil
}

func (m *MemoryStore[T]) Active(_ context.Context) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.byID {
		if v.active() {
			return v, nil
		}
	}
	var zero T
	return zero, ErrNoneActive
}
