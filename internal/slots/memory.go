package slots

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryStore struct {
	mu    sync.Mutex
	order []string
	byID  map[string]Slot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]Slot)}
}

func (m *MemoryStore) Insert(_ context.Context, s Slot) (Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.Status == Booked && m.bookedLocked(s.Date, "") {
		return Slot{}, ErrBookedConflict
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.Date = DayOf(s.Date)
	m.byID[s.ID] = s
	m.order = append(m.order, s.ID)
	return s, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return Slot{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) List(_ context.Context) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Slot, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.byID[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (m *MemoryStore) ListByDate(_ context.Context, date time.Time, status Status) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	date = DayOf(date)
	var out []Slot
	for _, id := range m.order {
		s := m.byID[id]
		if s.Date.Equal(date) && s.Status == status {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemoryStore) HasBooked(_ context.Context, date time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bookedLocked(DayOf(date), ""), nil
}

func (m *MemoryStore) SetStatus(_ context.Context, id string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	if status == Booked && m.bookedLocked(s.Date, id) {
		return ErrBookedConflict
	}
	s.Status = status
	m.byID[id] = s
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	if s.Status == Booked {
		return ErrBooked
	}
	delete(m.byID, id)
	m.compactLocked()
	return nil
}

func (m *MemoryStore) DeleteBefore(_ context.Context, date time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	date = DayOf(date)
	n := 0
	for id, s := range m.byID {
		if s.Date.Before(date) {
			delete(m.byID, id)
			n++
		}
	}
	m.compactLocked()
	return n, nil
}

func (m *MemoryStore) bookedLocked(date time.Time, except string) bool {
	for id, s := range m.byID {
		if id != except && s.Status == Booked && s.Date.Equal(date) {
			return true
		}
	}
	return false
}

func (m *MemoryStore) compactLocked() {
	kept := m.order[:0]
	for _, id := range m.order {
		if _, ok := m.byID[id]; ok {
			kept = append(kept, id)
		}
	}
	m.order = kept
}
