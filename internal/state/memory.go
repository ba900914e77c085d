package state

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps states in a map. A zero ttl disables expiry.
type MemoryStore struct {
	mu     sync.Mutex
	states map[int64]State
	ttl    time.Duration
	now    func() time.Time
}

var (
	_ Store  = (*MemoryStore)(nil)
	_ Reaper = (*MemoryStore)(nil)
)

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{states: map[int64]State{}, ttl: ttl, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

func (m *MemoryStore) Get(_ context.Context, tgID int64) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[tgID]
	if !ok {
		return nil, nil
	}
	if m.ttl > 0 && m.now().Sub(st.UpdatedAt) > m.ttl {
		delete(m.states, tgID)
		return nil, nil
	}
	return &st, nil
}

func (m *MemoryStore) Put(_ context.Context, st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st.UpdatedAt = m.now()
	m.states[st.TelegramID] = st
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, tgID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, tgID)
	return nil
}

func (m *MemoryStore) Reap(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, st := range m.states {
		if st.UpdatedAt.Before(olderThan) {
			delete(m.states, id)
			n++
		}
	}
	return n, nil
}
