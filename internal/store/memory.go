package store

import (
	"context"
	"sync"
	"time"

	"stockpulse/internal/domain"
)

// Memory is a process-scoped subscription store. Its contents are lost on
// restart.
type Memory struct {
	mu      sync.RWMutex
	records map[string]domain.SubscriptionRecord
	order   []string
}

var _ Subscriptions = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{records: make(map[string]domain.SubscriptionRecord)}
}

func (m *Memory) Upsert(_ context.Context, rec domain.SubscriptionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.records[rec.Endpoint]; ok {
		rec.CreatedAt = prev.CreatedAt
		if rec.LastUsed.Before(prev.LastUsed) {
			rec.LastUsed = prev.LastUsed
		}
	} else {
		m.order = append(m.order, rec.Endpoint)
	}
	m.records[rec.Endpoint] = rec
	return nil
}

func (m *Memory) Get(_ context.Context, endpoint string) (*domain.SubscriptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[endpoint]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &rec, nil
}

func (m *Memory) GetByID(_ context.Context, id string) (*domain.SubscriptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, ep := range m.order {
		if rec := m.records[ep]; rec.ID == id {
			return &rec, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (m *Memory) List(_ context.Context) ([]domain.SubscriptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.SubscriptionRecord, 0, len(m.order))
	for _, ep := range m.order {
		out = append(out, m.records[ep])
	}
	return out, nil
}

func (m *Memory) Remove(_ context.Context, endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeLocked(endpoint)
	return nil
}

func (m *Memory) removeLocked(endpoint string) {
	if _, ok := m.records[endpoint]; !ok {
		return
	}
	delete(m.records, endpoint)
	for i, ep := range m.order {
		if ep == endpoint {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *Memory) Touch(_ context.Context, endpoint string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[endpoint]
	if !ok {
		return ErrRecordNotFound
	}
	if at.After(rec.LastUsed) {
		rec.LastUsed = at
		m.records[endpoint] = rec
	}
	return nil
}

func (m *Memory) PruneIdle(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stale []string
	for _, ep := range m.order {
		if m.records[ep].LastUsed.Before(cutoff) {
			stale = append(stale, ep)
		}
	}
	for _, ep := range stale {
		m.removeLocked(ep)
	}
	return len(stale), nil
}

func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}
