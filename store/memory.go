package store

import (
	"context"
	"sync"
	"time"
)

// TimeNowFn returns the current time, replaced in tests.
var TimeNowFn = time.Now

type item struct {
	entry   Entry
	expires time.Time
}

type inMemory struct {
	mu      sync.RWMutex
	storage map[string]map[string]item
}

// NewMemoryStore returns a process-wide in-memory store.
func NewMemoryStore() ModelStore {
	return &inMemory{}
}

func (m *inMemory) Name() string {
	return "memory"
}

func (m *inMemory) Get(_ context.Context, host, model string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.storage == nil {
		return nil, nil
	}
	it, ok := m.storage[host][model]
	if !ok || !TimeNowFn().Before(it.expires) {
		return nil, nil
	}
	e := it.entry
	return &e, nil
}

func (m *inMemory) Put(_ context.Context, host string, ttl time.Duration, entries ...*Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storage == nil {
		// create on first use
		m.storage = make(map[string]map[string]item)
	}
	models := m.storage[host]
	if models == nil {
		models = make(map[string]item)
		m.storage[host] = models
	}

	now := TimeNowFn()
	for _, e := range entries {
		if e == nil {
			continue
		}
		models[e.Model] = item{entry: *e, expires: now.Add(ttl)}
	}
	return nil
}

func (m *inMemory) Reset(_ context.Context, host string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storage != nil {
		delete(m.storage, host)
	}
	return nil
}
