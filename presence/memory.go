package presence

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Memory is a single-instance Ledger.
type Memory struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
	writes  int
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]time.Time), now: time.Now}
}

func memKey(kind Kind, key string) string {
	return string(kind) + ":" + key
}

func (m *Memory) Set(_ context.Context, kind Kind, key string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[memKey(kind, key)] = at

	m.writes++
	if m.writes%1024 == 0 {
		m.evictLocked()
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, kind Kind, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, memKey(kind, key))
	return nil
}

func (m *Memory) Get(_ context.Context, kind Kind, key string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.entries[memKey(kind, key)]
	return at, ok, nil
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// evictLocked drops rows past retention. Called opportunistically on writes.
func (m *Memory) evictLocked() {
	now := m.now()
	for k, at := range m.entries {
		kind := Online
		if strings.HasPrefix(k, string(Typing)+":") {
			kind = Typing
		}
		if now.Sub(at) > retention(kind) {
			delete(m.entries, k)
		}
	}
}
