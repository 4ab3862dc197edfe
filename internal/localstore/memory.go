package localstore

import (
	"encoding/json"
	"sync"
)

// Memory is a map-backed Store for tests and for callers that want the cache
// without durable persistence. Snapshots are round-tripped through JSON so
// serialization behavior matches the durable store.
type Memory struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Read implements Store.Read.
func (m *Memory) Read(userID string) (*Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, ok := m.data[userID]
	if !ok {
		return nil, false
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		delete(m.data, userID)
		return nil, false
	}
	return &snap, true
}

// Write implements Store.Write.
func (m *Memory) Write(userID string, snap *Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[userID] = raw
	return nil
}

// Delete implements Store.Delete.
func (m *Memory) Delete(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, userID)
	return nil
}

// Available implements Store.Available.
func (m *Memory) Available() bool { return true }

// Close implements Store.Close.
func (m *Memory) Close() error { return nil }
