package queue

import (
	"context"
	"sync"
)

// Memory is an in-process Client backed by a mutex-guarded map of
// slices. It is the simulation implementation used for local
// development and unit tests — it gives the exact atomicity guarantee
// the interface requires without a running Redis.
type Memory struct {
	mu   sync.Mutex
	data map[string][][]byte
}

// NewMemory returns a ready, empty Memory client.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][][]byte)}
}

func (m *Memory) Length(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.data[key])), nil
}

func (m *Memory) AppendMany(_ context.Context, key string, entries [][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append(m.data[key], entries...)
	return nil
}

func (m *Memory) ReadAll(_ context.Context, key string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.data[key]))
	copy(out, m.data[key])
	return out, nil
}

func (m *Memory) DeleteAll(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// ReadAllAndDeleteAtomically holds the single mutex for the duration of
// the swap, so any concurrent AppendMany either completes entirely
// before this call observes the list, or entirely after — never split.
func (m *Memory) ReadAllAndDeleteAtomically(_ context.Context, key string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.data[key]
	delete(m.data, key)
	return out, nil
}
