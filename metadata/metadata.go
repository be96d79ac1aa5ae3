// Package metadata stores the opaque descriptive strings attached to
// producers and events. Values are never interpreted.
package metadata

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when no value is stored under a key.
var ErrNotFound = errors.New("metadata: not found")

// ProducerKey and EventKey build the keys used by the engine.
func ProducerKey(producerID string) string { return "producer:" + producerID }
func EventKey(eventID string) string       { return "event:" + eventID }

// Memory is an in-process metadata store.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Put(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}
