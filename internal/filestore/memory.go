package filestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// Memory keeps files in a map. It is used by tests and by the memory storage
// backend option.
type Memory struct {
	mu      sync.RWMutex
	files   map[string][]byte
	saves   map[string]int
	baseURL string
}

var _ Backend = (*Memory)(nil)

func NewMemory(baseURL string) *Memory {
	return &Memory{
		files:   make(map[string][]byte),
		saves:   make(map[string]int),
		baseURL: baseURL,
	}
}

func (m *Memory) Save(_ context.Context, key string, r io.Reader) (string, error) {
	const op = "filestore.Memory.Save"

	key, err := CleanKey(key)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[key] = data
	m.saves[key]++
	return key, nil
}

func (m *Memory) Open(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.files[key]
	if !ok {
		return nil, fmt.Errorf("filestore.Memory.Open: %w: %s", ErrNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, key)
	return nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[key]
	return ok, nil
}

func (m *Memory) Path(string) string { return "" }

func (m *Memory) URL(key string) string { return joinURL(m.baseURL, key) }

// Keys lists stored keys in order.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.files))
	for k := range m.files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Saves reports how many times key has been written.
func (m *Memory) Saves(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves[key]
}

// Bytes returns a copy of the stored file, or nil.
func (m *Memory) Bytes(key string) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if data, ok := m.files[key]; ok {
		return bytes.Clone(data)
	}
	return nil
}
