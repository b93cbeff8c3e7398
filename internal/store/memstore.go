// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"bytes"
	"sort"
	"sync"

	"github.com/publiuspseudis/ember/internal/errs"
)

// memStore is an in-memory KVStore used by component tests so they don't
// depend on an on-disk pebble instance.
type memStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns an in-memory KVStore.
func NewMemory() KVStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (m *memStore) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "key not found")
	}
	return append([]byte(nil), v...), nil
}

func (m *memStore) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

func (m *memStore) IteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	m.mu.RLock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = append([]byte(nil), m.data[k]...)
	}
	m.mu.RUnlock()

	for i, k := range keys {
		if err := fn([]byte(k), values[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *memStore) Close() error { return nil }
