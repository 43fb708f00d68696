package kv

import (
	"bytes"
	"sync"
)

type watcher struct {
	fn WatchFunc
}

// Memory is a map backed Store. Watchers run synchronously on the writing
// goroutine, after the store lock is released.
type Memory struct {
	mu       sync.RWMutex
	data     map[string][]byte
	watchers map[string][]*watcher
	closed   bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		data:     make(map[string][]byte),
		watchers: make(map[string][]*watcher),
	}
}

func (m *Memory) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

func (m *Memory) Set(key string, value []byte) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.data[key] = bytes.Clone(value)
	ws := m.snapshot(key)
	m.mu.Unlock()

	for _, w := range ws {
		w.fn(bytes.Clone(value), true)
	}
	return nil
}

func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	_, existed := m.data[key]
	delete(m.data, key)
	ws := m.snapshot(key)
	m.mu.Unlock()

	if !existed {
		return nil
	}
	for _, w := range ws {
		w.fn(nil, false)
	}
	return nil
}

func (m *Memory) Watch(key string, fn WatchFunc) func() {
	w := &watcher{fn: fn}
	m.mu.Lock()
	m.watchers[key] = append(m.watchers[key], w)
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			ws := m.watchers[key]
			for i, other := range ws {
				if other == w {
					m.watchers[key] = append(ws[:i:i], ws[i+1:]...)
					break
				}
			}
			if len(m.watchers[key]) == 0 {
				delete(m.watchers, key)
			}
		})
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.watchers = make(map[string][]*watcher)
	return nil
}

// snapshot copies the watcher list for key. Caller holds m.mu.
func (m *Memory) snapshot(key string) []*watcher {
	ws := m.watchers[key]
	if len(ws) == 0 {
		return nil
	}
	return append([]*watcher(nil), ws...)
}

var _ Store = (*Memory)(nil)
