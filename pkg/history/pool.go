package history

import (
	"sync"

	"github.com/bastiangx/tagserve/pkg/kv"
)

// Pool hands out one Store per bucket id, loading each on first use.
type Pool struct {
	mu      sync.Mutex
	kv      kv.Store
	cfg     Config
	buckets map[string]*Store
}

// NewPool creates a pool backed by store.
func NewPool(store kv.Store, cfg Config) *Pool {
	return &Pool{
		kv:      store,
		cfg:     cfg,
		buckets: make(map[string]*Store),
	}
}

// Load returns the bucket for id, or nil for an empty id.
func (p *Pool) Load(id string) *Store {
	if id == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.buckets[id]; ok {
		return s
	}
	s := Open(p.kv, id, p.cfg)
	p.buckets[id] = s
	return s
}

// Close stops every bucket's watch.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, s := range p.buckets {
		s.Close()
		delete(p.buckets, id)
	}
}
