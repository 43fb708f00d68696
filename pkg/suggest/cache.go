package suggest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bastiangx/tagserve/internal/metrics"
	"github.com/bastiangx/tagserve/internal/utils"
	"github.com/charmbracelet/log"
	"github.com/tchap/go-patricia/v2/patricia"
	"golang.org/x/sync/singleflight"
)

// Entry is one cached suggestion list.
type Entry struct {
	Items     []Item
	FetchedAt time.Time
}

// FetchFunc produces suggestions for a term on a cache miss.
type FetchFunc func(ctx context.Context, term string) ([]Item, error)

// Cache maps normalized terms to suggestion lists for the whole session.
// Entries never expire. Concurrent Do calls for the same normalized term
// share a single fetch.
type Cache struct {
	mu    sync.RWMutex
	trie  *patricia.Trie
	size  int
	group singleflight.Group
	now   func() time.Time
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		trie: patricia.NewTrie(),
		now:  time.Now,
	}
}

// Normalize turns a term into its cache key: leading whitespace is trimmed
// and the rest is case folded. Trailing whitespace is kept, "mar " and "mar"
// are different keys.
func Normalize(term string) string {
	return utils.Fold(utils.TrimLeftSpace(term))
}

// Get returns the cached items for term.
func (c *Cache) Get(term string) ([]Item, bool) {
	key := Normalize(term)
	if key == "" {
		return nil, false
	}

	c.mu.RLock()
	item := c.trie.Get(patricia.Prefix(key))
	c.mu.RUnlock()

	if item == nil {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return item.(*Entry).Items, true
}

func (c *Cache) peek(key string) ([]Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if item := c.trie.Get(patricia.Prefix(key)); item != nil {
		return item.(*Entry).Items, true
	}
	return nil, false
}

// Put stores items under the normalized term, replacing any previous entry.
// Terms that normalize to nothing are ignored.
func (c *Cache) Put(term string, items []Item) {
	key := Normalize(term)
	if key == "" {
		return
	}
	entry := &Entry{Items: items, FetchedAt: c.now()}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.trie.Insert(patricia.Prefix(key), entry) {
		c.trie.Set(patricia.Prefix(key), entry)
		return
	}
	c.size++
}

// Do returns the cached items for term or calls fetch once for every
// concurrent caller asking for the same normalized term. Successful results
// are stored before the callers are released.
func (c *Cache) Do(ctx context.Context, term string, fetch FetchFunc) ([]Item, error) {
	if items, ok := c.Get(term); ok {
		return items, nil
	}
	key := Normalize(term)
	if key == "" {
		return nil, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		if items, ok := c.peek(key); ok {
			return items, nil
		}
		items, err := fetch(context.WithoutCancel(ctx), term)
		if err != nil {
			return nil, err
		}
		c.Put(key, items)
		return items, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			metrics.RemoteFetches.WithLabelValues("shared").Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		items, _ := res.Val.([]Item)
		return items, nil
	}
}

// Prefixed lists the cached keys starting with the normalized prefix,
// sorted.
func (c *Cache) Prefixed(prefix string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var keys []string
	visit := func(p patricia.Prefix, _ patricia.Item) error {
		keys = append(keys, string(p))
		return nil
	}

	var err error
	if key := Normalize(prefix); key == "" {
		err = c.trie.Visit(visit)
	} else {
		err = c.trie.VisitSubtree(patricia.Prefix(key), visit)
	}
	if err != nil {
		log.Errorf("Error walking suggestion cache: %v", err)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of cached terms.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.size
}

// Reset drops every entry. Fetches still in flight store their result afterwards.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trie = patricia.NewTrie()
	c.size = 0
}
