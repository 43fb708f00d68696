package suggest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheNormalization(t *testing.T) {
	c := NewCache()
	items := []Item{{Kind: KindLocal, Value: "mare", Count: 20}}
	c.Put("mar", items)

	for _, term := range []string{"mar", " mar", " Mar", "  MAR"} {
		got, ok := c.Get(term)
		assert.True(t, ok, "%q should hit", term)
		assert.Equal(t, items, got)
	}

	_, ok := c.Get("mar ")
	assert.False(t, ok, "trailing space is a distinct term")
	assert.Equal(t, 1, c.Len())
}

func TestCacheEmptyTerm(t *testing.T) {
	c := NewCache()
	c.Put("   ", []Item{{Value: "x"}})
	_, ok := c.Get("")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestCachePutReplaces(t *testing.T) {
	c := NewCache()
	c.Put("fo", []Item{{Value: "fog"}})
	c.Put("FO", []Item{{Value: "forest"}})

	got, ok := c.Get("fo")
	require.True(t, ok)
	assert.Equal(t, "forest", got[0].Value)
	assert.Equal(t, 1, c.Len())
}

func TestCachePrefixed(t *testing.T) {
	c := NewCache()
	for _, term := range []string{"mar", "Mare", "market", "fog"} {
		c.Put(term, nil)
	}
	assert.Equal(t, []string{"mar", "mare", "market"}, c.Prefixed("MAR"))
	assert.Len(t, c.Prefixed(""), 4)
}

func TestCacheDoFetchesOnce(t *testing.T) {
	c := NewCache()
	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(ctx context.Context, term string) ([]Item, error) {
		calls.Add(1)
		<-release
		return []Item{{Kind: KindLocal, Value: "mare", Count: 20}}, nil
	}

	var wg sync.WaitGroup
	results := make([][]Item, 4)
	for i, term := range []string{"mar", " mar", " Mar", "  MAR"} {
		wg.Add(1)
		go func(i int, term string) {
			defer wg.Done()
			items, err := c.Do(context.Background(), term, fetch)
			assert.NoError(t, err)
			results[i] = items
		}(i, term)
	}
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, "mare", r[0].Value)
	}

	_, err := c.Do(context.Background(), "mar ", fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCacheDoError(t *testing.T) {
	c := NewCache()
	boom := errors.New("boom")
	_, err := c.Do(context.Background(), "mar", func(context.Context, string) ([]Item, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	_, ok := c.Get("mar")
	assert.False(t, ok)
}

func TestCacheDoContextCanceled(t *testing.T) {
	c := NewCache()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	_, err := c.Do(ctx, "mar", func(context.Context, string) ([]Item, error) {
		<-done
		return nil, nil
	})
	close(done)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCacheReset(t *testing.T) {
	c := NewCache()
	c.Put("mar", []Item{{Value: "mare"}})
	c.Put("for", []Item{{Value: "forest"}})
	require.Equal(t, 2, c.Len())

	c.Reset()
	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("mar")
	assert.False(t, ok)
	assert.Empty(t, c.Prefixed(""))

	c.Put("mar", nil)
	assert.Equal(t, 1, c.Len())
}
