package autocomplete

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bastiangx/tagserve/pkg/client"
	"github.com/bastiangx/tagserve/pkg/index"
	"github.com/stretchr/testify/require"
)

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fakeClock fires timers synchronously from Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type fakeRemote struct {
	mu          sync.Mutex
	blob        []byte
	blobErr     error
	gate        chan struct{}
	indexCalls  int
	suggestions map[string][]client.Suggestion
	terms       []string
	limits      []int
	onFetch     func(term string)
}

func (r *fakeRemote) CompiledIndex(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	r.indexCalls++
	gate := r.gate
	r.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.blobErr != nil {
		return nil, r.blobErr
	}
	return r.blob, nil
}

func (r *fakeRemote) TagSuggestions(ctx context.Context, term string, limit int) ([]client.Suggestion, error) {
	r.mu.Lock()
	r.terms = append(r.terms, term)
	r.limits = append(r.limits, limit)
	hook := r.onFetch
	res, ok := r.suggestions[term]
	r.mu.Unlock()

	if hook != nil {
		hook(term)
	}
	if !ok {
		return nil, nil
	}
	return res, nil
}

func (r *fakeRemote) requested() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.terms...)
}

func (r *fakeRemote) indexFetches() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.indexCalls
}

var errOffline = errors.New("offline")

func marSuggestions() map[string][]client.Suggestion {
	return map[string][]client.Suggestion{
		"mar": {
			{Alias: "marvelous", Canonical: "beautiful", Images: 30},
			{Canonical: "mare", Images: 20},
			{Canonical: "market", Images: 10},
		},
		"t": {
			{Canonical: "artist:test", Images: 5},
		},
	}
}

func forestBlob(t *testing.T) []byte {
	t.Helper()
	blob, err := index.Encode([]index.TagRecord{
		{Name: "forest", ImageCount: 3},
		{Name: "force field", ImageCount: 1},
		{Name: "fog", ImageCount: 1},
		{Name: "flower", ImageCount: 1, Associations: []index.TagID{99}},
		{Name: "safe", ImageCount: 1200},
	})
	require.NoError(t, err)
	return blob
}

func forestIndex(t *testing.T) *index.CompiledIndex {
	t.Helper()
	ci, err := index.Decode(forestBlob(t))
	require.NoError(t, err)
	return ci
}
