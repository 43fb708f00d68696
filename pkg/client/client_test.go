package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bastiangx/tagserve/pkg/kv"
	"github.com/bastiangx/tagserve/pkg/suggest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.BaseURL = url
	cfg.MinDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	return cfg
}

func TestCacheBustKey(t *testing.T) {
	day := time.Date(2025, time.March, 7, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-2-7", CacheBustKey(day))

	local := time.Date(2025, time.January, 1, 1, 0, 0, 0, time.FixedZone("east", 5*3600))
	assert.Equal(t, "2025-0-1", CacheBustKey(local), "the local date is used, not UTC")
}

func TestTagSuggestions(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"suggestions":[
			{"alias":"marvelous","canonical":"beautiful","images":30},
			{"alias":null,"canonical":"mare","images":20},
			{"canonical":"market","images":10}]}`))
	}))
	defer srv.Close()

	c, err := New(testConfig(srv.URL))
	require.NoError(t, err)

	res, err := c.TagSuggestions(context.Background(), "mar", 10)
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, "/autocomplete/tags", got.URL.Path)
	assert.Equal(t, "mar", got.URL.Query().Get("term"))
	assert.Equal(t, "10", got.URL.Query().Get("limit"))
	assert.Equal(t, "2", got.URL.Query().Get("vsn"))
	assert.True(t, strings.HasPrefix(got.Header.Get("X-Request-Id"), "req-"))
	assert.True(t, strings.HasPrefix(got.Header.Get("X-Retry-Sequence-Id"), "rs-"))
	assert.Equal(t, "1", got.Header.Get("X-Retry-Attempt"))

	labels := suggest.Labels(Items(res, "mar"))
	assert.Equal(t, []string{"marvelous → beautiful  30", "mare  20", "market  10"}, labels)
}

func TestTagSuggestionsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"suggestions": [`))
	}))
	defer srv.Close()

	c, err := New(testConfig(srv.URL))
	require.NoError(t, err)
	_, err = c.TagSuggestions(context.Background(), "mar", 10)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	var lastAttempt, firstSeq, lastSeq atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n == 1 {
			firstSeq.Store(r.Header.Get("X-Retry-Sequence-Id"))
		}
		lastSeq.Store(r.Header.Get("X-Retry-Sequence-Id"))
		lastAttempt.Store(r.Header.Get("X-Retry-Attempt"))
		if n < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"suggestions":[]}`))
	}))
	defer srv.Close()

	c, err := New(testConfig(srv.URL))
	require.NoError(t, err)
	res, err := c.TagSuggestions(context.Background(), "x", 5)
	require.NoError(t, err)
	assert.Empty(t, res)

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "3", lastAttempt.Load())
	assert.Equal(t, firstSeq.Load(), lastSeq.Load())
}

func TestGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := New(testConfig(srv.URL))
	require.NoError(t, err)
	_, err = c.TagSuggestions(context.Background(), "x", 5)

	var herr *HTTPError
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, http.StatusServiceUnavailable, herr.Status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := New(testConfig(srv.URL))
	require.NoError(t, err)
	_, err = c.TagSuggestions(context.Background(), "x", 5)

	var herr *HTTPError
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, http.StatusNotFound, herr.Status)
	assert.Contains(t, herr.Error(), "404")
	assert.Equal(t, int32(1), calls.Load())
}

func TestCompiledIndex(t *testing.T) {
	var calls atomic.Int32
	var query atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		query.Store(r.URL.RawQuery)
		assert.Equal(t, "/autocomplete/compiled", r.URL.Path)
		w.Write([]byte("blob"))
	}))
	defer srv.Close()

	day := time.Date(2025, time.June, 2, 12, 0, 0, 0, time.UTC)
	now := day
	store := kv.NewMemory()
	c, err := New(testConfig(srv.URL), WithBlobCache(store), WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	blob, err := c.CompiledIndex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), blob)
	assert.Equal(t, "key=2025-5-2&vsn=2", query.Load())

	blob, err = c.CompiledIndex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), blob)
	assert.Equal(t, int32(1), calls.Load(), "same day is served from the blob cache")

	now = day.AddDate(0, 0, 1)
	_, err = c.CompiledIndex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNewValidates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAttempts = 0
	_, err := New(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.MaxDelay = cfg.MinDelay / 2
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"suggestions":[]}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.RateLimit = 0.01
	cfg.RateBurst = 1
	c, err := New(cfg)
	require.NoError(t, err)

	_, err = c.TagSuggestions(context.Background(), "a", 5)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.TagSuggestions(ctx, "b", 5)
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	cfg.RateLimit = -1
	_, err = New(cfg)
	assert.Error(t, err)
}
