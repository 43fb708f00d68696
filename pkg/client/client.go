// Package client talks to the two autocomplete endpoints: the compiled
// index download and the server-side tag suggestions.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bastiangx/tagserve/internal/encoding/jsonx"
	"github.com/bastiangx/tagserve/internal/logger"
	"github.com/bastiangx/tagserve/internal/metrics"
	"github.com/bastiangx/tagserve/pkg/kv"
	"github.com/bastiangx/tagserve/pkg/suggest"
	"github.com/cenkalti/backoff/v5"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/hashicorp/go-cleanhttp"
	"golang.org/x/time/rate"
)

// ErrMalformedResponse is returned when a suggestion response is not valid JSON.
var ErrMalformedResponse = errors.New("client: malformed suggestion response")

// HTTPError is a non-2xx response.
type HTTPError struct {
	Method string
	URL    string
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s request failed (%d: %s)", e.Method, e.URL, e.Status, http.StatusText(e.Status))
}

// Config points the client at a server.
type Config struct {
	BaseURL     string
	IndexPath   string
	SuggestPath string
	Timeout     time.Duration
	MaxAttempts int
	MinDelay    time.Duration
	MaxDelay    time.Duration
	// RateLimit caps outgoing requests per second, retries included.
	// Zero disables the limiter.
	RateLimit float64
	RateBurst int
}

// DefaultConfig returns the stock endpoint paths and retry policy.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "http://localhost:4000",
		IndexPath:   "/autocomplete/compiled",
		SuggestPath: "/autocomplete/tags",
		Timeout:     5 * time.Second,
		MaxAttempts: 3,
		MinDelay:    200 * time.Millisecond,
		MaxDelay:    1500 * time.Millisecond,
		RateLimit:   10,
		RateBurst:   5,
	}
}

// Suggestion is one server-side match. Alias is empty for direct matches.
type Suggestion struct {
	Alias     string `json:"alias,omitempty"`
	Canonical string `json:"canonical"`
	Images    int    `json:"images"`
}

type suggestionsResponse struct {
	Suggestions []Suggestion `json:"suggestions"`
}

const (
	blobKey     = "compiled-index:blob"
	blobDateKey = "compiled-index:key"
)

// Client is safe for concurrent use.
type Client struct {
	cfg  Config
	base *url.URL
	// withCookies carries the session cookies for suggestion requests.
	// anon is used for the compiled index, which never sends credentials.
	withCookies *http.Client
	anon        *http.Client
	limiter     *rate.Limiter
	blobs       kv.Store
	now         func() time.Time
	log         *log.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithBlobCache stores the downloaded compiled index in store, keyed by day.
func WithBlobCache(store kv.Store) Option {
	return func(c *Client) { c.blobs = store }
}

// WithClock replaces time.Now for the cache-bust key.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a client for cfg.
func New(cfg Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("invalid max attempts %d", cfg.MaxAttempts)
	}
	if cfg.MaxDelay < cfg.MinDelay {
		return nil, fmt.Errorf("max delay %v is below min delay %v", cfg.MaxDelay, cfg.MinDelay)
	}
	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("invalid rate limit %v", cfg.RateLimit)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	withCookies := cleanhttp.DefaultPooledClient()
	withCookies.Jar = jar
	withCookies.Timeout = cfg.Timeout
	anon := cleanhttp.DefaultPooledClient()
	anon.Timeout = cfg.Timeout

	c := &Client{
		cfg:         cfg,
		base:        base,
		withCookies: withCookies,
		anon:        anon,
		now:         time.Now,
		log:         logger.New("client"),
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, cfg.RateBurst))
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CacheBustKey derives the daily key for the compiled index URL from the
// calendar date in t's location, so time.Now() rolls over at local midnight
// like browser clients do. The month is zero based, matching the keys the
// server has always seen.
func CacheBustKey(t time.Time) string {
	return fmt.Sprintf("%d-%d-%d", t.Year(), int(t.Month())-1, t.Day())
}

// CompiledIndex downloads the compiled index blob, or returns today's copy
// from the blob cache.
func (c *Client) CompiledIndex(ctx context.Context) ([]byte, error) {
	key := CacheBustKey(c.now())
	if blob, ok := c.cachedBlob(key); ok {
		metrics.IndexLoads.WithLabelValues("cached").Inc()
		c.log.Debugf("Using cached compiled index for %s (%d bytes)", key, len(blob))
		return blob, nil
	}

	u := c.endpoint(c.cfg.IndexPath, url.Values{"vsn": {"2"}, "key": {key}})
	resp, err := c.do(ctx, c.anon, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read compiled index: %w", err)
	}
	c.storeBlob(key, blob)
	return blob, nil
}

// TagSuggestions asks the server for at most limit completions of term.
// The term is expected to be normalized by the caller.
func (c *Client) TagSuggestions(ctx context.Context, term string, limit int) ([]Suggestion, error) {
	u := c.endpoint(c.cfg.SuggestPath, url.Values{
		"vsn":   {"2"},
		"term":  {term},
		"limit": {strconv.Itoa(limit)},
	})
	resp, err := c.do(ctx, c.withCookies, u)
	if err != nil {
		metrics.RemoteFetches.WithLabelValues("error").Inc()
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RemoteFetches.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("read suggestions: %w", err)
	}
	var out suggestionsResponse
	if err := jsonx.Unmarshal(body, &out); err != nil {
		metrics.RemoteFetches.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	metrics.RemoteFetches.WithLabelValues("ok").Inc()
	return out.Suggestions, nil
}

// Items converts server suggestions into display items for term.
func Items(suggestions []Suggestion, term string) []suggest.Item {
	if len(suggestions) == 0 {
		return nil
	}
	items := make([]suggest.Item, 0, len(suggestions))
	for _, s := range suggestions {
		it := suggest.Item{
			Kind:        suggest.KindLocal,
			Value:       s.Canonical,
			Count:       s.Images,
			MatchLength: len(term),
		}
		if s.Alias != "" {
			it.Kind = suggest.KindAlias
			it.Alias = s.Alias
		}
		items = append(items, it)
	}
	return items
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.base.JoinPath(path)
	u.RawQuery = query.Encode()
	return u.String()
}

// do issues a GET with retries. Network errors and 5xx responses are retried
// with exponential backoff and jitter, anything else is returned right away.
func (c *Client) do(ctx context.Context, hc *http.Client, u string) (*http.Response, error) {
	sequenceID := "rs-" + uuid.NewString()
	attempt := 0

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.MinDelay
	b.MaxInterval = c.cfg.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.5

	op := func() (*http.Response, error) {
		attempt++
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, backoff.Permanent(err)
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("X-Retry-Sequence-Id", sequenceID)
		req.Header.Set("X-Request-Id", "req-"+uuid.NewString())
		req.Header.Set("X-Retry-Attempt", strconv.Itoa(attempt))

		resp, err := hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		herr := &HTTPError{Method: http.MethodGet, URL: u, Status: resp.StatusCode}
		if resp.StatusCode >= 500 {
			return nil, herr
		}
		return nil, backoff.Permanent(herr)
	}

	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Warnf("[Attempt %d/%d] GET %s failed: %v. Retrying in %v",
				attempt, c.cfg.MaxAttempts, u, err, next)
		}),
	)
	if err != nil {
		c.log.Debugf("GET %s gave up after %d attempts: %v", u, attempt, err)
		return nil, err
	}
	return resp, nil
}

func (c *Client) cachedBlob(key string) ([]byte, bool) {
	if c.blobs == nil {
		return nil, false
	}
	stored, ok, err := c.blobs.Get(blobDateKey)
	if err != nil || !ok || string(stored) != key {
		return nil, false
	}
	blob, ok, err := c.blobs.Get(blobKey)
	if err != nil || !ok || len(blob) == 0 {
		return nil, false
	}
	return blob, true
}

func (c *Client) storeBlob(key string, blob []byte) {
	if c.blobs == nil {
		return
	}
	if err := c.blobs.Set(blobKey, blob); err != nil {
		c.log.Warnf("Caching compiled index: %v", err)
		return
	}
	if err := c.blobs.Set(blobDateKey, []byte(key)); err != nil {
		c.log.Warnf("Caching compiled index key: %v", err)
	}
}

// String is used in logs.
func (c *Client) String() string {
	return strings.TrimSuffix(c.base.String(), "/")
}
