package autocomplete

import (
	"context"
	"sync"
	"time"

	"github.com/bastiangx/tagserve/internal/logger"
	"github.com/bastiangx/tagserve/internal/metrics"
	"github.com/bastiangx/tagserve/pkg/client"
	"github.com/bastiangx/tagserve/pkg/history"
	"github.com/bastiangx/tagserve/pkg/index"
	"github.com/bastiangx/tagserve/pkg/kv"
	"github.com/bastiangx/tagserve/pkg/suggest"
	"github.com/charmbracelet/log"
)

// Remote is the server side of autocompletion.
type Remote interface {
	CompiledIndex(ctx context.Context) ([]byte, error)
	TagSuggestions(ctx context.Context, term string, limit int) ([]client.Suggestion, error)
}

type indexState int

const (
	indexNotLoaded indexState = iota
	indexLoading
	indexReady
	indexUnavailable
)

// Session is shared by all fields of one user session.
type Session struct {
	cfg     Config
	store   kv.Store
	remote  Remote
	clock   Clock
	cache   *suggest.Cache
	history *history.Pool
	log     *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	idxState  indexState
	completer suggest.Completer
	waiting   map[*Controller]struct{}
	loads     sync.WaitGroup
}

// Option customizes a Session.
type Option func(*Session)

// WithRemote sets the server client. Without one, the compiled index is
// never fetched and only history and a preloaded index are used.
func WithRemote(r Remote) Option {
	return func(s *Session) { s.remote = r }
}

// WithClock replaces the wall clock used for debouncing.
func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithIndex preloads a compiled index so it is never fetched.
func WithIndex(ci *index.CompiledIndex) Option {
	return func(s *Session) {
		s.completer = suggest.NewSearcher(ci)
		s.idxState = indexReady
	}
}

// WithHistoryConfig bounds the history buckets.
func WithHistoryConfig(cfg history.Config) Option {
	return func(s *Session) { s.history = history.NewPool(s.store, cfg) }
}

// NewSession wires a session on top of store.
func NewSession(cfg Config, store kv.Store, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:     cfg,
		store:   store,
		clock:   realClock{},
		cache:   suggest.NewCache(),
		log:     logger.New("autocomplete"),
		ctx:     ctx,
		cancel:  cancel,
		waiting: make(map[*Controller]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.history == nil {
		s.history = history.NewPool(store, history.DefaultConfig())
	}
	return s
}

// Cache exposes the session suggestion cache.
func (s *Session) Cache() *suggest.Cache {
	return s.cache
}

// Histories exposes the history buckets.
func (s *Session) Histories() *history.Pool {
	return s.history
}

// Close cancels in-flight requests and stops history watches.
func (s *Session) Close() {
	s.cancel()
	s.loads.Wait()
	s.history.Close()
}

// ensureIndex starts the one compiled index fetch of the session and
// returns the current index state. c is refreshed once a pending load ends.
func (s *Session) ensureIndex(c *Controller) indexState {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.idxState {
	case indexNotLoaded:
		if s.remote == nil {
			s.idxState = indexUnavailable
			return s.idxState
		}
		s.idxState = indexLoading
		s.loads.Add(1)
		go s.loadIndex()
		fallthrough
	case indexLoading:
		if c != nil {
			s.waiting[c] = struct{}{}
		}
		return indexLoading
	default:
		return s.idxState
	}
}

func (s *Session) loadIndex() {
	defer s.loads.Done()
	start := time.Now()

	var completer suggest.Completer
	state := indexUnavailable
	blob, err := s.remote.CompiledIndex(s.ctx)
	if err != nil {
		metrics.IndexLoads.WithLabelValues("fetch_error").Inc()
		s.log.Errorf("Failed to fetch the compiled index: %v", err)
	} else if ci, derr := index.Decode(blob); derr != nil {
		metrics.IndexLoads.WithLabelValues("decode_error").Inc()
		s.log.Errorf("Local autocomplete is unavailable: %v", derr)
	} else {
		metrics.IndexLoads.WithLabelValues("ok").Inc()
		s.log.Debugf("Loaded compiled index with %d tags in %v", ci.RecordCount(), time.Since(start))
		completer = suggest.NewSearcher(ci)
		state = indexReady
	}

	s.mu.Lock()
	if s.idxState != indexLoading {
		// SetIndex won the race
		s.mu.Unlock()
		return
	}
	s.completer = completer
	s.idxState = state
	waiting := s.waiting
	s.waiting = make(map[*Controller]struct{})
	s.mu.Unlock()

	for c := range waiting {
		c.indexSettled()
	}
}

// SetIndex replaces the compiled index, for example after the local dump
// changed on disk. Cached suggestions are dropped; fields pick up the new
// index on their next input.
func (s *Session) SetIndex(ci *index.CompiledIndex) {
	s.mu.Lock()
	s.completer = suggest.NewSearcher(ci)
	s.idxState = indexReady
	waiting := s.waiting
	s.waiting = make(map[*Controller]struct{})
	s.mu.Unlock()

	s.cache.Reset()
	metrics.IndexLoads.WithLabelValues("replaced").Inc()
	s.log.Debugf("Compiled index replaced: %d tags", ci.RecordCount())
	for c := range waiting {
		c.indexSettled()
	}
}

func (s *Session) forget(c *Controller) {
	s.mu.Lock()
	delete(s.waiting, c)
	s.mu.Unlock()
}

func (s *Session) searcher() suggest.Completer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completer
}

// hidden returns the tags whose associations are filtered out of local results.
func (s *Session) hidden() suggest.Hidden {
	if len(s.cfg.HiddenTags) == 0 {
		return nil
	}
	if s.cfg.UnfilterKey != "" && kv.Bool(s.store, s.cfg.UnfilterKey) {
		return nil
	}
	return suggest.NewHidden(s.cfg.HiddenTags...)
}

// historyLimit returns how many history items to show while typing,
// or false when history suggestions are switched off.
func (s *Session) historyLimit() (int, bool) {
	if s.cfg.HistoryHiddenKey != "" && kv.Bool(s.store, s.cfg.HistoryHiddenKey) {
		return 0, false
	}
	if s.cfg.HistoryLimitKey == "" {
		return s.cfg.HistoryWhenTyping, true
	}
	return kv.Int(s.store, s.cfg.HistoryLimitKey, s.cfg.HistoryWhenTyping), true
}

func (s *Session) enabled(f Field) bool {
	return f.Condition == "" || kv.Bool(s.store, f.Condition)
}

func (s *Session) fetchSuggestions(ctx context.Context, term string) ([]suggest.Item, error) {
	res, err := s.remote.TagSuggestions(ctx, term, s.cfg.MaxSuggestions)
	if err != nil {
		return nil, err
	}
	return client.Items(res, term), nil
}
