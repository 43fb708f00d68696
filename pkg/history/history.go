// Package history keeps the per-field lists of previously submitted inputs.
//
// Each bucket is persisted in the kv store as a versioned JSON document:
//
//	{"schemaVersion": 1, "records": ["most recent", "...", "oldest"]}
//
// A document with an unknown schema version is treated as empty and the
// bucket becomes read-only for the session, so an older build never
// overwrites history written by a newer one.
package history

import (
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bastiangx/tagserve/internal/logger"
	"github.com/bastiangx/tagserve/internal/metrics"
	"github.com/bastiangx/tagserve/internal/utils"
	"github.com/bastiangx/tagserve/pkg/kv"
	"github.com/charmbracelet/log"
)

// SchemaVersion is the document version this package reads and writes.
const SchemaVersion = 1

// KeyPrefix is prepended to the bucket id to form the kv key.
const KeyPrefix = "history:"

var (
	// ErrReadOnly is returned by Record when the stored document has an unknown schema.
	ErrReadOnly = errors.New("history: bucket is read-only")
	// ErrTooLong is returned by Record for inputs over the configured length.
	ErrTooLong = errors.New("history: input too long")
)

// Config bounds a bucket.
type Config struct {
	MaxRecords     int
	MaxInputLength int
}

// DefaultConfig returns the stock limits: 1000 records of at most 256 characters.
func DefaultConfig() Config {
	return Config{MaxRecords: 1000, MaxInputLength: 256}
}

// Entry is one remembered input.
// RecordedAt is zero for entries loaded from the store.
type Entry struct {
	Term       string
	RecordedAt time.Time
}

type document struct {
	SchemaVersion int      `json:"schemaVersion"`
	Records       []string `json:"records"`
}

// Store is a single history bucket.
type Store struct {
	mu       sync.RWMutex
	kv       kv.Store
	key      string
	cfg      Config
	entries  []Entry
	writable bool
	now      func() time.Time
	log      *log.Logger
	unwatch  func()
}

// Open loads the bucket id from store and keeps it in sync with later
// external changes of the same key.
func Open(store kv.Store, id string, cfg Config) *Store {
	s := &Store{
		kv:       store,
		key:      KeyPrefix + id,
		cfg:      cfg,
		writable: true,
		now:      time.Now,
		log:      logger.New("history"),
	}

	start := time.Now()
	s.reload()
	s.log.Debugf("Loaded %s with %d records in %v", s.key, len(s.entries), time.Since(start))

	s.unwatch = store.Watch(s.key, func([]byte, bool) { s.reload() })
	return s
}

// reload replaces the in-memory entries with the stored document.
func (s *Store) reload() {
	var doc document
	ok, err := kv.GetJSON(s.kv, s.key, &doc)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.log.Warnf("Reading %s: %v", s.key, err)
		s.entries = nil
		return
	}
	if !ok {
		s.entries = nil
		return
	}
	if doc.SchemaVersion != SchemaVersion {
		s.log.Warnf("Unknown history schema version %d in %s, history is read-only for this session",
			doc.SchemaVersion, s.key)
		s.writable = false
		s.entries = nil
		return
	}

	seen := make(map[string]time.Time, len(s.entries))
	for _, e := range s.entries {
		seen[e.Term] = e.RecordedAt
	}
	entries := make([]Entry, 0, len(doc.Records))
	for _, r := range doc.Records {
		entries = append(entries, Entry{Term: r, RecordedAt: seen[r]})
	}
	s.entries = entries
}

// Record puts term at the front of the bucket, dropping an older copy of it
// and the oldest entry when the bucket is full. Surrounding whitespace is
// trimmed and empty input is ignored. Persistence failures are logged only.
func (s *Store) Record(term string) error {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil
	}
	if s.cfg.MaxInputLength > 0 && utf8.RuneCountInString(term) > s.cfg.MaxInputLength {
		s.log.Warnf("Input is too long to be saved in history (length: %d)", utf8.RuneCountInString(term))
		metrics.HistoryWrites.WithLabelValues("skipped").Inc()
		return ErrTooLong
	}

	s.mu.Lock()
	if !s.writable {
		s.mu.Unlock()
		metrics.HistoryWrites.WithLabelValues("skipped").Inc()
		return ErrReadOnly
	}

	for i, e := range s.entries {
		if e.Term == term {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
	if s.cfg.MaxRecords > 0 && len(s.entries) >= s.cfg.MaxRecords {
		s.entries = s.entries[:s.cfg.MaxRecords-1]
	}
	s.entries = append([]Entry{{Term: term, RecordedAt: s.now()}}, s.entries...)
	doc := document{SchemaVersion: SchemaVersion, Records: termsOf(s.entries)}
	s.mu.Unlock()

	start := time.Now()
	if err := kv.SetJSON(s.kv, s.key, doc); err != nil {
		s.log.Warnf("Persisting %s: %v", s.key, err)
		metrics.HistoryWrites.WithLabelValues("error").Inc()
		return nil
	}
	metrics.HistoryWrites.WithLabelValues("ok").Inc()
	s.log.Debugf("Wrote %d records to %s in %v", len(doc.Records), s.key, time.Since(start))
	return nil
}

// List returns every entry, most recent first.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.entries...)
}

// Matching returns up to limit entries whose term starts with prefix,
// ignoring case, in recency order. A limit of zero or less means no limit.
func (s *Store) Matching(prefix string, limit int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for _, e := range s.entries {
		if limit > 0 && len(out) >= limit {
			break
		}
		if utils.HasPrefixFold(e.Term, prefix) {
			out = append(out, e)
		}
	}
	return out
}

// Writable reports whether Record can still persist.
func (s *Store) Writable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writable
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops watching the kv store.
func (s *Store) Close() {
	if s.unwatch != nil {
		s.unwatch()
	}
}

// Terms extracts the terms of entries.
func Terms(entries []Entry) []string {
	return termsOf(entries)
}

func termsOf(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Term
	}
	return out
}
