package kv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/bastiangx/tagserve/internal/logger"
	"github.com/charmbracelet/log"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/pb"
)

// BadgerConfig configures a badger backed store.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path       string
	InMemory   bool
	SyncWrites bool
	// GCInterval is how often the value log is collected. Zero disables it.
	GCInterval     time.Duration
	GCDiscardRatio float64
	// Logger receives badger's own output. Nil silences it.
	Logger *log.Logger
}

// DefaultBadgerConfig returns the on-disk defaults for path.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a config for a throwaway store, mostly for tests.
func InMemoryConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

// badgerLogger adapts charm log to badger.Logger.
type badgerLogger struct {
	l *log.Logger
}

func (b badgerLogger) Errorf(format string, args ...any)   { b.l.Errorf(format, args...) }
func (b badgerLogger) Warningf(format string, args ...any) { b.l.Warnf(format, args...) }
func (b badgerLogger) Infof(format string, args ...any)    { b.l.Debugf(format, args...) }
func (b badgerLogger) Debugf(format string, args ...any)   { b.l.Debugf(format, args...) }

// Badger is a Store on top of an embedded badger database.
// Watches are served by badger's subscription feed.
type Badger struct {
	db  *badger.DB
	log *log.Logger

	mu      sync.Mutex
	closed  bool
	cancels map[int]context.CancelFunc
	nextID  int
	wg      sync.WaitGroup

	stopGC chan struct{}
	gcDone chan struct{}
}

// OpenBadger opens or creates the database described by cfg.
func OpenBadger(cfg BadgerConfig) (*Badger, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("kv: path is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(badgerLogger{l: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}

	b := &Badger{
		db:      db,
		log:     logger.New("kv"),
		cancels: make(map[int]context.CancelFunc),
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		b.stopGC = make(chan struct{})
		b.gcDone = make(chan struct{})
		go b.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return b, nil
}

func (b *Badger) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Badger) Get(key string) ([]byte, bool, error) {
	if b.isClosed() {
		return nil, false, ErrClosed
	}
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

func (b *Badger) Set(key string, value []byte) error {
	if b.isClosed() {
		return ErrClosed
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (b *Badger) Remove(key string) error {
	if b.isClosed() {
		return ErrClosed
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}

// Watch subscribes to changes of key. Subscriptions start asynchronously,
// so a write racing the Watch call may be missed. Deletes are reported
// with ok=false.
func (b *Badger) Watch(key string, fn WatchFunc) func() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	id := b.nextID
	b.nextID++
	b.cancels[id] = cancel
	b.wg.Add(1)
	b.mu.Unlock()

	match := []pb.Match{{Prefix: []byte(key)}}
	go func() {
		defer b.wg.Done()
		err := b.db.Subscribe(ctx, func(list *badger.KVList) error {
			for _, item := range list.GetKv() {
				if string(item.GetKey()) != key {
					continue
				}
				value := item.GetValue()
				fn(value, len(value) > 0)
			}
			return nil
		}, match)
		if err != nil && !errors.Is(err, context.Canceled) {
			b.log.Debugf("Watch on %q ended: %v", key, err)
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.cancels[id]; ok {
			c()
			delete(b.cancels, id)
		}
	}
}

// Close stops watches and the GC loop, then closes the database.
func (b *Badger) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for id, c := range b.cancels {
		c()
		delete(b.cancels, id)
	}
	b.mu.Unlock()

	b.wg.Wait()
	if b.stopGC != nil {
		close(b.stopGC)
		<-b.gcDone
	}
	return b.db.Close()
}

func (b *Badger) runGC(interval time.Duration, ratio float64) {
	defer close(b.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopGC:
			return
		case <-ticker.C:
			err := b.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				b.log.Warnf("Value log GC failed: %v", err)
			}
		}
	}
}

var _ Store = (*Badger)(nil)
