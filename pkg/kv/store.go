// Package kv is the persisted key-value collaborator used for history buckets,
// feature flags and the cached compiled index blob.
package kv

import "errors"

// ErrClosed is returned by every operation on a closed store.
var ErrClosed = errors.New("kv: store closed")

// WatchFunc is called with the new value of a watched key.
// ok is false when the key was removed.
type WatchFunc func(value []byte, ok bool)

// Store is a flat string keyed byte store.
type Store interface {
	// Get returns the value for key. ok is false when the key does not exist.
	Get(key string) (value []byte, ok bool, err error)
	Set(key string, value []byte) error
	Remove(key string) error
	// Watch calls fn after every change of key until cancel is called.
	Watch(key string, fn WatchFunc) (cancel func())
	Close() error
}
