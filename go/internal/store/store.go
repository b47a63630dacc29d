package store

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by Get when a key holds no value.
var ErrNotFound = errors.New("key not found")

// KV is a key-value tree with prefix subscriptions. Keys are slash separated
// paths; values are JSON documents. Every write is last-write-wins.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) (map[string][]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error

	// Watch delivers an Event for every change under prefix until ctx is
	// done, then closes the channel. Events carry no value: subscribers
	// re-read what they need.
	Watch(ctx context.Context, prefix string) (<-chan Event, error)

	Close() error
}

// Op is the kind of change an Event reports.
type Op string

const (
	OpPut    Op = "put"
	OpDelete Op = "delete"
	// OpResync means changes may have been missed (reconnect) and
	// subscribers should re-read everything under their prefix.
	OpResync Op = "resync"
)

// Event reports a change to a single key.
type Event struct {
	Key string
	Op  Op
}

// Join builds a key from path segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}
