package store

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

const watchBufferSize = 64

// watchHub fans events out to in-process subscribers.
type watchHub struct {
	mu      sync.Mutex
	watches map[*watch]struct{}
}

type watch struct {
	prefix string
	ch     chan Event
}

func newWatchHub() *watchHub {
	return &watchHub{watches: make(map[*watch]struct{})}
}

// subscribe registers a watcher that lives until ctx is done.
func (h *watchHub) subscribe(ctx context.Context, prefix string) <-chan Event {
	w := &watch{prefix: prefix, ch: make(chan Event, watchBufferSize)}

	h.mu.Lock()
	h.watches[w] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.watches, w)
		close(w.ch)
		h.mu.Unlock()
	}()

	return w.ch
}

// notify sends ev to matching watchers without blocking. A full buffer
// already holds an event that makes the watcher re-read.
func (h *watchHub) notify(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for w := range h.watches {
		if !strings.HasPrefix(ev.Key, w.prefix) {
			continue
		}
		select {
		case w.ch <- ev:
		default:
			log.Debug().Str("key", ev.Key).Str("prefix", w.prefix).Msg("watch buffer full, dropping event")
		}
	}
}
