package stories

import (
	"context"
	"sync"

	"kbs-backend/internal/domain"

	"github.com/rs/zerolog/log"
)

// seenWriter persists a controller's seen set off the playback path. The set
// only grows, so when writes queue up only the newest one is kept; saves land
// in submission order on a single goroutine.
type seenWriter struct {
	save func(context.Context, domain.SeenSet) error

	mu      sync.Mutex
	pending domain.SeenSet

	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newSeenWriter(save func(context.Context, domain.SeenSet) error) *seenWriter {
	w := &seenWriter{
		save: save,
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

// Submit queues seen for saving and never blocks.
func (w *seenWriter) Submit(seen domain.SeenSet) {
	w.mu.Lock()
	w.pending = seen
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Close flushes the last queued set and stops the writer. Safe to call twice.
func (w *seenWriter) Close() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}

func (w *seenWriter) run() {
	defer close(w.done)
	for {
		select {
		case <-w.wake:
			w.flush()
		case <-w.stop:
			w.flush()
			return
		}
	}
}

func (w *seenWriter) flush() {
	w.mu.Lock()
	seen := w.pending
	w.pending = nil
	w.mu.Unlock()
	if seen == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := w.save(ctx, seen); err != nil {
		log.Warn().Err(err).Int("seen", len(seen)).Msg("seen set not persisted")
	}
}
