package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const saveTimeout = 2 * time.Second

// saver decouples in-memory mutations from persistence. Mutating operations
// enqueue the serialized record and return immediately; a background
// goroutine writes pending values with a short timeout. A failed write is
// logged and dropped; the next mutation enqueues a fresh value, which is
// the retry. Flush writes everything pending synchronously and is meant for
// shutdown hooks.
type saver struct {
	store KVStore
	log   *slog.Logger

	mu      sync.Mutex
	pending map[string]string

	kick chan struct{}
	quit chan struct{}
	done chan struct{}
}

func newSaver(store KVStore, log *slog.Logger) *saver {
	s := &saver{
		store:   store,
		log:     log,
		pending: make(map[string]string),
		kick:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.loop()
	return s
}

// Enqueue schedules value to be written under key. Later values for the
// same key coalesce with earlier unwritten ones.
func (s *saver) Enqueue(key, value string) {
	s.mu.Lock()
	s.pending[key] = value
	s.mu.Unlock()

	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Flush synchronously writes all pending values.
func (s *saver) Flush() {
	s.writePending()
}

// Close flushes and stops the background goroutine.
func (s *saver) Close() {
	select {
	case <-s.quit:
		return
	default:
	}
	close(s.quit)
	<-s.done
}

func (s *saver) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.kick:
			s.writePending()
		case <-s.quit:
			s.writePending()
			return
		}
	}
}

func (s *saver) writePending() {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.pending
	s.pending = make(map[string]string)
	s.mu.Unlock()

	for key, value := range batch {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		if err := s.store.Set(ctx, key, value); err != nil {
			s.log.Warn("persist failed, keeping in-memory state", "key", key, "error", err)
		}
		cancel()
	}
}
