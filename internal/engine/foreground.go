package engine

import "sync"

// ForegroundTracker counts attached UI clients and drives the ledger's
// pause/resume transitions. While at least one client is attached the user
// is in the app earning time, so wall-clock debiting pauses; when the last
// client detaches, debiting resumes against the Clock.
type ForegroundTracker struct {
	ledger *TimeLedger

	mu    sync.Mutex
	count int
}

func newForegroundTracker(ledger *TimeLedger) *ForegroundTracker {
	return &ForegroundTracker{ledger: ledger}
}

// Acquire marks one client as attached.
func (f *ForegroundTracker) Acquire() {
	f.mu.Lock()
	f.count++
	first := f.count == 1
	f.mu.Unlock()
	if first {
		f.ledger.Pause()
	}
}

// Release marks one client as detached. Unmatched releases are ignored so
// they cannot start debiting that no client session initiated.
func (f *ForegroundTracker) Release() {
	f.mu.Lock()
	last := false
	if f.count > 0 {
		f.count--
		last = f.count == 0
	}
	f.mu.Unlock()
	if last {
		f.ledger.Resume()
	}
}

// Active reports whether any client is attached.
func (f *ForegroundTracker) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count > 0
}
