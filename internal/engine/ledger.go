package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"timebank-engine/internal/clock"
	"timebank-engine/internal/domain"
)

const msPerMinute = 60_000

// timeStats receives earned/spent time deltas; implemented by ScoreEngine.
type timeStats interface {
	addTimeEarned(ms int64)
	addTimeSpent(ms int64)
}

// TimeLedger owns the user's remaining screen-time balance. The balance is
// a signed millisecond count; debt is its negative magnitude, so
// debt == max(0, -remaining) holds at every observation point.
//
// All mutations are atomic under the ledger's mutex; persistence and event
// publication happen after the lock is released, with in-memory state
// authoritative for the running session.
type TimeLedger struct {
	clk      clock.Clock
	saver    *saver
	notifier *Notifier
	log      *slog.Logger
	grantMs  int64
	stats    timeStats

	mu         sync.Mutex
	remaining  int64 // ms, may be negative
	tracking   bool
	lastUpdate time.Time
}

func newTimeLedger(clk clock.Clock, sv *saver, nt *Notifier, log *slog.Logger, grant time.Duration) *TimeLedger {
	return &TimeLedger{
		clk:        clk,
		saver:      sv,
		notifier:   nt,
		log:        log,
		grantMs:    grant.Milliseconds(),
		lastUpdate: clk.Now(),
	}
}

// Credit adds earned minutes. Debt is paid down first; any remainder
// becomes positive balance. Returns the resulting remaining milliseconds.
// Non-positive or non-finite amounts are rejected as a no-op.
func (l *TimeLedger) Credit(minutes float64) (int64, error) {
	if minutes <= 0 || math.IsNaN(minutes) || math.IsInf(minutes, 0) {
		l.log.Warn("rejecting invalid credit", "minutes", minutes)
		return l.Remaining(), domain.ErrInvalidAmount
	}
	ms := int64(math.Round(minutes * msPerMinute))

	l.mu.Lock()
	l.remaining += ms
	rec, update := l.snapshotLocked()
	l.mu.Unlock()

	l.persist(rec)
	if l.stats != nil {
		l.stats.addTimeEarned(ms)
	}
	l.notifier.Publish(domain.EventTimerUpdate, update)
	return update.RemainingMs, nil
}

// Debit subtracts elapsed milliseconds, typically the whole duration spent
// backgrounded, so suspended periods are charged in one step.
func (l *TimeLedger) Debit(elapsedMs int64) error {
	if elapsedMs < 0 {
		l.log.Warn("rejecting negative debit", "elapsedMs", elapsedMs)
		return domain.ErrInvalidAmount
	}
	if elapsedMs == 0 {
		return nil
	}
	l.apply(elapsedMs)
	return nil
}

// Tick applies wall-clock elapsed time since the last update while
// tracking. It is driven by the engine's periodic loop; a long gap between
// ticks (process suspension) is debited in full on the next call.
func (l *TimeLedger) Tick() {
	now := l.clk.Now()

	l.mu.Lock()
	if !l.tracking {
		l.mu.Unlock()
		return
	}
	elapsed := now.Sub(l.lastUpdate)
	if elapsed <= 0 {
		l.mu.Unlock()
		return
	}
	l.lastUpdate = now
	l.mu.Unlock()

	l.apply(elapsed.Milliseconds())
}

func (l *TimeLedger) apply(elapsedMs int64) {
	l.mu.Lock()
	l.remaining -= elapsedMs
	rec, update := l.snapshotLocked()
	l.mu.Unlock()

	l.persist(rec)
	if l.stats != nil {
		l.stats.addTimeSpent(elapsedMs)
	}
	l.notifier.Publish(domain.EventTimerUpdate, update)
}

// SetAbsolute overwrites the balance (settings/debug path). A positive
// value clears any debt by construction.
func (l *TimeLedger) SetAbsolute(ms int64) {
	l.mu.Lock()
	l.remaining = ms
	rec, update := l.snapshotLocked()
	l.mu.Unlock()

	l.persist(rec)
	l.notifier.Publish(domain.EventTimerUpdate, update)
}

// Pause stops wall-clock debiting without changing the balance. Any time
// elapsed up to now is applied first so pausing never forgives usage.
func (l *TimeLedger) Pause() {
	now := l.clk.Now()

	l.mu.Lock()
	if !l.tracking {
		l.mu.Unlock()
		return
	}
	var elapsedMs int64
	if elapsed := now.Sub(l.lastUpdate); elapsed > 0 {
		elapsedMs = elapsed.Milliseconds()
		l.remaining -= elapsedMs
	}
	l.tracking = false
	l.lastUpdate = now
	rec, update := l.snapshotLocked()
	l.mu.Unlock()

	l.persist(rec)
	if l.stats != nil && elapsedMs > 0 {
		l.stats.addTimeSpent(elapsedMs)
	}
	l.notifier.Publish(domain.EventTimerUpdate, update)
}

// Resume re-enables debiting, re-basing from the Clock rather than
// assuming ticks continued while paused.
func (l *TimeLedger) Resume() {
	now := l.clk.Now()

	l.mu.Lock()
	if l.tracking {
		l.mu.Unlock()
		return
	}
	l.tracking = true
	l.lastUpdate = now
	rec, update := l.snapshotLocked()
	l.mu.Unlock()

	l.persist(rec)
	l.notifier.Publish(domain.EventTimerUpdate, update)
}

// Remaining returns the signed balance in milliseconds.
func (l *TimeLedger) Remaining() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remaining
}

// Debt returns max(0, -remaining) in milliseconds.
func (l *TimeLedger) Debt() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.remaining < 0 {
		return -l.remaining
	}
	return 0
}

// Info returns a read-only snapshot for collaborator surfaces.
func (l *TimeLedger) Info() domain.LedgerInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, update := l.snapshotLocked()
	return domain.LedgerInfo{
		RemainingMs: l.remaining,
		DebtMs:      update.DebtMs,
		IsTracking:  l.tracking,
		Formatted:   FormatTime(l.remaining),
	}
}

// RolloverDay closes the calendar day: a positive balance is surrendered
// as whole unused minutes (the scheduler converts them to a score bonus)
// and the day restarts at the default grant. Debt carries over and the new
// grant pays it down first.
func (l *TimeLedger) RolloverDay() int {
	l.mu.Lock()
	unused := 0
	if l.remaining > 0 {
		unused = int(l.remaining / msPerMinute)
		l.remaining = l.grantMs
	} else {
		l.remaining += l.grantMs
	}
	l.lastUpdate = l.clk.Now()
	rec, update := l.snapshotLocked()
	l.mu.Unlock()

	l.persist(rec)
	l.notifier.Publish(domain.EventTimerUpdate, update)
	return unused
}

// snapshotLocked builds the persisted record and event payload. Callers
// hold l.mu. The record splits the signed balance into the non-negative
// remaining/debt pair used by the storage layout.
func (l *TimeLedger) snapshotLocked() (ledgerRecord, domain.TimerUpdate) {
	remaining, debt := l.remaining, int64(0)
	if remaining < 0 {
		debt = -remaining
		remaining = 0
	}
	rec := ledgerRecord{
		Date:        clock.DateKey(l.clk.Now()),
		RemainingMs: remaining,
		DebtMs:      debt,
		IsTracking:  l.tracking,
		LastUpdate:  l.lastUpdate.UnixMilli(),
	}
	update := domain.TimerUpdate{
		RemainingMs: l.remaining,
		DebtMs:      debt,
		IsTracking:  l.tracking,
		Expired:     l.remaining <= 0,
	}
	return rec, update
}

func (l *TimeLedger) persist(rec ledgerRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		l.log.Error("marshal ledger record", "error", err)
		return
	}
	l.saver.Enqueue(keyLedger, string(data))
}

// restore loads persisted state. Missing records seed the first-launch
// default grant. lastUpdate re-bases to now so time spent with the process
// dead is not debited retroactively.
func (l *TimeLedger) restore(raw string, found bool) {
	now := l.clk.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastUpdate = now
	if !found {
		l.remaining = l.grantMs
		l.log.Info("first launch, seeding default time grant", "grantMs", l.grantMs)
		return
	}
	var rec ledgerRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		l.log.Warn("corrupt ledger record, seeding default grant", "error", err)
		l.remaining = l.grantMs
		return
	}
	l.remaining = rec.RemainingMs - rec.DebtMs
	l.tracking = rec.IsTracking
}

// FormatTime renders milliseconds as m:ss or h:mm:ss, clamping negative
// values to zero for display.
func FormatTime(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
