package engine

import (
	"log/slog"
	"sync"

	"timebank-engine/internal/clock"
	"timebank-engine/internal/domain"
)

// DailyResetScheduler detects calendar-date boundaries and triggers the
// daily rollover at most once per day. The comparison uses calendar dates
// from the Clock, never elapsed milliseconds, so timezone and device-clock
// shifts cannot skip or duplicate a day. A date moving backward is treated
// as a clock anomaly: logged, never reset.
type DailyResetScheduler struct {
	clk      clock.Clock
	saver    *saver
	notifier *Notifier
	log      *slog.Logger
	ledger   *TimeLedger
	score    *ScoreEngine

	mu          sync.Mutex
	currentDate string
}

func newDailyResetScheduler(clk clock.Clock, sv *saver, nt *Notifier, log *slog.Logger, ledger *TimeLedger, score *ScoreEngine) *DailyResetScheduler {
	return &DailyResetScheduler{
		clk:      clk,
		saver:    sv,
		notifier: nt,
		log:      log,
		ledger:   ledger,
		score:    score,
	}
}

// Check compares today's date against the stored boundary and performs the
// rollover when the day has changed. It runs once at engine startup before
// any other mutation is accepted, then on the periodic tick.
func (d *DailyResetScheduler) Check() {
	today := clock.DateKey(d.clk.Now())

	d.mu.Lock()
	closed := d.currentDate
	if closed == today {
		d.mu.Unlock()
		return
	}
	if closed != "" && today < closed {
		d.mu.Unlock()
		d.log.Warn("calendar date moved backward, skipping daily reset", "stored", closed, "today", today)
		return
	}
	d.currentDate = today
	d.mu.Unlock()

	d.saver.Enqueue(keyCurrentDate, today)
	if closed == "" {
		// First launch: a boundary to anchor, no day to close.
		return
	}

	unused := d.ledger.RolloverDay()
	if unused > maxRolloverMinutes {
		unused = maxRolloverMinutes
	}
	bonus := unused * rolloverBonusPerMinute

	summary := d.score.PerformDailyReset(closed, bonus, unused)
	d.log.Info("daily reset performed",
		"closedDate", closed,
		"yesterdayScore", summary.YesterdayScore,
		"rolloverBonus", bonus,
		"totalDaysPlayed", summary.TotalDaysPlayed)
	d.notifier.Publish(domain.EventDailyReset, summary)
}

// CurrentDate returns the stored boundary date key.
func (d *DailyResetScheduler) CurrentDate() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentDate
}

func (d *DailyResetScheduler) restore(raw string, found bool) {
	d.mu.Lock()
	if found {
		d.currentDate = raw
	}
	d.mu.Unlock()
}
