package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"timebank-engine/internal/clock"
	"timebank-engine/internal/domain"
)

// graceSeconds is the overtime window that must elapse before the first
// penalty, so transient background blips (a phone call) go unpunished.
const graceSeconds = 30

// foregroundSignal reports whether the user is currently in this
// application (earning time) rather than consuming it elsewhere.
type foregroundSignal interface {
	Active() bool
}

// OvertimeMonitor samples the ledger on a fixed tick and converts overtime
// into score penalties. Penalties scale with the elapsed overtime since the
// last checkpoint, so totals are tick-interval-independent up to rounding.
type OvertimeMonitor struct {
	clk        clock.Clock
	notifier   *Notifier
	log        *slog.Logger
	ledger     *TimeLedger
	score      *ScoreEngine
	foreground foregroundSignal

	mu               sync.Mutex
	lastPenaltyCheck time.Time // zero = not currently penalizing
}

func newOvertimeMonitor(clk clock.Clock, nt *Notifier, log *slog.Logger, ledger *TimeLedger, score *ScoreEngine, fg foregroundSignal) *OvertimeMonitor {
	return &OvertimeMonitor{
		clk:        clk,
		notifier:   nt,
		log:        log,
		ledger:     ledger,
		score:      score,
		foreground: fg,
	}
}

// Check runs one monitor tick.
func (m *OvertimeMonitor) Check() {
	balance := m.ledger.Remaining()
	if balance > 0 {
		// Time available again: disarm and re-grant the grace period.
		m.mu.Lock()
		m.lastPenaltyCheck = time.Time{}
		m.mu.Unlock()
		return
	}
	if m.foreground != nil && m.foreground.Active() {
		// The user is here earning time back; no penalty while answering.
		return
	}

	now := m.clk.Now()

	m.mu.Lock()
	if m.lastPenaltyCheck.IsZero() {
		m.lastPenaltyCheck = now
		m.mu.Unlock()
		m.warnTimeExpired()
		return
	}
	overtimeSeconds := int(now.Sub(m.lastPenaltyCheck).Seconds())
	if overtimeSeconds < graceSeconds {
		m.mu.Unlock()
		return
	}
	penalty := overtimeSeconds * overtimePenaltyPerMinute / 60
	if penalty <= 0 {
		m.mu.Unlock()
		return
	}
	m.lastPenaltyCheck = now
	m.mu.Unlock()

	dailyScore, totalPenalty, err := m.score.ApplyOvertimePenalty(penalty)
	if err != nil {
		return
	}
	m.log.Info("applied overtime penalty",
		"penalty", penalty,
		"overtimeSeconds", overtimeSeconds,
		"dailyScore", dailyScore,
		"totalPenalty", totalPenalty)
	m.notifier.Publish(domain.EventPenaltyApplied, domain.PenaltyUpdate{
		Penalty:         penalty,
		OvertimeMinutes: overtimeSeconds / 60,
		DailyScore:      dailyScore,
		TotalPenalty:    totalPenalty,
	})
}

func (m *OvertimeMonitor) warnTimeExpired() {
	info := m.score.ScoreInfo()
	m.notifier.Publish(domain.EventShowMessage, domain.Message{
		Type:     "timeExpiredWarning",
		Text:     fmt.Sprintf("Time's up! Earned screen time has run out; continued usage now costs points. Answer questions to earn more time. Current score: %d", info.DailyScore),
		Priority: "high",
	})
}
