// Package engine implements the time-bank and scoring core: the time
// ledger, score engine, overtime monitor, daily reset scheduler, and the
// event notifier that fans state changes out to collaborators.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"timebank-engine/internal/clock"
	"timebank-engine/internal/domain"
)

// Config holds the engine's tunables. Zero values fall back to defaults.
type Config struct {
	// InitialGrant seeds the ledger on first launch and re-grants each day.
	InitialGrant time.Duration
	// TickInterval drives ledger wall-clock debiting.
	TickInterval time.Duration
	// PenaltyInterval drives the overtime monitor.
	PenaltyInterval time.Duration
	// ResetInterval drives the daily boundary check.
	ResetInterval time.Duration
	// Rewards maps correct answers to earned time.
	Rewards RewardPolicy
}

func (c Config) withDefaults() Config {
	if c.InitialGrant <= 0 {
		c.InitialGrant = 30 * time.Minute
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.PenaltyInterval <= 0 {
		c.PenaltyInterval = 10 * time.Second
	}
	if c.ResetInterval <= 0 {
		c.ResetInterval = time.Minute
	}
	if c.Rewards.Default <= 0 {
		c.Rewards.Default = time.Minute
	}
	if c.Rewards.StreakBonus < 0 {
		c.Rewards.StreakBonus = 0
	}
	return c
}

// Engine is the composition root for the time-bank core. Construct one per
// process with New, restore state with Load, then drive the periodic
// monitors with Run.
type Engine struct {
	log   *slog.Logger
	clk   clock.Clock
	store KVStore
	cfg   Config

	saver    *saver
	notifier *Notifier
	ledger   *TimeLedger
	score    *ScoreEngine
	overtime *OvertimeMonitor
	daily    *DailyResetScheduler
	fg       *ForegroundTracker
}

func New(store KVStore, clk clock.Clock, log *slog.Logger, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	nt := NewNotifier(log)
	sv := newSaver(store, log)
	ledger := newTimeLedger(clk, sv, nt, log, cfg.InitialGrant)
	score := newScoreEngine(clk, sv, nt, log, ledger, cfg.Rewards)
	ledger.stats = score
	fg := newForegroundTracker(ledger)

	return &Engine{
		log:      log,
		clk:      clk,
		store:    store,
		cfg:      cfg,
		saver:    sv,
		notifier: nt,
		ledger:   ledger,
		score:    score,
		overtime: newOvertimeMonitor(clk, nt, log, ledger, score, fg),
		daily:    newDailyResetScheduler(clk, sv, nt, log, ledger, score),
		fg:       fg,
	}
}

// Load restores persisted state and runs the startup boundary check before
// any other mutation is accepted. Persistence read failures degrade to
// defaults; they are logged, never fatal.
func (e *Engine) Load(ctx context.Context) {
	e.ledger.restore(e.read(ctx, keyLedger))
	dailyRaw, dailyFound := e.read(ctx, keyScoreDaily)
	historyRaw, historyFound := e.read(ctx, keyScoreHistory)
	e.score.restore(dailyRaw, dailyFound, historyRaw, historyFound)
	e.daily.restore(e.read(ctx, keyCurrentDate))
	e.score.ResetSession()
	e.daily.Check()
}

func (e *Engine) read(ctx context.Context, key string) (string, bool) {
	value, found, err := e.store.Get(ctx, key)
	if err != nil {
		e.log.Warn("persistence read failed, using defaults", "key", key, "error", err)
		return "", false
	}
	return value, found
}

// Run drives the periodic monitors until ctx is canceled, then flushes
// pending saves. All three loops stop their tickers on teardown.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return tickLoop(ctx, e.cfg.TickInterval, e.ledger.Tick) })
	g.Go(func() error { return tickLoop(ctx, e.cfg.PenaltyInterval, e.overtime.Check) })
	g.Go(func() error { return tickLoop(ctx, e.cfg.ResetInterval, e.daily.Check) })

	err := g.Wait()
	e.saver.Close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func tickLoop(ctx context.Context, interval time.Duration, fn func()) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fn()
		}
	}
}

// Flush synchronously writes pending saves; app-termination hook.
func (e *Engine) Flush() { e.saver.Flush() }

// RecordAnswer forwards a quiz answer to the score engine.
func (e *Engine) RecordAnswer(correct bool, ctx domain.AnswerContext) domain.AnswerResult {
	return e.score.RecordAnswer(correct, ctx)
}

// ScoreInfo returns the score engine's aggregate snapshot.
func (e *Engine) ScoreInfo() domain.ScoreInfo { return e.score.ScoreInfo() }

// LedgerInfo returns the ledger's snapshot.
func (e *Engine) LedgerInfo() domain.LedgerInfo { return e.ledger.Info() }

// Ledger exposes the time ledger for settings collaborators.
func (e *Engine) Ledger() *TimeLedger { return e.ledger }

// Score exposes the score engine.
func (e *Engine) Score() *ScoreEngine { return e.score }

// Notifier exposes the event fan-out for subscriber collaborators.
func (e *Engine) Notifier() *Notifier { return e.notifier }

// Foreground exposes the foreground tracker for transport collaborators.
func (e *Engine) Foreground() *ForegroundTracker { return e.fg }

// CurrentDate returns the active calendar boundary key.
func (e *Engine) CurrentDate() string { return e.daily.CurrentDate() }

// CheckDailyReset runs an immediate boundary check (tests and debug).
func (e *Engine) CheckDailyReset() { e.daily.Check() }

// CheckOvertime runs an immediate overtime check (tests and debug).
func (e *Engine) CheckOvertime() { e.overtime.Check() }
