package engine_test

import (
	"context"
	"testing"
	"time"

	"timebank-engine/internal/clock"
	"timebank-engine/internal/domain"
	"timebank-engine/internal/engine"
	"timebank-engine/internal/infra/memory"
)

func TestDailyResetRunsOncePerDay(t *testing.T) {
	eng, clk, _ := newTestEngine(t)

	eng.RecordAnswer(true, domain.AnswerContext{})
	eng.Ledger().SetAbsolute(0) // no rollover bonus in this scenario

	clk.Advance(24 * time.Hour)
	eng.CheckDailyReset()

	info := eng.ScoreInfo()
	if info.YesterdayScore != 100 {
		t.Fatalf("expected yesterday score 100, got %d", info.YesterdayScore)
	}
	if info.DailyScore != 0 {
		t.Fatalf("expected fresh daily score, got %d", info.DailyScore)
	}
	if info.TotalDaysPlayed != 1 {
		t.Fatalf("expected 1 day played, got %d", info.TotalDaysPlayed)
	}
	if len(info.WeeklyScores) != 1 || info.WeeklyScores[0].Date != "2024-03-14" {
		t.Fatalf("unexpected weekly history: %+v", info.WeeklyScores)
	}
	if eng.CurrentDate() != "2024-03-15" {
		t.Fatalf("expected boundary 2024-03-15, got %q", eng.CurrentDate())
	}

	// Same day again: nothing moves.
	eng.CheckDailyReset()
	again := eng.ScoreInfo()
	if again.TotalDaysPlayed != 1 || len(again.WeeklyScores) != 1 {
		t.Fatalf("reset must be at most once per day: %+v", again)
	}
}

func TestClockRollbackSkipsReset(t *testing.T) {
	eng, clk, _ := newTestEngine(t)

	eng.RecordAnswer(true, domain.AnswerContext{})
	clk.Advance(24 * time.Hour)
	eng.CheckDailyReset()
	boundary := eng.CurrentDate()

	clk.Set(testStart.Add(-48 * time.Hour))
	eng.CheckDailyReset()

	if eng.CurrentDate() != boundary {
		t.Fatalf("a backward date must not move the boundary: %q != %q", eng.CurrentDate(), boundary)
	}
	if got := len(eng.ScoreInfo().WeeklyScores); got != 1 {
		t.Fatalf("a backward date must not close another day, got %d entries", got)
	}
}

func TestRolloverBonusFromUnusedMinutes(t *testing.T) {
	eng, clk, _ := newTestEngine(t)

	eng.Ledger().SetAbsolute(50 * 60_000)
	clk.Advance(24 * time.Hour)
	eng.CheckDailyReset()

	info := eng.ScoreInfo()
	if info.RolloverBonus != 500 {
		t.Fatalf("expected 50 unused minutes -> 500 bonus, got %d", info.RolloverBonus)
	}
	if info.DailyScore != 500 {
		t.Fatalf("new day should start at the bonus, got %d", info.DailyScore)
	}
	if got := eng.Ledger().Remaining(); got != 30*60_000 {
		t.Fatalf("surrendered balance should restart at the grant, got %d", got)
	}
}

func TestRolloverBonusCappedAtTwoHours(t *testing.T) {
	eng, clk, _ := newTestEngine(t)

	eng.Ledger().SetAbsolute(300 * 60_000)
	clk.Advance(24 * time.Hour)
	eng.CheckDailyReset()

	if got := eng.ScoreInfo().RolloverBonus; got != 1200 {
		t.Fatalf("expected cap at 120 minutes -> 1200 bonus, got %d", got)
	}
}

func TestDebtCarriesAcrossTheBoundary(t *testing.T) {
	eng, clk, _ := newTestEngine(t)

	eng.Ledger().SetAbsolute(-10 * 60_000)
	clk.Advance(24 * time.Hour)
	eng.CheckDailyReset()

	if got := eng.ScoreInfo().RolloverBonus; got != 0 {
		t.Fatalf("a day in debt earns no bonus, got %d", got)
	}
	// The new grant pays the carried debt down first.
	if got := eng.Ledger().Remaining(); got != 20*60_000 {
		t.Fatalf("expected 30m grant minus 10m debt, got %d", got)
	}
}

func TestNegativeDayCountsAsPlayed(t *testing.T) {
	eng, clk, _ := newTestEngine(t)

	if _, _, err := eng.Score().ApplyOvertimePenalty(50); err != nil {
		t.Fatalf("penalty: %v", err)
	}
	eng.Ledger().SetAbsolute(0)
	clk.Advance(24 * time.Hour)
	eng.CheckDailyReset()

	info := eng.ScoreInfo()
	if info.YesterdayScore != -50 {
		t.Fatalf("expected yesterday -50, got %d", info.YesterdayScore)
	}
	if info.TotalDaysPlayed != 1 {
		t.Fatalf("a negative day still counts as played, got %d", info.TotalDaysPlayed)
	}
	if info.OvertimePenalty != 0 {
		t.Fatalf("overtime penalty must reset with the day, got %d", info.OvertimePenalty)
	}
}

func TestZeroScoreDayNotCounted(t *testing.T) {
	eng, clk, _ := newTestEngine(t)

	eng.Ledger().SetAbsolute(0)
	clk.Advance(24 * time.Hour)
	eng.CheckDailyReset()

	if got := eng.ScoreInfo().TotalDaysPlayed; got != 0 {
		t.Fatalf("an untouched day must not count as played, got %d", got)
	}
}

func TestWeeklyHistoryKeepsSevenDays(t *testing.T) {
	eng, clk, _ := newTestEngine(t)

	for day := 0; day < 9; day++ {
		eng.RecordAnswer(true, domain.AnswerContext{})
		eng.Ledger().SetAbsolute(0)
		clk.Advance(24 * time.Hour)
		eng.CheckDailyReset()
	}

	info := eng.ScoreInfo()
	if len(info.WeeklyScores) != 7 {
		t.Fatalf("expected a 7 day window, got %d", len(info.WeeklyScores))
	}
	if info.WeeklyScores[0].Date != "2024-03-16" {
		t.Fatalf("expected oldest entries evicted, window starts %q", info.WeeklyScores[0].Date)
	}
	if info.WeeklyScores[6].Date != "2024-03-22" {
		t.Fatalf("unexpected newest entry %q", info.WeeklyScores[6].Date)
	}
	if info.WeeklyTotal != 700 || info.WeeklyAverage != 100 {
		t.Fatalf("unexpected weekly aggregates: total %d average %d", info.WeeklyTotal, info.WeeklyAverage)
	}
}

func TestMonthlyTotalResetsOnMonthChange(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 3, 30, 9, 0, 0, 0, time.UTC))
	eng := engine.New(memory.NewStore(), clk, testLogger(), engine.Config{})
	eng.Load(context.Background())

	// Close March 30 and March 31, then cross into April.
	eng.RecordAnswer(true, domain.AnswerContext{})
	eng.Ledger().SetAbsolute(0)
	clk.Advance(24 * time.Hour)
	eng.CheckDailyReset()

	if got := eng.ScoreInfo().MonthlyTotal; got != 100 {
		t.Fatalf("expected monthly total 100 within March, got %d", got)
	}

	eng.RecordAnswer(true, domain.AnswerContext{})
	eng.Ledger().SetAbsolute(0)
	clk.Advance(24 * time.Hour)
	eng.CheckDailyReset()

	info := eng.ScoreInfo()
	if info.MonthlyTotal != 100 {
		t.Fatalf("expected monthly total restarted with March 31's score, got %d", info.MonthlyTotal)
	}
	if info.WeeklyTotal != 200 {
		t.Fatalf("weekly window must be unaffected by the month change, got %d", info.WeeklyTotal)
	}
}

func TestAllTimeHighScoreTracksBestDay(t *testing.T) {
	eng, clk, _ := newTestEngine(t)

	scores := []int{1, 3, 2} // answers per day; more answers, higher score
	for _, answers := range scores {
		for i := 0; i < answers; i++ {
			eng.RecordAnswer(true, domain.AnswerContext{})
		}
		eng.Ledger().SetAbsolute(0)
		clk.Advance(24 * time.Hour)
		eng.CheckDailyReset()
	}

	// Day scores: 100, 100+150+200=450, 100+150=250.
	if got := eng.ScoreInfo().AllTimeHighScore; got != 450 {
		t.Fatalf("expected all-time high 450, got %d", got)
	}
}

func TestDailyResetSummaryArchivesClosedDay(t *testing.T) {
	eng, clk, _ := newTestEngine(t)

	var summaries []domain.DailyResetSummary
	eng.Notifier().Subscribe(domain.EventDailyReset, func(ev engine.Event) {
		if s, ok := ev.Payload.(domain.DailyResetSummary); ok {
			summaries = append(summaries, s)
		}
	})

	eng.RecordAnswer(true, domain.AnswerContext{})
	eng.RecordAnswer(true, domain.AnswerContext{})
	eng.Ledger().SetAbsolute(12 * 60_000)
	clk.Advance(24 * time.Hour)
	eng.CheckDailyReset()

	if len(summaries) != 1 {
		t.Fatalf("expected one reset event, got %d", len(summaries))
	}
	s := summaries[0]
	if s.Closed.Date != "2024-03-14" {
		t.Fatalf("unexpected closed date %q", s.Closed.Date)
	}
	if s.Closed.Score != 250 || s.Closed.HighestStreak != 2 {
		t.Fatalf("unexpected closed record: %+v", s.Closed)
	}
	if s.Closed.RolloverMinutes != 12 || s.Closed.RolloverBonus != 120 {
		t.Fatalf("unexpected rollover fields: %+v", s.Closed)
	}
	if !s.WasNewRecord {
		t.Fatal("first scoring day should be a new record")
	}
	if s.NewDayScore != 120 {
		t.Fatalf("new day starts at the bonus, got %d", s.NewDayScore)
	}
}

func TestRestartAcrossMidnightClosesOldDay(t *testing.T) {
	clk := clock.NewFake(testStart)
	store := memory.NewStore()

	eng := engine.New(store, clk, testLogger(), engine.Config{})
	eng.Load(context.Background())
	eng.RecordAnswer(true, domain.AnswerContext{})
	eng.Ledger().SetAbsolute(0)
	eng.Flush()

	// The process dies; the next launch happens tomorrow. Startup must
	// close yesterday with the persisted values.
	clk.Advance(24 * time.Hour)
	reloaded := engine.New(store, clk, testLogger(), engine.Config{})
	reloaded.Load(context.Background())

	info := reloaded.ScoreInfo()
	if info.YesterdayScore != 100 {
		t.Fatalf("expected yesterday 100 after restart, got %d", info.YesterdayScore)
	}
	if info.DailyScore != 0 {
		t.Fatalf("expected a fresh day after restart, got %d", info.DailyScore)
	}
	if len(info.WeeklyScores) != 1 || info.WeeklyScores[0].Score != 100 {
		t.Fatalf("unexpected weekly history: %+v", info.WeeklyScores)
	}
	if reloaded.CurrentDate() != "2024-03-15" {
		t.Fatalf("expected boundary advanced, got %q", reloaded.CurrentDate())
	}
}

func TestStartupResetReachesEarlySubscribers(t *testing.T) {
	clk := clock.NewFake(testStart)
	store := memory.NewStore()

	eng := engine.New(store, clk, testLogger(), engine.Config{})
	eng.Load(context.Background())
	eng.RecordAnswer(true, domain.AnswerContext{})
	eng.Ledger().SetAbsolute(0)
	eng.Flush()

	// History sinks subscribe before Load, the way the daemon wires them:
	// the startup boundary check publishes the stale day's close exactly
	// once, and a subscriber attached afterwards would miss it.
	clk.Advance(24 * time.Hour)
	reloaded := engine.New(store, clk, testLogger(), engine.Config{})
	var summaries []domain.DailyResetSummary
	reloaded.Notifier().Subscribe(domain.EventDailyReset, func(ev engine.Event) {
		if s, ok := ev.Payload.(domain.DailyResetSummary); ok {
			summaries = append(summaries, s)
		}
	})
	reloaded.Load(context.Background())

	if len(summaries) != 1 {
		t.Fatalf("expected the startup check to deliver the closed day, got %d events", len(summaries))
	}
	if summaries[0].Closed.Date != "2024-03-14" || summaries[0].Closed.Score != 100 {
		t.Fatalf("unexpected closed day: %+v", summaries[0].Closed)
	}
}

func TestManyBoundariesNeverDoubleCount(t *testing.T) {
	eng, clk, _ := newTestEngine(t)

	for day := 0; day < 30; day++ {
		eng.RecordAnswer(true, domain.AnswerContext{})
		eng.Ledger().SetAbsolute(0)
		clk.Advance(24 * time.Hour)
		for i := 0; i < 3; i++ { // extra ticks on the same day are no-ops
			eng.CheckDailyReset()
		}
	}
	if got := eng.ScoreInfo().TotalDaysPlayed; got != 30 {
		t.Fatalf("expected 30 days played, got %d", got)
	}
	if got := eng.CurrentDate(); got != "2024-04-13" {
		t.Fatalf("unexpected boundary %q", got)
	}
}
