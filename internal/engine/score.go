package engine

import (
	"encoding/json"
	"log/slog"
	"math"
	"sync"
	"time"

	"timebank-engine/internal/clock"
	"timebank-engine/internal/domain"
)

// Scoring policy. Wrong answers never subtract points; overtime is the
// only source of negative daily scores.
const (
	scoreBase        = 100
	timeMultiplier   = 1.5
	streakMultiplier = 0.5
	streakMilestone  = 5

	answerWindowSeconds = 20

	overtimePenaltyPerMinute = 50
	rolloverBonusPerMinute   = 10
	maxRolloverMinutes       = 120
	minDailyScore            = -9999
)

// RewardPolicy maps answers to time-ledger credits: a per-category earned
// duration for each correct answer plus a bonus grant at streak milestones.
type RewardPolicy struct {
	Default     time.Duration
	ByCategory  map[string]time.Duration
	StreakBonus time.Duration
}

func (p RewardPolicy) forCategory(category string) time.Duration {
	if d, ok := p.ByCategory[category]; ok {
		return d
	}
	return p.Default
}

// ScoreEngine owns streak state, the daily score, and cross-day history.
// It converts answer events into point awards and time credits, absorbs
// overtime penalties, and performs the daily rollover.
type ScoreEngine struct {
	clk      clock.Clock
	saver    *saver
	notifier *Notifier
	log      *slog.Logger
	ledger   *TimeLedger
	rewards  RewardPolicy

	mu            sync.Mutex
	currentStreak int
	highestStreak int
	dailyScore    int
	sessionScore  int // not persisted, resets on engine init

	overtimePenalty int
	rolloverBonus   int

	yesterdayScore   int
	allTimeHighScore int
	totalDaysPlayed  int
	monthlyTotal     int
	weekly           []domain.WeeklyEntry
	stats            domain.LifetimeStats
}

func newScoreEngine(clk clock.Clock, sv *saver, nt *Notifier, log *slog.Logger, ledger *TimeLedger, rewards RewardPolicy) *ScoreEngine {
	return &ScoreEngine{
		clk:      clk,
		saver:    sv,
		notifier: nt,
		log:      log,
		ledger:   ledger,
		rewards:  rewards,
	}
}

// RecordAnswer applies one answered question. Correct answers award
// base + time bonus + streak bonus points and extend the streak; incorrect
// answers reset the streak and leave the score untouched. The ledger is
// credited with the category's reward minutes on a correct answer.
func (s *ScoreEngine) RecordAnswer(correct bool, ctx domain.AnswerContext) domain.AnswerResult {
	now := s.clk.Now()

	s.mu.Lock()
	s.stats.QuestionsAnswered++

	var result domain.AnswerResult
	if correct {
		secondsTaken := float64(answerWindowSeconds)
		if !ctx.StartedAt.IsZero() {
			secondsTaken = now.Sub(ctx.StartedAt).Seconds()
		}
		timeBonus := math.Max(0, (answerWindowSeconds-secondsTaken)/answerWindowSeconds) * (scoreBase * (timeMultiplier - 1))
		streakBonus := float64(s.currentStreak) * scoreBase * streakMultiplier
		points := int(math.Round(scoreBase + timeBonus + streakBonus))

		s.dailyScore += points
		s.sessionScore += points
		s.currentStreak++
		if s.currentStreak > s.highestStreak {
			s.highestStreak = s.currentStreak
		}
		s.stats.CorrectAnswers++

		result = domain.AnswerResult{
			PointsEarned: points,
			NewStreak:    s.currentStreak,
			NewScore:     s.dailyScore,
			IsMilestone:  s.currentStreak%streakMilestone == 0,
			StreakLevel:  s.currentStreak / streakMilestone,
		}
	} else {
		s.currentStreak = 0
		result = domain.AnswerResult{
			NewScore:    s.dailyScore,
			StreakLevel: 0,
		}
	}
	update := s.scoreUpdateLocked()
	daily, history := s.recordsLocked()
	s.mu.Unlock()

	s.persist(daily, history)
	s.notifier.Publish(domain.EventScoreUpdated, update)

	if correct {
		reward := s.rewards.forCategory(ctx.Category)
		if result.IsMilestone {
			reward += s.rewards.StreakBonus
		}
		if reward > 0 {
			if _, err := s.ledger.Credit(reward.Minutes()); err != nil {
				s.log.Warn("reward credit rejected", "error", err)
			}
		}
	}
	return result
}

// ApplyOvertimePenalty deducts penalty points, the only legitimate way the
// daily score goes negative. The displayed score is floored at -9999.
func (s *ScoreEngine) ApplyOvertimePenalty(points int) (dailyScore, totalPenalty int, err error) {
	if points <= 0 {
		s.log.Warn("rejecting invalid overtime penalty", "points", points)
		s.mu.Lock()
		dailyScore, totalPenalty = s.dailyScore, s.overtimePenalty
		s.mu.Unlock()
		return dailyScore, totalPenalty, domain.ErrInvalidPenalty
	}

	s.mu.Lock()
	s.dailyScore -= points
	if s.dailyScore < minDailyScore {
		s.dailyScore = minDailyScore
	}
	s.overtimePenalty += points
	dailyScore, totalPenalty = s.dailyScore, s.overtimePenalty
	daily, history := s.recordsLocked()
	s.mu.Unlock()

	s.persist(daily, history)
	return dailyScore, totalPenalty, nil
}

// PerformDailyReset closes the calendar day identified by closedDate:
// today's score becomes yesterday's, the day is appended to the 7-entry
// weekly history, aggregates are recomputed, and daily state restarts with
// the rollover bonus. At-most-once-per-day is the scheduler's guarantee.
func (s *ScoreEngine) PerformDailyReset(closedDate string, rolloverBonus, rolloverMinutes int) domain.DailyResetSummary {
	now := s.clk.Now()

	s.mu.Lock()
	s.yesterdayScore = s.dailyScore
	closed := domain.DayRecord{
		Date:            closedDate,
		Score:           s.dailyScore,
		HighestStreak:   s.highestStreak,
		OvertimePenalty: s.overtimePenalty,
		RolloverBonus:   rolloverBonus,
		RolloverMinutes: rolloverMinutes,
	}

	s.weekly = append(s.weekly, domain.WeeklyEntry{
		Date:   closedDate,
		Score:  s.dailyScore,
		Streak: s.highestStreak,
	})
	if len(s.weekly) > 7 {
		s.weekly = s.weekly[len(s.weekly)-7:]
	}

	// Monthly total resets when the oldest weekly entry belongs to a
	// different month than today; otherwise it is the sum of the window.
	if oldest, err := time.Parse("2006-01-02", s.weekly[0].Date); err == nil && oldest.Month() != now.Month() {
		s.monthlyTotal = s.dailyScore
	} else {
		s.monthlyTotal = 0
		for _, day := range s.weekly {
			s.monthlyTotal += day.Score
		}
	}

	wasNewRecord := s.dailyScore > s.allTimeHighScore
	if wasNewRecord {
		s.allTimeHighScore = s.dailyScore
	}
	// Any non-zero score counts as an active day, negative included.
	if s.yesterdayScore != 0 {
		s.totalDaysPlayed++
	}

	s.dailyScore = rolloverBonus
	s.rolloverBonus = rolloverBonus
	s.currentStreak = 0
	s.highestStreak = 0
	s.sessionScore = 0
	s.overtimePenalty = 0

	summary := domain.DailyResetSummary{
		YesterdayScore:  s.yesterdayScore,
		RolloverBonus:   rolloverBonus,
		RolloverMinutes: rolloverMinutes,
		WasNewRecord:    wasNewRecord,
		NewDayScore:     s.dailyScore,
		TotalDaysPlayed: s.totalDaysPlayed,
		Closed:          closed,
	}
	daily, history := s.recordsLocked()
	s.mu.Unlock()

	s.persist(daily, history)
	return summary
}

// ResetSession clears the per-session counters on engine (re)initialization.
func (s *ScoreEngine) ResetSession() {
	s.mu.Lock()
	s.currentStreak = 0
	s.sessionScore = 0
	s.mu.Unlock()
}

// ScoreInfo returns the aggregate read-only view used by settings and
// leaderboard surfaces.
func (s *ScoreEngine) ScoreInfo() domain.ScoreInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	weeklyTotal := 0
	for _, day := range s.weekly {
		weeklyTotal += day.Score
	}
	weeklyAverage := 0
	if len(s.weekly) > 0 {
		weeklyAverage = int(math.Round(float64(weeklyTotal) / float64(len(s.weekly))))
	}
	level := s.currentStreak / streakMilestone

	weekly := make([]domain.WeeklyEntry, len(s.weekly))
	copy(weekly, s.weekly)

	return domain.ScoreInfo{
		CurrentStreak: s.currentStreak,
		HighestStreak: s.highestStreak,
		SessionScore:  s.sessionScore,

		DailyScore:      s.dailyScore,
		YesterdayScore:  s.yesterdayScore,
		RolloverBonus:   s.rolloverBonus,
		OvertimePenalty: s.overtimePenalty,

		AllTimeHighScore: s.allTimeHighScore,
		TotalDaysPlayed:  s.totalDaysPlayed,
		WeeklyScores:     weekly,
		WeeklyTotal:      weeklyTotal,
		WeeklyAverage:    weeklyAverage,
		MonthlyTotal:     s.monthlyTotal,

		StreakLevel:   level,
		NextMilestone: (level + 1) * streakMilestone,
		Progress:      float64(s.currentStreak%streakMilestone) / streakMilestone,

		HoursOvertime:   s.overtimePenalty / overtimePenaltyPerMinute / 60,
		MinutesOvertime: (s.overtimePenalty / overtimePenaltyPerMinute) % 60,

		Stats: s.stats,
	}
}

// DayRecord snapshots the current day for the archive.
func (s *ScoreEngine) DayRecord(date string) domain.DayRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.DayRecord{
		Date:            date,
		Score:           s.dailyScore,
		HighestStreak:   s.highestStreak,
		OvertimePenalty: s.overtimePenalty,
		RolloverBonus:   s.rolloverBonus,
	}
}

func (s *ScoreEngine) addTimeEarned(ms int64) {
	s.mu.Lock()
	s.stats.TimeEarnedMs += ms
	_, history := s.recordsLocked()
	s.mu.Unlock()
	s.persistHistory(history)
}

func (s *ScoreEngine) addTimeSpent(ms int64) {
	s.mu.Lock()
	s.stats.TimeSpentMs += ms
	_, history := s.recordsLocked()
	s.mu.Unlock()
	s.persistHistory(history)
}

func (s *ScoreEngine) scoreUpdateLocked() domain.ScoreUpdate {
	return domain.ScoreUpdate{
		DailyScore:    s.dailyScore,
		SessionScore:  s.sessionScore,
		CurrentStreak: s.currentStreak,
		HighestStreak: s.highestStreak,
	}
}

func (s *ScoreEngine) recordsLocked() (dailyRecord, historyRecord) {
	daily := dailyRecord{
		Date:            clock.DateKey(s.clk.Now()),
		DailyScore:      s.dailyScore,
		CurrentStreak:   s.currentStreak,
		HighestStreak:   s.highestStreak,
		OvertimePenalty: s.overtimePenalty,
		RolloverBonus:   s.rolloverBonus,
	}
	history := historyRecord{
		AllTimeHighScore: s.allTimeHighScore,
		TotalDaysPlayed:  s.totalDaysPlayed,
		MonthlyTotal:     s.monthlyTotal,
		YesterdayScore:   s.yesterdayScore,
		Stats: lifetimeStatsRecord{
			QuestionsAnswered: s.stats.QuestionsAnswered,
			CorrectAnswers:    s.stats.CorrectAnswers,
			TimeEarnedMs:      s.stats.TimeEarnedMs,
			TimeSpentMs:       s.stats.TimeSpentMs,
		},
	}
	for _, day := range s.weekly {
		history.WeeklyScores = append(history.WeeklyScores, weeklyEntryRecord(day))
	}
	return daily, history
}

func (s *ScoreEngine) persist(daily dailyRecord, history historyRecord) {
	if data, err := json.Marshal(daily); err == nil {
		s.saver.Enqueue(keyScoreDaily, string(data))
	} else {
		s.log.Error("marshal daily score record", "error", err)
	}
	s.persistHistory(history)
}

func (s *ScoreEngine) persistHistory(history historyRecord) {
	data, err := json.Marshal(history)
	if err != nil {
		s.log.Error("marshal score history record", "error", err)
		return
	}
	s.saver.Enqueue(keyScoreHistory, string(data))
}

// restore loads persisted score state. The daily snapshot is adopted even
// when it belongs to an earlier day: the scheduler's startup check runs
// before any other mutation and closes that day with the loaded values.
func (s *ScoreEngine) restore(dailyRaw string, dailyFound bool, historyRaw string, historyFound bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dailyFound {
		var rec dailyRecord
		if err := json.Unmarshal([]byte(dailyRaw), &rec); err != nil {
			s.log.Warn("corrupt daily score record, starting fresh", "error", err)
		} else {
			s.dailyScore = rec.DailyScore
			s.currentStreak = rec.CurrentStreak
			s.highestStreak = rec.HighestStreak
			s.overtimePenalty = rec.OvertimePenalty
			s.rolloverBonus = rec.RolloverBonus
		}
	}
	if historyFound {
		var rec historyRecord
		if err := json.Unmarshal([]byte(historyRaw), &rec); err != nil {
			s.log.Warn("corrupt score history record, starting fresh", "error", err)
			return
		}
		s.allTimeHighScore = rec.AllTimeHighScore
		s.totalDaysPlayed = rec.TotalDaysPlayed
		s.monthlyTotal = rec.MonthlyTotal
		s.yesterdayScore = rec.YesterdayScore
		s.stats = domain.LifetimeStats{
			QuestionsAnswered: rec.Stats.QuestionsAnswered,
			CorrectAnswers:    rec.Stats.CorrectAnswers,
			TimeEarnedMs:      rec.Stats.TimeEarnedMs,
			TimeSpentMs:       rec.Stats.TimeSpentMs,
		}
		s.weekly = nil
		for _, day := range rec.WeeklyScores {
			s.weekly = append(s.weekly, domain.WeeklyEntry(day))
		}
	}
}
