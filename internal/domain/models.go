package domain

import "time"

// AnswerContext carries the per-question details the score engine needs to
// compute time bonuses and per-category time rewards.
type AnswerContext struct {
	StartedAt time.Time
	Category  string
}

// AnswerResult summarizes the outcome of a recorded answer.
type AnswerResult struct {
	PointsEarned int  `json:"pointsEarned"`
	NewStreak    int  `json:"newStreak"`
	NewScore     int  `json:"newScore"`
	IsMilestone  bool `json:"isMilestone"`
	StreakLevel  int  `json:"streakLevel"`
}

// WeeklyEntry is one closed day in the rolling 7-day score history.
type WeeklyEntry struct {
	Date   string `json:"date"` // YYYY-MM-DD
	Score  int    `json:"score"`
	Streak int    `json:"streak"`
}

// LifetimeStats accumulate across daily resets and never reset.
type LifetimeStats struct {
	QuestionsAnswered int   `json:"questionsAnswered"`
	CorrectAnswers    int   `json:"correctAnswers"`
	TimeEarnedMs      int64 `json:"timeEarnedMs"`
	TimeSpentMs       int64 `json:"timeSpentMs"`
}

// ScoreInfo is a read-only aggregate view of the score engine's state.
type ScoreInfo struct {
	CurrentStreak int `json:"currentStreak"`
	HighestStreak int `json:"highestStreak"`
	SessionScore  int `json:"sessionScore"`

	DailyScore      int `json:"dailyScore"`
	YesterdayScore  int `json:"yesterdayScore"`
	RolloverBonus   int `json:"rolloverBonus"`
	OvertimePenalty int `json:"overtimePenalty"`

	AllTimeHighScore int           `json:"allTimeHighScore"`
	TotalDaysPlayed  int           `json:"totalDaysPlayed"`
	WeeklyScores     []WeeklyEntry `json:"weeklyScores"`
	WeeklyTotal      int           `json:"weeklyTotal"`
	WeeklyAverage    int           `json:"weeklyAverage"`
	MonthlyTotal     int           `json:"monthlyTotal"`

	StreakLevel   int     `json:"streakLevel"`
	NextMilestone int     `json:"nextMilestone"`
	Progress      float64 `json:"progress"`

	HoursOvertime   int `json:"hoursOvertime"`
	MinutesOvertime int `json:"minutesOvertime"`

	Stats LifetimeStats `json:"stats"`
}

// LedgerInfo is a read-only snapshot of the time ledger.
type LedgerInfo struct {
	RemainingMs int64  `json:"remainingMs"`
	DebtMs      int64  `json:"debtMs"`
	IsTracking  bool   `json:"isTracking"`
	Formatted   string `json:"formatted"`
}

// DayRecord is a closed day's final state, archived after the daily reset.
type DayRecord struct {
	Date            string `json:"date"`
	Score           int    `json:"score"`
	HighestStreak   int    `json:"highestStreak"`
	OvertimePenalty int    `json:"overtimePenalty"`
	RolloverBonus   int    `json:"rolloverBonus"`
	RolloverMinutes int    `json:"rolloverMinutes"`
}
