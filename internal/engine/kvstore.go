package engine

import "context"

// KVStore abstracts durable string key-value persistence. Implementations
// live in internal/infra; the engine never assumes a write succeeded and
// keeps in-memory state authoritative for the running session.
type KVStore interface {
	// Get returns the stored value and whether the key existed.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set durably stores value under key.
	Set(ctx context.Context, key, value string) error
}

// Persisted key layout. The ledger and score engine own disjoint slices of
// the store; no other component writes these keys.
const (
	keyLedger       = "timebank:ledger"
	keyScoreDaily   = "timebank:score:daily"
	keyScoreHistory = "timebank:score:history"
	keyCurrentDate  = "timebank:day"
)

// ledgerRecord is the persisted form of the time ledger.
type ledgerRecord struct {
	Date        string `json:"date"`
	RemainingMs int64  `json:"remainingMs"`
	DebtMs      int64  `json:"debtMs"`
	IsTracking  bool   `json:"isTracking"`
	LastUpdate  int64  `json:"lastUpdate"` // unix ms
}

// dailyRecord is the persisted daily score snapshot.
type dailyRecord struct {
	Date            string `json:"date"`
	DailyScore      int    `json:"dailyScore"`
	CurrentStreak   int    `json:"currentStreak"`
	HighestStreak   int    `json:"highestStreak"`
	OvertimePenalty int    `json:"overtimePenalty"`
	RolloverBonus   int    `json:"rolloverBonus"`
}

// historyRecord is the persisted cross-day score history.
type historyRecord struct {
	AllTimeHighScore int                 `json:"allTimeHighScore"`
	TotalDaysPlayed  int                 `json:"totalDaysPlayed"`
	WeeklyScores     []weeklyEntryRecord `json:"weeklyScores"`
	MonthlyTotal     int                 `json:"monthlyTotal"`
	YesterdayScore   int                 `json:"yesterdayScore"`
	Stats            lifetimeStatsRecord `json:"stats"`
}

type weeklyEntryRecord struct {
	Date   string `json:"date"`
	Score  int    `json:"score"`
	Streak int    `json:"streak"`
}

type lifetimeStatsRecord struct {
	QuestionsAnswered int   `json:"questionsAnswered"`
	CorrectAnswers    int   `json:"correctAnswers"`
	TimeEarnedMs      int64 `json:"timeEarnedMs"`
	TimeSpentMs       int64 `json:"timeSpentMs"`
}
