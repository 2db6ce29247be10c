package domain

// Event names published by the engine's notifier. Collaborators (UI, sound,
// notifications) subscribe by name; payloads are the typed structs below.
const (
	EventScoreUpdated   = "scoreUpdated"
	EventPenaltyApplied = "penaltyApplied"
	EventDailyReset     = "dailyReset"
	EventTimerUpdate    = "timerUpdate"
	EventShowMessage    = "showMessage"
)

// ScoreUpdate is the payload of EventScoreUpdated.
type ScoreUpdate struct {
	DailyScore    int `json:"dailyScore"`
	SessionScore  int `json:"sessionScore"`
	CurrentStreak int `json:"currentStreak"`
	HighestStreak int `json:"highestStreak"`
}

// PenaltyUpdate is the payload of EventPenaltyApplied.
type PenaltyUpdate struct {
	Penalty         int `json:"penalty"`
	OvertimeMinutes int `json:"overtimeMinutes"`
	DailyScore      int `json:"dailyScore"`
	TotalPenalty    int `json:"totalPenalty"`
}

// DailyResetSummary is the payload of EventDailyReset. Closed carries the
// finished day's final state for history collaborators such as the archive.
type DailyResetSummary struct {
	YesterdayScore  int       `json:"yesterdayScore"`
	RolloverBonus   int       `json:"rolloverBonus"`
	RolloverMinutes int       `json:"rolloverMinutes"`
	WasNewRecord    bool      `json:"wasNewRecord"`
	NewDayScore     int       `json:"newDayScore"`
	TotalDaysPlayed int       `json:"totalDaysPlayed"`
	Closed          DayRecord `json:"closed"`
}

// TimerUpdate is the payload of EventTimerUpdate.
type TimerUpdate struct {
	RemainingMs int64 `json:"remainingMs"`
	DebtMs      int64 `json:"debtMs"`
	IsTracking  bool  `json:"isTracking"`
	Expired     bool  `json:"expired"`
}

// Message is the payload of EventShowMessage, rendered by a UI collaborator.
type Message struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Priority string `json:"priority"`
}
