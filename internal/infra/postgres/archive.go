package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"timebank-engine/internal/domain"
)

// Archive stores one row per closed calendar day, written by a dailyReset
// subscriber. It is a best-effort history sink; the engine never depends
// on it for correctness.
type Archive struct {
	pool *pgxpool.Pool
}

func NewArchive(pool *pgxpool.Pool) *Archive {
	return &Archive{pool: pool}
}

// SaveDay upserts the closed day's final state.
func (a *Archive) SaveDay(ctx context.Context, rec domain.DayRecord) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO daily_history (day, score, highest_streak, overtime_penalty, rollover_bonus, rollover_minutes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (day) DO UPDATE SET
			score = EXCLUDED.score,
			highest_streak = EXCLUDED.highest_streak,
			overtime_penalty = EXCLUDED.overtime_penalty,
			rollover_bonus = EXCLUDED.rollover_bonus,
			rollover_minutes = EXCLUDED.rollover_minutes`,
		rec.Date, rec.Score, rec.HighestStreak, rec.OvertimePenalty, rec.RolloverBonus, rec.RolloverMinutes)
	if err != nil {
		return fmt.Errorf("archive day %s: %w", rec.Date, err)
	}
	return nil
}

// Day loads a single archived day.
func (a *Archive) Day(ctx context.Context, date string) (domain.DayRecord, error) {
	var rec domain.DayRecord
	err := a.pool.QueryRow(ctx, `
		SELECT day::text, score, highest_streak, overtime_penalty, rollover_bonus, rollover_minutes
		FROM daily_history WHERE day = $1`, date).
		Scan(&rec.Date, &rec.Score, &rec.HighestStreak, &rec.OvertimePenalty, &rec.RolloverBonus, &rec.RolloverMinutes)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DayRecord{}, domain.ErrDayNotFound
	}
	if err != nil {
		return domain.DayRecord{}, fmt.Errorf("load day %s: %w", date, err)
	}
	return rec, nil
}

// RecentDays returns up to limit archived days, newest first.
func (a *Archive) RecentDays(ctx context.Context, limit int) ([]domain.DayRecord, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT day::text, score, highest_streak, overtime_penalty, rollover_bonus, rollover_minutes
		FROM daily_history ORDER BY day DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("load recent days: %w", err)
	}
	defer rows.Close()

	var days []domain.DayRecord
	for rows.Next() {
		var rec domain.DayRecord
		if err := rows.Scan(&rec.Date, &rec.Score, &rec.HighestStreak, &rec.OvertimePenalty, &rec.RolloverBonus, &rec.RolloverMinutes); err != nil {
			return nil, fmt.Errorf("scan day: %w", err)
		}
		days = append(days, rec)
	}
	return days, rows.Err()
}
