package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/quizhub/quizhub/internal/domain"
)

// ─── Streaks ────────────────────────────────────────────────────────────────

// LoadStreak returns the user's streak state. ok is false if none is stored.
func (d *DB) LoadStreak(ctx context.Context, userID string) (domain.StreakState, bool, error) {
	var (
		s                          domain.StreakState
		last, frozen, monthlyDates string
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT current_streak, longest_streak, last_completion, frozen_through,
		        freezes_remaining, freeze_month, month, monthly_dates, total_quiz_days, version
		 FROM user_streaks WHERE user_id = ?`, userID,
	).Scan(&s.CurrentStreak, &s.LongestStreak, &last, &frozen,
		&s.FreezesRemaining, &s.FreezeMonth, &s.Month, &monthlyDates, &s.TotalQuizDays, &s.Version)
	if err == sql.ErrNoRows {
		return domain.StreakState{}, false, nil
	}
	if err != nil {
		return domain.StreakState{}, false, fmt.Errorf("load streak %s: %w", userID, err)
	}

	if err := s.LastCompletion.UnmarshalText([]byte(last)); err != nil {
		return domain.StreakState{}, false, fmt.Errorf("load streak %s: last_completion: %w", userID, err)
	}
	if err := s.FrozenThrough.UnmarshalText([]byte(frozen)); err != nil {
		return domain.StreakState{}, false, fmt.Errorf("load streak %s: frozen_through: %w", userID, err)
	}
	if s.MonthlyDates, err = decodeDates(monthlyDates); err != nil {
		return domain.StreakState{}, false, fmt.Errorf("load streak %s: monthly_dates: %w", userID, err)
	}
	return s, true, nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SaveStreak writes state if the stored version equals expectedVersion
// (0 = no row yet). Returns the new version or domain.ErrVersionConflict.
func (d *DB) SaveStreak(ctx context.Context, userID string, s domain.StreakState, expectedVersion int64) (int64, error) {
	return saveStreak(ctx, d.db, userID, s, expectedVersion)
}

// SaveCompletion adds day to the lifetime completion record and writes
// state in one transaction. If day was already recorded, state's
// TotalQuizDays is stored without counting it again. recorded reports
// whether day was new. A version conflict rolls back the insert.
func (d *DB) SaveCompletion(ctx context.Context, userID string, s domain.StreakState, expectedVersion int64, day domain.Date) (version int64, recorded bool, err error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO completion_days (user_id, day) VALUES (?, ?)`,
		userID, day.String(),
	)
	if err != nil {
		return 0, false, fmt.Errorf("record completion day: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("record completion day: %w", err)
	}
	recorded = n > 0
	if !recorded && s.TotalQuizDays > 0 {
		s.TotalQuizDays--
	}

	version, err = saveStreak(ctx, tx, userID, s, expectedVersion)
	if err != nil {
		return 0, false, err
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("commit: %w", err)
	}
	return version, recorded, nil
}

func saveStreak(ctx context.Context, exec execer, userID string, s domain.StreakState, expectedVersion int64) (int64, error) {
	now := time.Now().UnixMilli()
	args := []any{
		s.CurrentStreak, s.LongestStreak, s.LastCompletion.String(), s.FrozenThrough.String(),
		s.FreezesRemaining, s.FreezeMonth, s.Month, encodeDates(s.MonthlyDates), s.TotalQuizDays,
	}

	var (
		result sql.Result
		err    error
	)
	if expectedVersion == 0 {
		result, err = exec.ExecContext(ctx,
			`INSERT INTO user_streaks (current_streak, longest_streak, last_completion, frozen_through,
			        freezes_remaining, freeze_month, month, monthly_dates, total_quiz_days,
			        user_id, version, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
			 ON CONFLICT(user_id) DO NOTHING`,
			append(args, userID, now)...,
		)
	} else {
		result, err = exec.ExecContext(ctx,
			`UPDATE user_streaks SET
			        current_streak = ?, longest_streak = ?, last_completion = ?, frozen_through = ?,
			        freezes_remaining = ?, freeze_month = ?, month = ?, monthly_dates = ?, total_quiz_days = ?,
			        version = version + 1, updated_at = ?
			 WHERE user_id = ? AND version = ?`,
			append(args, now, userID, expectedVersion)...,
		)
	}
	if err != nil {
		return 0, fmt.Errorf("save streak %s: %w", userID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("save streak %s: %w", userID, err)
	}
	if n == 0 {
		return 0, domain.ErrVersionConflict
	}
	return expectedVersion + 1, nil
}

// CompletionDays returns the user's lifetime completion days, oldest first.
func (d *DB) CompletionDays(ctx context.Context, userID string) ([]domain.Date, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT day FROM completion_days WHERE user_id = ? ORDER BY day`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list completion days %s: %w", userID, err)
	}
	defer rows.Close()

	var days []domain.Date
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		day, err := domain.ParseDate(s)
		if err != nil {
			return nil, err
		}
		days = append(days, day)
	}
	return days, rows.Err()
}

// ─── XP ─────────────────────────────────────────────────────────────────────

// Progress returns the user's XP profile. Unknown users have zero XP.
func (d *DB) Progress(ctx context.Context, userID string) (domain.UserProgress, error) {
	p := domain.UserProgress{UserID: userID}
	var updated int64
	err := d.db.QueryRowContext(ctx,
		`SELECT total_xp, updated_at FROM user_progress WHERE user_id = ?`, userID,
	).Scan(&p.TotalXP, &updated)
	if err == sql.ErrNoRows {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("load progress %s: %w", userID, err)
	}
	p.UpdatedAt = time.UnixMilli(updated).UTC()
	return p, nil
}

// AddXP appends ev to the ledger and bumps the cached total in one
// transaction. Returns the new total.
func (d *DB) AddXP(ctx context.Context, ev domain.XPEvent) (int64, error) {
	if ev.Amount <= 0 {
		return 0, fmt.Errorf("%w, got %d", domain.ErrInvalidXPAmount, ev.Amount)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	at := ev.CreatedAt.UnixMilli()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO xp_events (id, user_id, amount, source, created_at) VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.UserID, ev.Amount, string(ev.Source), at,
	); err != nil {
		return 0, fmt.Errorf("insert xp event: %w", err)
	}

	var total int64
	if err := tx.QueryRowContext(ctx,
		`INSERT INTO user_progress (user_id, total_xp, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			total_xp = total_xp + excluded.total_xp,
			updated_at = excluded.updated_at
		 RETURNING total_xp`,
		ev.UserID, ev.Amount, at,
	).Scan(&total); err != nil {
		return 0, fmt.Errorf("update progress: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return total, nil
}

// ListXPEvents returns up to limit events for the user, newest first.
func (d *DB) ListXPEvents(ctx context.Context, userID string, limit int) ([]domain.XPEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, user_id, amount, source, created_at FROM xp_events
		 WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.XPEvent
	for rows.Next() {
		var (
			ev     domain.XPEvent
			source string
			at     int64
		)
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.Amount, &source, &at); err != nil {
			return nil, err
		}
		ev.Source = domain.XPSource(source)
		ev.CreatedAt = time.UnixMilli(at).UTC()
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// encodeDates joins dates as "2026-01-02,2026-01-03".
func encodeDates(dates []domain.Date) string {
	parts := make([]string, len(dates))
	for i, d := range dates {
		parts[i] = d.String()
	}
	return strings.Join(parts, ",")
}

func decodeDates(s string) ([]domain.Date, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	dates := make([]domain.Date, 0, len(parts))
	for _, p := range parts {
		d, err := domain.ParseDate(p)
		if err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, nil
}
