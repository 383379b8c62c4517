package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// ProgressStore abstracts persistent streak and XP storage.
// Implemented by infra/sqlite.DB.
type ProgressStore interface {
	// LoadStreak returns the user's streak state and whether one exists.
	LoadStreak(ctx context.Context, userID string) (StreakState, bool, error)

	// SaveStreak writes state if the stored version still equals
	// expectedVersion (0 = not yet stored). Returns the new version or
	// ErrVersionConflict.
	SaveStreak(ctx context.Context, userID string, state StreakState, expectedVersion int64) (int64, error)

	// SaveCompletion is SaveStreak plus adding day to the lifetime
	// completion record, atomically. If day was already recorded the
	// stored TotalQuizDays does not count it again and recorded is false.
	SaveCompletion(ctx context.Context, userID string, state StreakState, expectedVersion int64, day Date) (version int64, recorded bool, err error)

	// CompletionDays returns the lifetime completion record, oldest first.
	CompletionDays(ctx context.Context, userID string) ([]Date, error)

	// Progress returns the user's XP profile (zero TotalXP if none).
	Progress(ctx context.Context, userID string) (UserProgress, error)

	// AddXP appends ev to the ledger and returns the new total.
	AddXP(ctx context.Context, ev XPEvent) (int64, error)

	// ListXPEvents returns the newest events first.
	ListXPEvents(ctx context.Context, userID string, limit int) ([]XPEvent, error)
}
