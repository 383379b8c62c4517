package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizhub/quizhub/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// ─── Database Lifecycle ─────────────────────────────────────────────────────

func TestOpen_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Join(dir, "quizhub.db")); os.IsNotExist(err) {
		t.Error("quizhub.db should exist")
	}
}

func TestOpen_Ping(t *testing.T) {
	db := newTestDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
}

func TestOpen_Reopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := Open(dir)
	require.NoError(t, err)
	_, err = db.SaveStreak(ctx, "u1", domain.StreakState{CurrentStreak: 2, LongestStreak: 2}, 0)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Migrations are idempotent and data survives.
	db, err = Open(dir)
	require.NoError(t, err)
	defer db.Close()

	s, ok, err := db.LoadStreak(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, s.CurrentStreak)
}

// ─── Streaks ────────────────────────────────────────────────────────────────

func TestLoadStreak_Missing(t *testing.T) {
	db := newTestDB(t)

	_, ok, err := db.LoadStreak(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveStreak_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	in := domain.StreakState{
		CurrentStreak:    4,
		LongestStreak:    9,
		LastCompletion:   domain.NewDate(2026, 3, 14),
		FrozenThrough:    domain.NewDate(2026, 3, 15),
		FreezesRemaining: 1,
		FreezeMonth:      "2026-03",
		Month:            "2026-03",
		MonthlyDates:     []domain.Date{domain.NewDate(2026, 3, 12), domain.NewDate(2026, 3, 13), domain.NewDate(2026, 3, 14)},
		TotalQuizDays:    31,
	}

	v, err := db.SaveStreak(ctx, "u1", in, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	out, ok, err := db.LoadStreak(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)

	in.Version = 1
	assert.Equal(t, in.CurrentStreak, out.CurrentStreak)
	assert.Equal(t, in.LongestStreak, out.LongestStreak)
	assert.True(t, in.LastCompletion.Equal(out.LastCompletion))
	assert.True(t, in.FrozenThrough.Equal(out.FrozenThrough))
	assert.Equal(t, in.FreezesRemaining, out.FreezesRemaining)
	assert.Equal(t, in.FreezeMonth, out.FreezeMonth)
	assert.Equal(t, in.Month, out.Month)
	assert.Equal(t, encodeDates(in.MonthlyDates), encodeDates(out.MonthlyDates))
	assert.Equal(t, in.TotalQuizDays, out.TotalQuizDays)
	assert.Equal(t, in.Version, out.Version)
}

func TestSaveStreak_ZeroDates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.SaveStreak(ctx, "u1", domain.StreakState{FreezesRemaining: 2}, 0)
	require.NoError(t, err)

	out, ok, err := db.LoadStreak(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, out.LastCompletion.IsZero())
	assert.True(t, out.FrozenThrough.IsZero())
	assert.Empty(t, out.MonthlyDates)
}

func TestSaveStreak_CompareAndSwap(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	v1, err := db.SaveStreak(ctx, "u1", domain.StreakState{CurrentStreak: 1, LongestStreak: 1}, 0)
	require.NoError(t, err)

	// Second create loses.
	_, err = db.SaveStreak(ctx, "u1", domain.StreakState{CurrentStreak: 7, LongestStreak: 7}, 0)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	v2, err := db.SaveStreak(ctx, "u1", domain.StreakState{CurrentStreak: 2, LongestStreak: 2}, v1)
	require.NoError(t, err)
	assert.Equal(t, v1+1, v2)

	// Stale version loses.
	_, err = db.SaveStreak(ctx, "u1", domain.StreakState{CurrentStreak: 9, LongestStreak: 9}, v1)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	out, _, err := db.LoadStreak(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, out.CurrentStreak)
	assert.Equal(t, v2, out.Version)
}

func TestSaveStreak_UpdateMissingRow(t *testing.T) {
	db := newTestDB(t)

	_, err := db.SaveStreak(context.Background(), "ghost", domain.StreakState{}, 3)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)
}

func TestSaveCompletion_RecordsDay(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	day := domain.NewDate(2026, 5, 1)

	state := domain.StreakState{CurrentStreak: 1, LongestStreak: 1, LastCompletion: day, TotalQuizDays: 1}
	v1, recorded, err := db.SaveCompletion(ctx, "u1", state, 0, day)
	require.NoError(t, err)
	assert.True(t, recorded)
	assert.Equal(t, int64(1), v1)

	// Same day again (e.g. after a reset): stored, but not counted twice.
	state.TotalQuizDays = 2
	v2, recorded, err := db.SaveCompletion(ctx, "u1", state, v1, day)
	require.NoError(t, err)
	assert.False(t, recorded, "same day must not be recorded twice")
	assert.Equal(t, int64(2), v2)

	out, _, err := db.LoadStreak(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, out.TotalQuizDays)

	_, recorded, err = db.SaveCompletion(ctx, "u2", state, 0, day)
	require.NoError(t, err)
	assert.True(t, recorded, "days are per user")

	_, _, err = db.SaveCompletion(ctx, "u1", state, v2, day.AddDays(-3))
	require.NoError(t, err)

	days, err := db.CompletionDays(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.True(t, days[0].Equal(day.AddDays(-3)))
	assert.True(t, days[1].Equal(day))
}

func TestSaveCompletion_ConflictRollsBackDay(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	day := domain.NewDate(2026, 5, 1)
	state := domain.StreakState{CurrentStreak: 1, LongestStreak: 1, LastCompletion: day, TotalQuizDays: 1}

	_, err := db.SaveStreak(ctx, "u1", domain.StreakState{}, 0)
	require.NoError(t, err)

	_, _, err = db.SaveCompletion(ctx, "u1", state, 7, day)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	days, err := db.CompletionDays(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, days, "conflicting write must not leave a completion day behind")
}

func TestSaveCompletion_FailedInsertLeavesStreak(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	day := domain.NewDate(2026, 5, 1)

	_, err := db.db.Exec(`DROP TABLE completion_days`)
	require.NoError(t, err)

	state := domain.StreakState{CurrentStreak: 1, LongestStreak: 1, LastCompletion: day, TotalQuizDays: 1}
	_, _, err = db.SaveCompletion(ctx, "u1", state, 0, day)
	require.Error(t, err)

	_, ok, err := db.LoadStreak(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok, "streak must not be written without its completion day")
}

func TestCompletionDays_UnknownUser(t *testing.T) {
	db := newTestDB(t)

	days, err := db.CompletionDays(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, days)
}

// ─── XP ─────────────────────────────────────────────────────────────────────

func TestProgress_UnknownUser(t *testing.T) {
	db := newTestDB(t)

	p, err := db.Progress(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, "nobody", p.UserID)
	assert.Zero(t, p.TotalXP)
}

func TestAddXP_Accumulates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	total, err := db.AddXP(ctx, domain.XPEvent{ID: "e1", UserID: "u1", Amount: 40, Source: domain.XPQuizCompleted, CreatedAt: now})
	require.NoError(t, err)
	assert.Equal(t, int64(40), total)

	total, err = db.AddXP(ctx, domain.XPEvent{ID: "e2", UserID: "u1", Amount: 60, Source: domain.XPManual, CreatedAt: now.Add(time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, int64(100), total)

	p, err := db.Progress(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), p.TotalXP)
	assert.True(t, p.UpdatedAt.Equal(now.Add(time.Minute)))
}

func TestAddXP_RejectsNonPositive(t *testing.T) {
	db := newTestDB(t)

	_, err := db.AddXP(context.Background(), domain.XPEvent{ID: "e1", UserID: "u1", Amount: 0, Source: domain.XPManual})
	assert.ErrorIs(t, err, domain.ErrInvalidXPAmount)
}

func TestAddXP_DuplicateIDRollsBack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ev := domain.XPEvent{ID: "dup", UserID: "u1", Amount: 10, Source: domain.XPManual, CreatedAt: time.Now()}

	_, err := db.AddXP(ctx, ev)
	require.NoError(t, err)
	_, err = db.AddXP(ctx, ev)
	require.Error(t, err)

	p, err := db.Progress(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), p.TotalXP, "failed insert must not touch the total")
}

func TestListXPEvents_NewestFirst(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		_, err := db.AddXP(ctx, domain.XPEvent{
			ID: id, UserID: "u1", Amount: int64(i + 1), Source: domain.XPQuizCompleted,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	events, err := db.ListXPEvents(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "c", events[0].ID)
	assert.Equal(t, "b", events[1].ID)
	assert.Equal(t, domain.XPQuizCompleted, events[0].Source)
	assert.True(t, events[0].CreatedAt.Equal(base.Add(2*time.Hour)))
}

func TestDateCodec(t *testing.T) {
	dates := []domain.Date{domain.NewDate(2026, 1, 30), domain.NewDate(2026, 1, 31)}
	enc := encodeDates(dates)
	assert.Equal(t, "2026-01-30,2026-01-31", enc)

	dec, err := decodeDates(enc)
	require.NoError(t, err)
	assert.Equal(t, enc, encodeDates(dec))

	empty, err := decodeDates("")
	require.NoError(t, err)
	assert.Nil(t, empty)

	_, err = decodeDates("2026-13-01")
	assert.ErrorIs(t, err, domain.ErrInvalidDate)
}
