// Package domain holds the progression types shared by the engine, the
// store and the API. Domain types are pure: no infrastructure dependency.
package domain

import "time"

// ─── Title Types ────────────────────────────────────────────────────────────

// TitleRank is one rung of the XP title ladder.
type TitleRank struct {
	MinXP int64  `json:"min_xp" toml:"min_xp" yaml:"min_xp"`
	Title string `json:"title" toml:"title" yaml:"title"`
	Color string `json:"color" toml:"color" yaml:"color"`
	Emoji string `json:"emoji" toml:"emoji" yaml:"emoji"`
}

// NextTitle is the next rank above the user's XP and how far away it is.
type NextTitle struct {
	TitleRank
	XPNeeded int64 `json:"xp_needed" yaml:"xp_needed"`
}

// TitleStatus is the title ladder position for a given XP total.
type TitleStatus struct {
	TotalXP  int64      `json:"total_xp" yaml:"total_xp"`
	Current  TitleRank  `json:"current" yaml:"current"`
	Next     *NextTitle `json:"next" yaml:"next"` // nil at max rank
	Progress float64    `json:"progress_pct" yaml:"progress_pct"`
}

// ─── Streak Types ───────────────────────────────────────────────────────────

// StreakState is the persisted streak record of one user.
type StreakState struct {
	CurrentStreak    int    `json:"current_streak" yaml:"current_streak"`
	LongestStreak    int    `json:"longest_streak" yaml:"longest_streak"`
	LastCompletion   Date   `json:"last_completion" yaml:"last_completion"`
	FrozenThrough    Date   `json:"frozen_through" yaml:"frozen_through"` // last missed day covered by a freeze
	FreezesRemaining int    `json:"freezes_remaining" yaml:"freezes_remaining"`
	FreezeMonth      string `json:"freeze_month" yaml:"freeze_month"` // "2026-01": month the allotment was granted for
	Month            string `json:"month" yaml:"month"`                // month MonthlyDates belongs to
	MonthlyDates     []Date `json:"monthly_dates" yaml:"monthly_dates"`
	TotalQuizDays    int    `json:"total_quiz_days" yaml:"total_quiz_days"`
	Version          int64  `json:"version" yaml:"version"`
}

// Clone returns a deep copy so transitions never alias the caller's slice.
func (s StreakState) Clone() StreakState {
	c := s
	if s.MonthlyDates != nil {
		c.MonthlyDates = append([]Date(nil), s.MonthlyDates...)
	}
	return c
}

// CoveredThrough is the latest day that keeps the streak alive:
// a completion or a freeze-covered miss.
func (s StreakState) CoveredThrough() Date {
	return LaterDate(s.LastCompletion, s.FrozenThrough)
}

// StreakStatus is the conceptual state of a streak on a given day.
type StreakStatus string

const (
	StreakNone   StreakStatus = "none"
	StreakActive StreakStatus = "active"
	StreakAtRisk StreakStatus = "at_risk"
	StreakBroken StreakStatus = "broken"
)

// StreakView is a StreakState evaluated against a particular day.
type StreakView struct {
	Today              Date         `json:"today" yaml:"today"`
	Status             StreakStatus `json:"status" yaml:"status"`
	CurrentStreak      int          `json:"current_streak" yaml:"current_streak"`
	LongestStreak      int          `json:"longest_streak" yaml:"longest_streak"`
	LastCompletion     Date         `json:"last_completion" yaml:"last_completion"`
	HasCompletedToday  bool         `json:"has_completed_today" yaml:"has_completed_today"`
	FreezesRemaining   int          `json:"freezes_remaining" yaml:"freezes_remaining"`
	CanUseFreeze       bool         `json:"can_use_freeze" yaml:"can_use_freeze"`
	MonthlyDates       []Date       `json:"monthly_dates" yaml:"monthly_dates"`
	MonthlyCount       int          `json:"monthly_count" yaml:"monthly_count"`
	DaysElapsedInMonth int          `json:"days_elapsed_in_month" yaml:"days_elapsed_in_month"`
	MonthlyPercentage  int          `json:"monthly_percentage" yaml:"monthly_percentage"`
	TotalQuizDays      int          `json:"total_quiz_days" yaml:"total_quiz_days"`
}

// ─── XP Types ───────────────────────────────────────────────────────────────

// UserProgress is the XP side of a user profile.
type UserProgress struct {
	UserID    string    `json:"user_id" yaml:"user_id"`
	TotalXP   int64     `json:"total_xp" yaml:"total_xp"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// XPSource categorizes how XP was earned.
type XPSource string

const (
	XPQuizCompleted XPSource = "quiz_completed"
	XPQuizCreated   XPSource = "quiz_created"
	XPStreakBonus   XPSource = "streak_bonus"
	XPManual        XPSource = "manual"
)

// Valid reports whether s is a known source.
func (s XPSource) Valid() bool {
	switch s {
	case XPQuizCompleted, XPQuizCreated, XPStreakBonus, XPManual:
		return true
	}
	return false
}

// XPEvent is one append-only entry of the XP ledger.
type XPEvent struct {
	ID        string    `json:"id" yaml:"id"`
	UserID    string    `json:"user_id" yaml:"user_id"`
	Amount    int64     `json:"amount" yaml:"amount"`
	Source    XPSource  `json:"source" yaml:"source"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// XPAward is the result of adding XP to a user.
type XPAward struct {
	Event    XPEvent     `json:"event" yaml:"event"`
	Title    TitleStatus `json:"title" yaml:"title"`
	RankedUp bool        `json:"ranked_up" yaml:"ranked_up"`
}
