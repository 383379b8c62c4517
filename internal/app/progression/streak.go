// Package progression implements the QuizHub progression engine:
// the XP title ladder and the daily streak tracker with freeze tokens.
//
// Ladder and Tracker are pure. They take a state and a caller-supplied day
// and return a new state; persistence lives in Service.
package progression

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/quizhub/quizhub/internal/domain"
)

// Policy configures the streak tracker.
type Policy struct {
	// MaxFreezes is the monthly freeze allotment and the upper bound on
	// FreezesRemaining.
	MaxFreezes int
	// Strict turns malformed stored state into an error instead of
	// clamping it and logging a warning.
	Strict bool
}

// DefaultPolicy returns 2 freezes a month, self-healing.
func DefaultPolicy() Policy {
	return Policy{MaxFreezes: 2}
}

// Outcome describes what a completion did to the streak.
type Outcome string

const (
	OutcomeStarted         Outcome = "started"          // first completion ever
	OutcomeExtended        Outcome = "extended"         // completed the day after the last one
	OutcomeBridged         Outcome = "bridged"          // freezes covered the missed days
	OutcomeReset           Outcome = "reset"            // gap too large, new streak of 1
	OutcomeAlreadyRecorded Outcome = "already_recorded" // same day, no change
	OutcomeStale           Outcome = "stale"            // day already covered or in an earlier month, no change
)

// Changed reports whether the outcome modified the state.
func (o Outcome) Changed() bool {
	return o != OutcomeAlreadyRecorded && o != OutcomeStale
}

// Message returns a short user-facing description.
func (o Outcome) Message() string {
	switch o {
	case OutcomeStarted:
		return "Streak started!"
	case OutcomeExtended:
		return "Streak extended."
	case OutcomeBridged:
		return "Streak saved by a freeze."
	case OutcomeReset:
		return "Streak restarted."
	case OutcomeAlreadyRecorded:
		return "Already completed today."
	case OutcomeStale:
		return "A later day is already recorded."
	}
	return ""
}

// Tracker runs the streak state machine. It holds no per-user state and is
// safe for concurrent use.
type Tracker struct {
	policy Policy
	logger *zap.Logger
}

// NewTracker creates a tracker. A nil logger discards output.
func NewTracker(policy Policy, logger *zap.Logger) *Tracker {
	if policy.MaxFreezes < 0 {
		policy.MaxFreezes = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{policy: policy, logger: logger}
}

// Policy returns the tracker's policy.
func (t *Tracker) Policy() Policy { return t.policy }

// Complete records a qualifying activity on today.
//
// Same day: no-op. Day after the last completion, or after a freeze-covered
// miss: streak+1. First ever: 1. Anything else: reset to 1.
//
// Days that are already covered (before the last completion, on or before a
// frozen day, or in a month earlier than the stored one) are stale.
func (t *Tracker) Complete(s domain.StreakState, today domain.Date) (domain.StreakState, Outcome, error) {
	if today.IsZero() {
		return s, "", fmt.Errorf("%w: empty completion day", domain.ErrInvalidDate)
	}

	last := s.LastCompletion
	if !last.IsZero() {
		if today.Equal(last) {
			return s.Clone(), OutcomeAlreadyRecorded, nil
		}
		if today.Before(last) {
			return s.Clone(), OutcomeStale, nil
		}
	}
	if !s.FrozenThrough.IsZero() && !today.After(s.FrozenThrough) {
		return s.Clone(), OutcomeStale, nil
	}
	if s.Month != "" && today.MonthKey() < s.Month {
		return s.Clone(), OutcomeStale, nil
	}

	next, err := t.prepare(s, today)
	if err != nil {
		return s, "", err
	}

	var outcome Outcome
	switch {
	case next.LastCompletion.IsZero():
		next.CurrentStreak = 1
		outcome = OutcomeStarted
	case today.DaysSince(next.LastCompletion) == 1:
		next.CurrentStreak++
		outcome = OutcomeExtended
	case today.DaysSince(next.CoveredThrough()) == 1:
		next.CurrentStreak++
		outcome = OutcomeBridged
	default:
		next.CurrentStreak = 1
		outcome = OutcomeReset
	}

	next.LastCompletion = today
	next.FrozenThrough = domain.Date{}
	if next.CurrentStreak > next.LongestStreak {
		next.LongestStreak = next.CurrentStreak
	}
	next.MonthlyDates = insertDate(next.MonthlyDates, today)
	next.TotalQuizDays++

	t.logger.Debug("streak completion",
		zap.String("day", today.String()),
		zap.String("outcome", string(outcome)),
		zap.Int("current", next.CurrentStreak),
		zap.Int("longest", next.LongestStreak))

	return next, outcome, nil
}

// UseFreeze spends one freeze to cover yesterday. Allowed only when exactly
// one day (yesterday) has been missed, the streak is alive and a freeze is
// left. Failures are *domain.FreezeError.
func (t *Tracker) UseFreeze(s domain.StreakState, today domain.Date) (domain.StreakState, error) {
	if today.IsZero() {
		return s, fmt.Errorf("%w: empty freeze day", domain.ErrInvalidDate)
	}

	next, err := t.prepare(s, today)
	if err != nil {
		return s, err
	}

	if reason, ok := freezeCheck(next, today); !ok {
		t.logger.Debug("freeze refused",
			zap.String("day", today.String()),
			zap.String("reason", string(reason)))
		return s, &domain.FreezeError{Reason: reason}
	}

	next.FreezesRemaining--
	next.FrozenThrough = today.AddDays(-1)

	t.logger.Debug("freeze used",
		zap.String("covers", next.FrozenThrough.String()),
		zap.Int("remaining", next.FreezesRemaining))

	return next, nil
}

// View evaluates s on today without modifying it.
func (t *Tracker) View(s domain.StreakState, today domain.Date) (domain.StreakView, error) {
	if today.IsZero() {
		return domain.StreakView{}, fmt.Errorf("%w: empty view day", domain.ErrInvalidDate)
	}

	cur, err := t.prepare(s, today)
	if err != nil {
		return domain.StreakView{}, err
	}

	v := domain.StreakView{
		Today:              today,
		CurrentStreak:      cur.CurrentStreak,
		LongestStreak:      cur.LongestStreak,
		LastCompletion:     cur.LastCompletion,
		HasCompletedToday:  cur.LastCompletion.Equal(today),
		FreezesRemaining:   cur.FreezesRemaining,
		MonthlyDates:       append([]domain.Date{}, cur.MonthlyDates...),
		MonthlyCount:       len(cur.MonthlyDates),
		DaysElapsedInMonth: today.DayOfMonth(),
		TotalQuizDays:      cur.TotalQuizDays,
	}
	if today.MonthKey() < cur.Month {
		// The stored days belong to a later month.
		v.MonthlyDates = []domain.Date{}
		v.MonthlyCount = 0
	}
	_, v.CanUseFreeze = freezeCheck(cur, today)
	v.MonthlyPercentage = monthlyPercentage(v.MonthlyCount, v.DaysElapsedInMonth)

	gap := today.DaysSince(cur.CoveredThrough())
	switch {
	case cur.CurrentStreak == 0 || cur.LastCompletion.IsZero():
		v.Status = domain.StreakNone
	case gap <= 1:
		v.Status = domain.StreakActive
	case gap == 2 && v.CanUseFreeze:
		v.Status = domain.StreakAtRisk
	default:
		v.Status = domain.StreakBroken
		v.CurrentStreak = 0
	}
	return v, nil
}

// CanUseFreeze reports whether UseFreeze would succeed on today.
func (t *Tracker) CanUseFreeze(s domain.StreakState, today domain.Date) bool {
	cur, err := t.prepare(s, today)
	if err != nil {
		return false
	}
	_, ok := freezeCheck(cur, today)
	return ok
}

// Normalize checks s against the streak invariants and returns a clamped
// copy. The error wraps domain.ErrMalformedState and lists every problem.
func (t *Tracker) Normalize(s domain.StreakState) (domain.StreakState, error) {
	f := s.Clone()
	var problems []string

	if f.CurrentStreak < 0 {
		problems = append(problems, fmt.Sprintf("current streak %d < 0", f.CurrentStreak))
		f.CurrentStreak = 0
	}
	if f.LongestStreak < 0 {
		problems = append(problems, fmt.Sprintf("longest streak %d < 0", f.LongestStreak))
		f.LongestStreak = 0
	}
	if f.TotalQuizDays < 0 {
		problems = append(problems, fmt.Sprintf("total quiz days %d < 0", f.TotalQuizDays))
		f.TotalQuizDays = 0
	}
	if f.FreezesRemaining < 0 {
		problems = append(problems, fmt.Sprintf("freezes remaining %d < 0", f.FreezesRemaining))
		f.FreezesRemaining = 0
	}
	if f.FreezesRemaining > t.policy.MaxFreezes {
		problems = append(problems, fmt.Sprintf("freezes remaining %d > max %d", f.FreezesRemaining, t.policy.MaxFreezes))
		f.FreezesRemaining = t.policy.MaxFreezes
	}
	if f.CurrentStreak > 0 && f.LastCompletion.IsZero() {
		problems = append(problems, "streak without a completion day")
		f.CurrentStreak = 0
	}
	if f.LongestStreak < f.CurrentStreak {
		problems = append(problems, fmt.Sprintf("longest streak %d < current %d", f.LongestStreak, f.CurrentStreak))
		f.LongestStreak = f.CurrentStreak
	}
	if !f.FrozenThrough.IsZero() && !f.FrozenThrough.After(f.LastCompletion) {
		problems = append(problems, "freeze marker not after last completion")
		f.FrozenThrough = domain.Date{}
	}

	if len(f.MonthlyDates) > 0 {
		if f.Month == "" {
			problems = append(problems, "monthly dates without a month")
			f.Month = latestDate(f.MonthlyDates).MonthKey()
		}
		cleaned := cleanMonthlyDates(f.MonthlyDates, f.Month, f.LastCompletion)
		if len(cleaned) != len(f.MonthlyDates) || !sort.SliceIsSorted(f.MonthlyDates, func(i, j int) bool {
			return f.MonthlyDates[i].Before(f.MonthlyDates[j])
		}) {
			problems = append(problems, "monthly dates unsorted, duplicated or out of range")
		}
		f.MonthlyDates = cleaned
	}
	if f.TotalQuizDays < len(f.MonthlyDates) {
		problems = append(problems, fmt.Sprintf("total quiz days %d < monthly count %d", f.TotalQuizDays, len(f.MonthlyDates)))
		f.TotalQuizDays = len(f.MonthlyDates)
	}

	if len(problems) > 0 {
		return f, fmt.Errorf("%w: %s", domain.ErrMalformedState, strings.Join(problems, "; "))
	}
	return f, nil
}

// prepare heals s (or fails in strict mode) and applies the lazy monthly
// rollover for today.
func (t *Tracker) prepare(s domain.StreakState, today domain.Date) (domain.StreakState, error) {
	next, err := t.Normalize(s)
	if err != nil {
		if t.policy.Strict {
			return s, err
		}
		t.logger.Warn("healed malformed streak state", zap.Error(err))
	}
	t.rollMonth(&next, today)
	return next, nil
}

// rollMonth clears last month's completion days and grants the monthly
// freeze allotment. Only moves forward; a view of an earlier month leaves
// the state alone.
func (t *Tracker) rollMonth(s *domain.StreakState, today domain.Date) {
	month := today.MonthKey()

	if s.Month < month {
		s.Month = month
		s.MonthlyDates = nil
	}

	switch {
	case s.FreezeMonth == "":
		// New state gets a full allotment; older records keep their count.
		s.FreezeMonth = month
		if s.LastCompletion.IsZero() && s.FreezesRemaining == 0 {
			s.FreezesRemaining = t.policy.MaxFreezes
		}
	case s.FreezeMonth < month:
		s.FreezeMonth = month
		s.FreezesRemaining = t.policy.MaxFreezes
	}
}

// freezeCheck evaluates the UseFreeze preconditions.
func freezeCheck(s domain.StreakState, today domain.Date) (domain.FreezeReason, bool) {
	if s.CurrentStreak == 0 || s.LastCompletion.IsZero() {
		return domain.FreezeNoStreak, false
	}
	gap := today.DaysSince(s.CoveredThrough())
	switch {
	case gap < 2:
		return domain.FreezeNoGap, false
	case gap > 2:
		return domain.FreezeGapTooLarge, false
	}
	if s.FreezesRemaining <= 0 {
		return domain.FreezeNoTokens, false
	}
	return "", true
}

// monthlyPercentage is round(100*count/elapsed) clamped to [0, 100].
func monthlyPercentage(count, elapsed int) int {
	if elapsed <= 0 || count <= 0 {
		return 0
	}
	pct := int(math.Round(100 * float64(count) / float64(elapsed)))
	return min(max(pct, 0), 100)
}

// insertDate adds d to a sorted, deduplicated slice.
func insertDate(dates []domain.Date, d domain.Date) []domain.Date {
	i := sort.Search(len(dates), func(i int) bool { return !dates[i].Before(d) })
	if i < len(dates) && dates[i].Equal(d) {
		return dates
	}
	dates = append(dates, domain.Date{})
	copy(dates[i+1:], dates[i:])
	dates[i] = d
	return dates
}

// cleanMonthlyDates sorts, dedupes and drops days outside month or after last.
func cleanMonthlyDates(dates []domain.Date, month string, last domain.Date) []domain.Date {
	var out []domain.Date
	for _, d := range dates {
		if d.IsZero() || d.MonthKey() != month {
			continue
		}
		if !last.IsZero() && d.After(last) {
			continue
		}
		out = insertDate(out, d)
	}
	return out
}

func latestDate(dates []domain.Date) domain.Date {
	var latest domain.Date
	for _, d := range dates {
		latest = domain.LaterDate(latest, d)
	}
	return latest
}
