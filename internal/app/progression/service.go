package progression

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quizhub/quizhub/internal/domain"
	"github.com/quizhub/quizhub/internal/infra/metrics"
)

// DefaultMaxRetries bounds the compare-and-swap loop.
const DefaultMaxRetries = 5

// Service runs streak and XP operations against a ProgressStore.
// Each streak write is a read-modify-write guarded by the store's version
// check, so concurrent requests for one user serialize without locks here.
type Service struct {
	store      domain.ProgressStore
	tracker    *Tracker
	ladder     *Ladder
	logger     *zap.Logger
	maxRetries int
	now        func() time.Time
}

// NewService wires a service. maxRetries < 1 uses DefaultMaxRetries.
func NewService(store domain.ProgressStore, tracker *Tracker, ladder *Ladder, logger *zap.Logger, maxRetries int) *Service {
	if maxRetries < 1 {
		maxRetries = DefaultMaxRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:      store,
		tracker:    tracker,
		ladder:     ladder,
		logger:     logger,
		maxRetries: maxRetries,
		now:        time.Now,
	}
}

// Ladder returns the title ladder in use.
func (s *Service) Ladder() *Ladder { return s.ladder }

// Tracker returns the streak tracker in use.
func (s *Service) Tracker() *Tracker { return s.tracker }

// CompletionResult is what CompleteActivity reports back to the caller.
type CompletionResult struct {
	Outcome Outcome           `json:"outcome" yaml:"outcome"`
	Message string            `json:"message" yaml:"message"`
	Streak  domain.StreakView `json:"streak" yaml:"streak"`
}

// ─── Streaks ────────────────────────────────────────────────────────────────

// Streak returns the user's streak evaluated on today.
func (s *Service) Streak(ctx context.Context, userID string, today domain.Date) (domain.StreakView, error) {
	if err := ValidateUserID(userID); err != nil {
		return domain.StreakView{}, err
	}
	state, _, err := s.store.LoadStreak(ctx, userID)
	if err != nil {
		return domain.StreakView{}, err
	}
	s.checkState(userID, state)
	return s.tracker.View(state, today)
}

// CompleteActivity records a qualifying completion for today.
func (s *Service) CompleteActivity(ctx context.Context, userID string, today domain.Date) (CompletionResult, error) {
	if err := ValidateUserID(userID); err != nil {
		return CompletionResult{}, err
	}

	var outcome Outcome
	complete := func(cur domain.StreakState) (domain.StreakState, bool, error) {
		next, o, err := s.tracker.Complete(cur, today)
		if err != nil {
			return cur, false, err
		}
		outcome = o
		return next, o.Changed(), nil
	}
	save := func(next domain.StreakState, expected int64) (domain.StreakState, error) {
		version, recorded, err := s.store.SaveCompletion(ctx, userID, next, expected, today)
		if err != nil {
			return next, err
		}
		if !recorded && next.TotalQuizDays > 0 {
			next.TotalQuizDays--
		}
		next.Version = version
		return next, nil
	}

	state, err := s.update(ctx, userID, complete, save)
	if err != nil {
		return CompletionResult{}, err
	}
	metrics.Completions.WithLabelValues(string(outcome)).Inc()

	if outcome.Changed() {
		s.logger.Info("activity completed",
			zap.String("user", userID),
			zap.String("day", today.String()),
			zap.String("outcome", string(outcome)),
			zap.Int("streak", state.CurrentStreak))
	}

	view, err := s.tracker.View(state, today)
	if err != nil {
		return CompletionResult{}, err
	}
	return CompletionResult{Outcome: outcome, Message: outcome.Message(), Streak: view}, nil
}

// UseFreeze spends a freeze to cover yesterday.
// Refusals are *domain.FreezeError (errors.Is domain.ErrInvalidFreezeUse).
func (s *Service) UseFreeze(ctx context.Context, userID string, today domain.Date) (domain.StreakView, error) {
	if err := ValidateUserID(userID); err != nil {
		return domain.StreakView{}, err
	}

	state, err := s.update(ctx, userID, func(cur domain.StreakState) (domain.StreakState, bool, error) {
		next, err := s.tracker.UseFreeze(cur, today)
		if err != nil {
			return cur, false, err
		}
		return next, true, nil
	}, s.saveStreak(ctx, userID))
	if err != nil {
		var fe *domain.FreezeError
		if errors.As(err, &fe) {
			metrics.FreezesRejected.WithLabelValues(string(fe.Reason)).Inc()
			s.logger.Info("freeze refused",
				zap.String("user", userID),
				zap.String("reason", string(fe.Reason)))
		}
		return domain.StreakView{}, err
	}

	metrics.FreezesUsed.Inc()
	s.logger.Info("freeze used",
		zap.String("user", userID),
		zap.String("covers", state.FrozenThrough.String()),
		zap.Int("remaining", state.FreezesRemaining))
	return s.tracker.View(state, today)
}

// saveFunc writes next if the stored version still equals expected and
// returns the state as stored.
type saveFunc func(next domain.StreakState, expected int64) (domain.StreakState, error)

func (s *Service) saveStreak(ctx context.Context, userID string) saveFunc {
	return func(next domain.StreakState, expected int64) (domain.StreakState, error) {
		version, err := s.store.SaveStreak(ctx, userID, next, expected)
		if err != nil {
			return next, err
		}
		next.Version = version
		return next, nil
	}
}

// update runs fn against the stored state and writes the result through
// save, retrying on version conflicts. fn reports whether it changed
// anything; unchanged states are not written.
func (s *Service) update(ctx context.Context, userID string, fn func(domain.StreakState) (domain.StreakState, bool, error), save saveFunc) (domain.StreakState, error) {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		cur, _, err := s.store.LoadStreak(ctx, userID)
		if err != nil {
			return domain.StreakState{}, err
		}
		s.checkState(userID, cur)

		next, changed, err := fn(cur)
		if err != nil {
			return domain.StreakState{}, err
		}
		if !changed {
			return next, nil
		}

		stored, err := save(next, cur.Version)
		if errors.Is(err, domain.ErrVersionConflict) {
			metrics.VersionConflicts.Inc()
			s.logger.Debug("streak write conflict, retrying",
				zap.String("user", userID),
				zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return domain.StreakState{}, err
		}
		return stored, nil
	}
	return domain.StreakState{}, fmt.Errorf("update streak %s after %d attempts: %w", userID, s.maxRetries, domain.ErrVersionConflict)
}

// CompletionDays returns every day the user completed, oldest first.
func (s *Service) CompletionDays(ctx context.Context, userID string) ([]domain.Date, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	days, err := s.store.CompletionDays(ctx, userID)
	if err != nil {
		return nil, err
	}
	if days == nil {
		days = []domain.Date{}
	}
	return days, nil
}

// checkState counts stored states that break an invariant. The tracker
// heals or rejects them; this only feeds the metric.
func (s *Service) checkState(userID string, state domain.StreakState) {
	if _, err := s.tracker.Normalize(state); err != nil {
		metrics.MalformedStates.Inc()
		s.logger.Warn("stored streak state is malformed",
			zap.String("user", userID),
			zap.Error(err))
	}
}

// ─── Titles & XP ────────────────────────────────────────────────────────────

// Title returns the user's title status from their XP total.
func (s *Service) Title(ctx context.Context, userID string) (domain.TitleStatus, error) {
	if err := ValidateUserID(userID); err != nil {
		return domain.TitleStatus{}, err
	}
	p, err := s.store.Progress(ctx, userID)
	if err != nil {
		return domain.TitleStatus{}, err
	}
	return s.ladder.Status(p.TotalXP), nil
}

// AwardXP adds amount to the user's total and reports a rank-up.
func (s *Service) AwardXP(ctx context.Context, userID string, amount int64, source domain.XPSource) (domain.XPAward, error) {
	if err := ValidateUserID(userID); err != nil {
		return domain.XPAward{}, err
	}
	if amount <= 0 {
		return domain.XPAward{}, fmt.Errorf("%w, got %d", domain.ErrInvalidXPAmount, amount)
	}
	if source == "" {
		source = domain.XPManual
	}
	if !source.Valid() {
		return domain.XPAward{}, fmt.Errorf("%w: %q", domain.ErrInvalidXPSource, source)
	}

	ev := domain.XPEvent{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		Source:    source,
		CreatedAt: s.now().UTC(),
	}
	total, err := s.store.AddXP(ctx, ev)
	if err != nil {
		return domain.XPAward{}, err
	}

	before := s.ladder.Current(total - amount)
	status := s.ladder.Status(total)
	rankedUp := status.Current.MinXP > before.MinXP

	metrics.XPAwarded.WithLabelValues(string(source)).Add(float64(amount))
	if rankedUp {
		metrics.RankUps.WithLabelValues(status.Current.Title).Inc()
		s.logger.Info("rank up",
			zap.String("user", userID),
			zap.String("from", before.Title),
			zap.String("to", status.Current.Title),
			zap.Int64("xp", total))
	}
	return domain.XPAward{Event: ev, Title: status, RankedUp: rankedUp}, nil
}

// XPHistory returns the newest XP events for the user.
func (s *Service) XPHistory(ctx context.Context, userID string, limit int) ([]domain.XPEvent, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	return s.store.ListXPEvents(ctx, userID, limit)
}

// ValidateUserID accepts 1–128 printable characters without whitespace.
func ValidateUserID(id string) error {
	if id == "" || len(id) > 128 {
		return fmt.Errorf("%w: length must be 1-128", domain.ErrInvalidUserID)
	}
	if strings.IndexFunc(id, func(r rune) bool { return unicode.IsSpace(r) || !unicode.IsPrint(r) }) >= 0 {
		return fmt.Errorf("%w: %q", domain.ErrInvalidUserID, id)
	}
	return nil
}
