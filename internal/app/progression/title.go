package progression

import (
	"fmt"
	"sort"

	"github.com/quizhub/quizhub/internal/domain"
)

// Ladder maps an XP total to a named title.
// Thresholds are strictly increasing and start at 0. Immutable once built.
type Ladder struct {
	ranks []domain.TitleRank
}

// DefaultRanks is the stock title ladder.
func DefaultRanks() []domain.TitleRank {
	return []domain.TitleRank{
		{MinXP: 0, Title: "Nowicjusz", Color: "gray", Emoji: "🌱"},
		{MinXP: 100, Title: "Ambitny", Color: "green", Emoji: "🔥"},
		{MinXP: 800, Title: "Czeladnik", Color: "blue", Emoji: "🛠️"},
		{MinXP: 2000, Title: "Znawca", Color: "purple", Emoji: "📚"},
		{MinXP: 5000, Title: "Ekspert", Color: "orange", Emoji: "🎯"},
		{MinXP: 10000, Title: "Mistrz", Color: "red", Emoji: "🏆"},
		{MinXP: 25000, Title: "Legenda", Color: "gold", Emoji: "👑"},
	}
}

// DefaultLadder returns a ladder built from DefaultRanks.
func DefaultLadder() *Ladder {
	l, err := NewLadder(DefaultRanks())
	if err != nil {
		panic(err) // static table
	}
	return l
}

// NewLadder validates ranks and returns a ladder sorted by threshold.
// Duplicate or negative thresholds, a missing zero rung and blank titles
// are rejected.
func NewLadder(ranks []domain.TitleRank) (*Ladder, error) {
	if len(ranks) == 0 {
		return nil, fmt.Errorf("%w: no ranks", domain.ErrInvalidLadder)
	}

	sorted := append([]domain.TitleRank(nil), ranks...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinXP < sorted[j].MinXP })

	if sorted[0].MinXP < 0 {
		return nil, fmt.Errorf("%w: negative threshold %d", domain.ErrInvalidLadder, sorted[0].MinXP)
	}
	if sorted[0].MinXP != 0 {
		return nil, fmt.Errorf("%w: lowest threshold is %d, want 0", domain.ErrInvalidLadder, sorted[0].MinXP)
	}
	for i, r := range sorted {
		if r.Title == "" {
			return nil, fmt.Errorf("%w: rank at %d xp has no title", domain.ErrInvalidLadder, r.MinXP)
		}
		if i > 0 && r.MinXP == sorted[i-1].MinXP {
			return nil, fmt.Errorf("%w: duplicate threshold %d (%q, %q)",
				domain.ErrInvalidLadder, r.MinXP, sorted[i-1].Title, r.Title)
		}
	}
	return &Ladder{ranks: sorted}, nil
}

// Ranks returns a copy of the ladder, lowest first.
func (l *Ladder) Ranks() []domain.TitleRank {
	return append([]domain.TitleRank(nil), l.ranks...)
}

// index returns the position of the highest rank with MinXP <= xp.
func (l *Ladder) index(xp int64) int {
	if xp < 0 {
		xp = 0
	}
	// First rank strictly above xp; the one before it is ours.
	i := sort.Search(len(l.ranks), func(i int) bool { return l.ranks[i].MinXP > xp })
	return i - 1
}

// Current returns the title for xp. Negative xp counts as 0.
func (l *Ladder) Current(xp int64) domain.TitleRank {
	return l.ranks[l.index(xp)]
}

// Next returns the next title above xp and the XP still needed,
// or nil once the top rank is reached.
func (l *Ladder) Next(xp int64) *domain.NextTitle {
	if xp < 0 {
		xp = 0
	}
	i := l.index(xp) + 1
	if i >= len(l.ranks) {
		return nil
	}
	r := l.ranks[i]
	return &domain.NextTitle{TitleRank: r, XPNeeded: r.MinXP - xp}
}

// Progress returns progress toward the next title (0.0–100.0).
func (l *Ladder) Progress(xp int64) float64 {
	if xp < 0 {
		xp = 0
	}
	i := l.index(xp)
	if i+1 >= len(l.ranks) {
		return 100.0
	}
	span := l.ranks[i+1].MinXP - l.ranks[i].MinXP
	pct := float64(xp-l.ranks[i].MinXP) / float64(span) * 100.0
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Status bundles Current, Next and Progress for xp.
func (l *Ladder) Status(xp int64) domain.TitleStatus {
	return domain.TitleStatus{
		TotalXP:  xp,
		Current:  l.Current(xp),
		Next:     l.Next(xp),
		Progress: l.Progress(xp),
	}
}
