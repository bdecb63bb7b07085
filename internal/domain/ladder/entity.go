// Package ladder contains the domain model for matchmaking rankings:
// per-season ratings, seasons, finalized ranks, and the rank assignment
// rules shared by the live ladder and season finalization.
package ladder

import (
	"time"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// MatchmakingType identifies a matchmaking queue. Each type has its own
// independent ladder: ratings, rankings, and finalized results never mix
// across types.
type MatchmakingType string

const (
	Matchmaking1v1        MatchmakingType = "1v1"
	Matchmaking1v1Fastest MatchmakingType = "1v1fastest"
	Matchmaking2v2        MatchmakingType = "2v2"
)

// AllMatchmakingTypes returns every known matchmaking type.
func AllMatchmakingTypes() []MatchmakingType {
	return []MatchmakingType{Matchmaking1v1, Matchmaking1v1Fastest, Matchmaking2v2}
}

// IsValid reports whether the type is one of the known queues.
func (t MatchmakingType) IsValid() bool {
	switch t {
	case Matchmaking1v1, Matchmaking1v1Fastest, Matchmaking2v2:
		return true
	default:
		return false
	}
}

// SeasonID identifies a ladder season.
type SeasonID int64

// ══════════════════════════════════════════════════════════════════════════════
// SEASON
// ══════════════════════════════════════════════════════════════════════════════

// Season is a bounded time window during which ratings accumulate.
// Exactly one season is current at any time; a season transitions
// active → ended → finalized exactly once and never reverts.
type Season struct {
	ID        SeasonID
	Name      string
	StartDate time.Time
	EndDate   time.Time
	Finalized bool
}

// IsCurrent reports whether the season's window contains now.
func (s *Season) IsCurrent(now time.Time) bool {
	return !now.Before(s.StartDate) && now.Before(s.EndDate)
}

// HasEnded reports whether the season's window has closed.
func (s *Season) HasEnded(now time.Time) bool {
	return !now.Before(s.EndDate)
}

// NeedsFinalization reports whether the season has ended but its final
// ranks have not been snapshotted yet.
func (s *Season) NeedsFinalization(now time.Time) bool {
	return s.HasEnded(now) && !s.Finalized
}

// ══════════════════════════════════════════════════════════════════════════════
// MATCHMAKING RATING
// ══════════════════════════════════════════════════════════════════════════════

// RaceStats holds win/loss counters split by the race the player queued as.
type RaceStats struct {
	PWins   int
	PLosses int
	TWins   int
	TLosses int
	ZWins   int
	ZLosses int
	RWins   int
	RLosses int
}

// MatchmakingRating is one user's rating row for a (type, season) pair.
// Rows are produced by the external rating computation after each finished
// game; this engine reads them for rebuilds and display, and receives
// changed rows as incremental ranking updates.
//
// Points is the single scalar used for rank ordering. Rating feeds into
// points but is hidden from display until the placement threshold is met.
type MatchmakingRating struct {
	UserID          uuid.UUID
	MatchmakingType MatchmakingType
	SeasonID        SeasonID

	Rating    float64
	Points    float64
	BonusUsed float64

	LifetimeGames int
	Wins          int
	Losses        int
	Races         RaceStats

	LastPlayedDate time.Time
}

// IsPlaced reports whether the user has played enough lifetime games for
// their rating to be shown. Below the threshold the rating is provisional
// and displayed as 0.
func (r *MatchmakingRating) IsPlaced(placementGames int) bool {
	return r.LifetimeGames >= placementGames
}

// DisplayedRating returns the rating as it should appear on the ladder:
// the true rating once placed, 0 while still in placements. Points are
// never suppressed.
func (r *MatchmakingRating) DisplayedRating(placementGames int) float64 {
	if !r.IsPlaced(placementGames) {
		return 0
	}
	return r.Rating
}

// ══════════════════════════════════════════════════════════════════════════════
// FINALIZED RANK
// ══════════════════════════════════════════════════════════════════════════════

// FinalizedRank is the permanent snapshot of one user's final standing in a
// finished season. Written exactly once by season finalization; immutable
// thereafter. The Rank field is authoritative: readers of past seasons use
// it directly and never recompute tie-breaks.
type FinalizedRank struct {
	UserID          uuid.UUID
	MatchmakingType MatchmakingType
	SeasonID        SeasonID

	Rank   int
	Points float64
	Rating float64

	LifetimeGames int
	Wins          int
	Losses        int
	Races         RaceStats
}

// NewFinalizedRank snapshots a rating row into a permanent rank record.
func NewFinalizedRank(rank int, r *MatchmakingRating) *FinalizedRank {
	return &FinalizedRank{
		UserID:          r.UserID,
		MatchmakingType: r.MatchmakingType,
		SeasonID:        r.SeasonID,
		Rank:            rank,
		Points:          r.Points,
		Rating:          r.Rating,
		LifetimeGames:   r.LifetimeGames,
		Wins:            r.Wins,
		Losses:          r.Losses,
		Races:           r.Races,
	}
}
