package ladder

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// RANKINGS CACHE INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// CacheEntry is one user's score in a rankings cache key.
type CacheEntry struct {
	UserID uuid.UUID
	Points float64
}

// RankingsCache is the sorted cache primitive behind the ladder: one sorted
// collection of (user, points) per (matchmaking type, season), ordered by
// descending points, unique per user. Implemented on Redis sorted sets in
// the infrastructure layer.
//
// Transient store errors propagate to the caller; an absent key is not an
// error and is distinguishable (via Exists) from a key that is empty.
type RankingsCache interface {
	// UpsertMany assigns absolute scores for a batch of users. Scores are
	// assignments, not deltas, which makes the operation idempotent and lets
	// concurrent writers interleave safely. The batch is applied atomically.
	UpsertMany(ctx context.Context, mt MatchmakingType, season SeasonID, entries []CacheEntry) error

	// RangeDescending returns up to limit user IDs ordered by descending
	// points starting at offset. limit 0 means all. An empty or absent key
	// yields an empty slice, not an error.
	RangeDescending(ctx context.Context, mt MatchmakingType, season SeasonID, offset, limit int64) ([]uuid.UUID, error)

	// ReverseRankOf returns the 0-based descending rank of a user, with
	// found=false when the user is not present in the key.
	ReverseRankOf(ctx context.Context, mt MatchmakingType, season SeasonID, userID uuid.UUID) (rank int64, found bool, err error)

	// Exists reports whether the key has ever been materialized. Used to
	// tell "never built" apart from "built but empty".
	Exists(ctx context.Context, mt MatchmakingType, season SeasonID) (bool, error)

	// Count returns the number of users in the key.
	Count(ctx context.Context, mt MatchmakingType, season SeasonID) (int64, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// RATING STORE INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// RatingRepository is the authoritative persistent store of rating rows and
// the permanent finalized-rank table.
type RatingRepository interface {
	// GetAllRatings returns every rating row for a (type, season) pair.
	// This is the full-rebuild source.
	GetAllRatings(ctx context.Context, mt MatchmakingType, season SeasonID) ([]*MatchmakingRating, error)

	// GetRatingsForUsers returns the rating rows for exactly the given
	// users. nameFilter, when non-empty, restricts results to users whose
	// display name matches (case-insensitive substring).
	GetRatingsForUsers(ctx context.Context, userIDs []uuid.UUID, mt MatchmakingType, season SeasonID, nameFilter string) ([]*MatchmakingRating, error)

	// GetFinalizedRanks returns the permanent rank rows of a finalized
	// season, ordered by ascending rank.
	GetFinalizedRanks(ctx context.Context, mt MatchmakingType, season SeasonID, nameFilter string) ([]*FinalizedRank, error)

	// WriteFinalizedRanks writes the complete finalized rank set for a
	// (type, season) in one transaction. Re-running with the same input is
	// idempotent: rows are upserted, never duplicated.
	WriteFinalizedRanks(ctx context.Context, mt MatchmakingType, season SeasonID, ranks []*FinalizedRank) error
}

// SeasonRepository stores season lifecycle state.
type SeasonRepository interface {
	// CurrentSeason returns the season whose window contains now.
	// Returns ErrNoCurrentSeason if there is none.
	CurrentSeason(ctx context.Context, now time.Time) (*Season, error)

	// SeasonByID returns a season by ID, or ErrSeasonNotFound.
	SeasonByID(ctx context.Context, id SeasonID) (*Season, error)

	// FindUnfinalizedSeasons returns all seasons whose end time has passed
	// but which have not been marked finalized, oldest first.
	FindUnfinalizedSeasons(ctx context.Context, now time.Time) ([]*Season, error)

	// MarkFinalized flips a season's finalized flag. Called only after the
	// complete finalized rank set has been written.
	MarkFinalized(ctx context.Context, id SeasonID) error
}
