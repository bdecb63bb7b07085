package query

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ShieldBattery/ShieldBattery-sub013/internal/domain/ladder"
	"github.com/ShieldBattery/ShieldBattery-sub013/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET USER RANKS QUERY
// Returns one user's current-season standing across every matchmaking type
// in a single logical call.
// ══════════════════════════════════════════════════════════════════════════════

// GetUserRanksQuery contains the per-user standing request parameters.
type GetUserRanksQuery struct {
	UserID uuid.UUID
}

// GetUserRanksResult maps each matchmaking type to the user's 1-based rank,
// or ladder.UnrankedSentinel for types the user has not played this season.
type GetUserRanksResult struct {
	// Ranks has an entry for every known matchmaking type.
	Ranks map[string]int64 `json:"ranks"`

	// Season is the current season the ranks were read for.
	Season SeasonDTO `json:"season"`

	// GeneratedAt is when the result was assembled.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetUserRanksHandler handles per-user standing requests.
type GetUserRanksHandler struct {
	seasons  ladder.SeasonRepository
	rankings RankingsReader

	now func() time.Time
}

// NewGetUserRanksHandler creates a new per-user standing handler.
func NewGetUserRanksHandler(seasons ladder.SeasonRepository, rankings RankingsReader) *GetUserRanksHandler {
	return &GetUserRanksHandler{
		seasons:  seasons,
		rankings: rankings,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Handle reads the user's rank in every matchmaking type for the current
// season. Absence from a type's ladder is not an error.
func (h *GetUserRanksHandler) Handle(ctx context.Context, query GetUserRanksQuery) (*GetUserRanksResult, error) {
	now := h.now()

	season, err := h.seasons.CurrentSeason(ctx, now)
	if err != nil {
		return nil, shared.WrapError("query", "GetUserRanks", shared.ErrNotFound, "no current season", err)
	}

	ranks := make(map[string]int64, len(ladder.AllMatchmakingTypes()))
	for _, mt := range ladder.AllMatchmakingTypes() {
		rank, found, err := h.rankings.GetRankOf(ctx, mt, season.ID, query.UserID)
		if err != nil {
			return nil, shared.WrapError("query", "GetUserRanks", shared.ErrExternalService, "failed to read rank", err)
		}
		if !found {
			ranks[string(mt)] = ladder.UnrankedSentinel
			continue
		}
		// Cache ranks are 0-based.
		ranks[string(mt)] = rank + 1
	}

	return &GetUserRanksResult{
		Ranks:       ranks,
		Season:      seasonDTO(season),
		GeneratedAt: now,
	}, nil
}
