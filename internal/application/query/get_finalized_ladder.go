package query

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ShieldBattery/ShieldBattery-sub013/internal/domain/ladder"
	"github.com/ShieldBattery/ShieldBattery-sub013/internal/domain/shared"
	"github.com/ShieldBattery/ShieldBattery-sub013/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET FINALIZED LADDER QUERY
// Builds the leaderboard page of a finished season from the permanent
// finalized rank table. The live cache is never consulted here.
// ══════════════════════════════════════════════════════════════════════════════

// GetFinalizedLadderQuery contains the past-season ladder request parameters.
type GetFinalizedLadderQuery struct {
	// MatchmakingType selects which queue's ladder to read.
	MatchmakingType string

	// SeasonID selects the past season.
	SeasonID int64

	// SearchQuery, when non-empty, narrows the displayed rows by name.
	// Stored rank numbers are unaffected.
	SearchQuery string
}

// Validate checks the request parameters.
func (q *GetFinalizedLadderQuery) Validate() error {
	if !ladder.MatchmakingType(q.MatchmakingType).IsValid() {
		return ladder.ErrInvalidMatchmakingType
	}
	return nil
}

// GetFinalizedLadderResult contains the assembled past-season page.
type GetFinalizedLadderResult struct {
	// Rows are the stored rank rows, in stored rank order. Rating here is
	// the final rating as frozen at finalization; placement suppression does
	// not reapply.
	Rows []LadderRowDTO `json:"rows"`

	// TotalCount is the number of ranked users in the full, unfiltered
	// finalized table for this (type, season).
	TotalCount int `json:"total_count"`

	// Season is the requested season.
	Season SeasonDTO `json:"season"`

	// GeneratedAt is when the page was assembled.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetFinalizedLadderHandler handles past-season ladder requests.
type GetFinalizedLadderHandler struct {
	seasons ladder.SeasonRepository
	ratings ladder.RatingRepository
	users   user.Repository

	now func() time.Time
}

// NewGetFinalizedLadderHandler creates a new past-season ladder handler.
func NewGetFinalizedLadderHandler(
	seasons ladder.SeasonRepository,
	ratings ladder.RatingRepository,
	users user.Repository,
) *GetFinalizedLadderHandler {
	return &GetFinalizedLadderHandler{
		seasons: seasons,
		ratings: ratings,
		users:   users,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Handle builds a finalized season's ladder page.
//
// An unknown season yields an empty page rather than an error. A season
// that exists but has not been finalized yet returns
// ladder.ErrSeasonNotFinalized: its standing is served by the live path.
func (h *GetFinalizedLadderHandler) Handle(ctx context.Context, query GetFinalizedLadderQuery) (*GetFinalizedLadderResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetFinalizedLadder", shared.ErrValidation, err.Error(), err)
	}

	mt := ladder.MatchmakingType(query.MatchmakingType)
	seasonID := ladder.SeasonID(query.SeasonID)
	now := h.now()

	season, err := h.seasons.SeasonByID(ctx, seasonID)
	if errors.Is(err, ladder.ErrSeasonNotFound) {
		return &GetFinalizedLadderResult{
			Season:      SeasonDTO{ID: query.SeasonID},
			GeneratedAt: now,
		}, nil
	}
	if err != nil {
		return nil, shared.WrapError("query", "GetFinalizedLadder", shared.ErrExternalService, "failed to load season", err)
	}
	if !season.Finalized {
		return nil, ladder.ErrSeasonNotFinalized
	}

	// Unfiltered count first so a filtered page still reports the full
	// table size.
	allRanks, err := h.ratings.GetFinalizedRanks(ctx, mt, seasonID, "")
	if err != nil {
		return nil, shared.WrapError("query", "GetFinalizedLadder", shared.ErrExternalService, "failed to load finalized ranks", err)
	}

	ranks := allRanks
	if query.SearchQuery != "" {
		ranks, err = h.ratings.GetFinalizedRanks(ctx, mt, seasonID, query.SearchQuery)
		if err != nil {
			return nil, shared.WrapError("query", "GetFinalizedLadder", shared.ErrExternalService, "failed to load finalized ranks", err)
		}
	}

	ids := make([]uuid.UUID, len(ranks))
	for i, fr := range ranks {
		ids[i] = fr.UserID
	}

	identities, err := h.users.FindUsersByIDs(ctx, ids)
	if err != nil {
		return nil, shared.WrapError("query", "GetFinalizedLadder", shared.ErrExternalService, "failed to load users", err)
	}
	names := make(map[uuid.UUID]string, len(identities))
	for _, u := range identities {
		names[u.ID] = u.Name
	}

	rows := make([]LadderRowDTO, 0, len(ranks))
	for _, fr := range ranks {
		rows = append(rows, LadderRowDTO{
			Rank:          fr.Rank,
			UserID:        fr.UserID.String(),
			Name:          names[fr.UserID],
			Rating:        fr.Rating,
			Points:        fr.Points,
			Wins:          fr.Wins,
			Losses:        fr.Losses,
			LifetimeGames: fr.LifetimeGames,
		})
	}

	return &GetFinalizedLadderResult{
		Rows:        rows,
		TotalCount:  len(allRanks),
		Season:      seasonDTO(season),
		GeneratedAt: now,
	}, nil
}
