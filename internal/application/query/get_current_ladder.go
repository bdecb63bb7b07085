// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ShieldBattery/ShieldBattery-sub013/internal/domain/ladder"
	"github.com/ShieldBattery/ShieldBattery-sub013/internal/domain/shared"
	"github.com/ShieldBattery/ShieldBattery-sub013/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET CURRENT LADDER QUERY
// Builds the live leaderboard page for one matchmaking type: ordered rank
// rows with tie-breaking, placement suppression, and optional name search.
// ══════════════════════════════════════════════════════════════════════════════

// RankingsReader is the coordinator read path the query layer depends on.
type RankingsReader interface {
	GetTopN(ctx context.Context, mt ladder.MatchmakingType, season ladder.SeasonID, n int64) ([]uuid.UUID, error)
	GetRankOf(ctx context.Context, mt ladder.MatchmakingType, season ladder.SeasonID, userID uuid.UUID) (int64, bool, error)
}

// GetCurrentLadderQuery contains the live ladder request parameters.
type GetCurrentLadderQuery struct {
	// MatchmakingType selects which queue's ladder to build.
	MatchmakingType string

	// SearchQuery, when non-empty, narrows the displayed rows to users whose
	// name contains it (case-insensitive). Rank numbers are unaffected.
	SearchQuery string
}

// Validate checks the request parameters.
func (q *GetCurrentLadderQuery) Validate() error {
	if !ladder.MatchmakingType(q.MatchmakingType).IsValid() {
		return ladder.ErrInvalidMatchmakingType
	}
	return nil
}

// LadderRowDTO is one displayed leaderboard row.
type LadderRowDTO struct {
	// Rank is the 1-based display rank. Tied points share a rank and leave a
	// gap after the tie group.
	Rank int `json:"rank"`

	// UserID identifies the user.
	UserID string `json:"user_id"`

	// Name is the user's display name.
	Name string `json:"name"`

	// Rating is the displayed rating: 0 while the user is still in
	// placement matches, the true rating afterwards.
	Rating float64 `json:"rating"`

	// Points is the ladder ordering score, never suppressed.
	Points float64 `json:"points"`

	Wins          int `json:"wins"`
	Losses        int `json:"losses"`
	LifetimeGames int `json:"lifetime_games"`

	// LastPlayedDate is when the user last finished a game in this queue.
	LastPlayedDate time.Time `json:"last_played_date"`
}

// SeasonDTO carries season metadata alongside a ladder page.
type SeasonDTO struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Finalized bool      `json:"finalized"`
}

// GetCurrentLadderResult contains the assembled ladder page.
type GetCurrentLadderResult struct {
	// Rows are the displayed rank rows in rank order. With a search filter
	// this is a subset of the full ladder; ranks keep their unfiltered values.
	Rows []LadderRowDTO `json:"rows"`

	// TotalCount is the number of ranked users in the full, unfiltered
	// ladder.
	TotalCount int `json:"total_count"`

	// Season is the current season the page was built for.
	Season SeasonDTO `json:"season"`

	// GeneratedAt is when the page was assembled.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetCurrentLadderHandler handles live ladder page requests.
type GetCurrentLadderHandler struct {
	seasons        ladder.SeasonRepository
	rankings       RankingsReader
	ratings        ladder.RatingRepository
	users          user.Repository
	placementGames int

	now func() time.Time
}

// NewGetCurrentLadderHandler creates a new live ladder handler.
// placementGames <= 0 falls back to the default placement threshold.
func NewGetCurrentLadderHandler(
	seasons ladder.SeasonRepository,
	rankings RankingsReader,
	ratings ladder.RatingRepository,
	users user.Repository,
	placementGames int,
) *GetCurrentLadderHandler {
	if placementGames <= 0 {
		placementGames = ladder.DefaultPlacementGames
	}
	return &GetCurrentLadderHandler{
		seasons:        seasons,
		rankings:       rankings,
		ratings:        ratings,
		users:          users,
		placementGames: placementGames,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Handle builds the current season's ladder page.
//
// Ranks are always computed from the complete cache ordering before the
// search filter is applied, so a filtered view shows the same rank numbers
// as the unfiltered one.
func (h *GetCurrentLadderHandler) Handle(ctx context.Context, query GetCurrentLadderQuery) (*GetCurrentLadderResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetCurrentLadder", shared.ErrValidation, err.Error(), err)
	}

	mt := ladder.MatchmakingType(query.MatchmakingType)
	now := h.now()

	season, err := h.seasons.CurrentSeason(ctx, now)
	if err != nil {
		return nil, shared.WrapError("query", "GetCurrentLadder", shared.ErrNotFound, "no current season", err)
	}

	// Full ordering, not a page: rank assignment needs every row above the
	// displayed ones.
	orderedIDs, err := h.rankings.GetTopN(ctx, mt, season.ID, 0)
	if err != nil {
		return nil, shared.WrapError("query", "GetCurrentLadder", shared.ErrExternalService, "failed to read rankings", err)
	}

	result := &GetCurrentLadderResult{
		TotalCount:  len(orderedIDs),
		Season:      seasonDTO(season),
		GeneratedAt: now,
	}
	if len(orderedIDs) == 0 {
		return result, nil
	}

	ratingRows, err := h.ratings.GetRatingsForUsers(ctx, orderedIDs, mt, season.ID, "")
	if err != nil {
		return nil, shared.WrapError("query", "GetCurrentLadder", shared.ErrExternalService, "failed to load ratings", err)
	}

	names, err := h.loadNames(ctx, orderedIDs)
	if err != nil {
		return nil, shared.WrapError("query", "GetCurrentLadder", shared.ErrExternalService, "failed to load users", err)
	}

	result.Rows = h.assembleRows(orderedIDs, ratingRows, names, query.SearchQuery)
	return result, nil
}

// assembleRows walks the cache ordering, assigns tie-broken ranks from the
// full list, and drops non-matching rows afterwards.
func (h *GetCurrentLadderHandler) assembleRows(
	orderedIDs []uuid.UUID,
	ratingRows []*ladder.MatchmakingRating,
	names map[uuid.UUID]string,
	searchQuery string,
) []LadderRowDTO {
	byUser := make(map[uuid.UUID]*ladder.MatchmakingRating, len(ratingRows))
	for _, r := range ratingRows {
		byUser[r.UserID] = r
	}

	// The cache can briefly lead the rating store (or the reverse) while an
	// update is in flight; users without a rating row are skipped rather
	// than rendered with zeroed stats.
	ordered := make([]*ladder.MatchmakingRating, 0, len(orderedIDs))
	for _, id := range orderedIDs {
		if r, ok := byUser[id]; ok {
			ordered = append(ordered, r)
		}
	}

	points := make([]float64, len(ordered))
	for i, r := range ordered {
		points[i] = r.Points
	}
	ranks := ladder.CompetitionRanks(points)

	filter := strings.ToLower(strings.TrimSpace(searchQuery))

	rows := make([]LadderRowDTO, 0, len(ordered))
	for i, r := range ordered {
		name := names[r.UserID]
		if filter != "" && !strings.Contains(strings.ToLower(name), filter) {
			continue
		}
		rows = append(rows, LadderRowDTO{
			Rank:           ranks[i],
			UserID:         r.UserID.String(),
			Name:           name,
			Rating:         r.DisplayedRating(h.placementGames),
			Points:         r.Points,
			Wins:           r.Wins,
			Losses:         r.Losses,
			LifetimeGames:  r.LifetimeGames,
			LastPlayedDate: r.LastPlayedDate,
		})
	}

	return rows
}

// loadNames resolves display names for a set of users.
func (h *GetCurrentLadderHandler) loadNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	identities, err := h.users.FindUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	names := make(map[uuid.UUID]string, len(identities))
	for _, u := range identities {
		names[u.ID] = u.Name
	}
	return names, nil
}

func seasonDTO(s *ladder.Season) SeasonDTO {
	return SeasonDTO{
		ID:        int64(s.ID),
		Name:      s.Name,
		StartDate: s.StartDate,
		EndDate:   s.EndDate,
		Finalized: s.Finalized,
	}
}
