package query

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShieldBattery/ShieldBattery-sub013/internal/domain/ladder"
	"github.com/ShieldBattery/ShieldBattery-sub013/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// FAKES
// ══════════════════════════════════════════════════════════════════════════════

type fakeSeasonRepo struct {
	current *ladder.Season
	byID    map[ladder.SeasonID]*ladder.Season
}

func (r *fakeSeasonRepo) CurrentSeason(context.Context, time.Time) (*ladder.Season, error) {
	if r.current == nil {
		return nil, ladder.ErrNoCurrentSeason
	}
	return r.current, nil
}

func (r *fakeSeasonRepo) SeasonByID(_ context.Context, id ladder.SeasonID) (*ladder.Season, error) {
	if s, ok := r.byID[id]; ok {
		return s, nil
	}
	return nil, ladder.ErrSeasonNotFound
}

func (r *fakeSeasonRepo) FindUnfinalizedSeasons(context.Context, time.Time) ([]*ladder.Season, error) {
	return nil, nil
}

func (r *fakeSeasonRepo) MarkFinalized(context.Context, ladder.SeasonID) error {
	return nil
}

// fakeRankings serves a fixed descending ordering per matchmaking type.
type fakeRankings struct {
	ordering map[ladder.MatchmakingType][]uuid.UUID
}

func (f *fakeRankings) GetTopN(_ context.Context, mt ladder.MatchmakingType, _ ladder.SeasonID, n int64) ([]uuid.UUID, error) {
	ids := f.ordering[mt]
	if n > 0 && n < int64(len(ids)) {
		ids = ids[:n]
	}
	return ids, nil
}

func (f *fakeRankings) GetRankOf(_ context.Context, mt ladder.MatchmakingType, _ ladder.SeasonID, userID uuid.UUID) (int64, bool, error) {
	for i, id := range f.ordering[mt] {
		if id == userID {
			return int64(i), true, nil
		}
	}
	return 0, false, nil
}

type fakeRatings struct {
	rows      []*ladder.MatchmakingRating
	finalized []*ladder.FinalizedRank
	names     map[uuid.UUID]string
}

func (f *fakeRatings) GetAllRatings(context.Context, ladder.MatchmakingType, ladder.SeasonID) ([]*ladder.MatchmakingRating, error) {
	return f.rows, nil
}

func (f *fakeRatings) GetRatingsForUsers(_ context.Context, userIDs []uuid.UUID, _ ladder.MatchmakingType, _ ladder.SeasonID, nameFilter string) ([]*ladder.MatchmakingRating, error) {
	want := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		want[id] = true
	}
	var out []*ladder.MatchmakingRating
	for _, row := range f.rows {
		if want[row.UserID] && matchesName(f.names[row.UserID], nameFilter) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeRatings) GetFinalizedRanks(_ context.Context, _ ladder.MatchmakingType, _ ladder.SeasonID, nameFilter string) ([]*ladder.FinalizedRank, error) {
	var out []*ladder.FinalizedRank
	for _, fr := range f.finalized {
		if matchesName(f.names[fr.UserID], nameFilter) {
			out = append(out, fr)
		}
	}
	return out, nil
}

func (f *fakeRatings) WriteFinalizedRanks(context.Context, ladder.MatchmakingType, ladder.SeasonID, []*ladder.FinalizedRank) error {
	return nil
}

func matchesName(name, filter string) bool {
	if filter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(name), strings.ToLower(filter))
}

type fakeUserRepo struct {
	names map[uuid.UUID]string
}

func (f *fakeUserRepo) FindUsersByIDs(_ context.Context, ids []uuid.UUID) ([]*user.Identity, error) {
	var out []*user.Identity
	for _, id := range ids {
		if name, ok := f.names[id]; ok {
			out = append(out, &user.Identity{ID: id, Name: name})
		}
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURE
// ══════════════════════════════════════════════════════════════════════════════

type ladderFixture struct {
	season  *ladder.Season
	seasons *fakeSeasonRepo
	ranks   *fakeRankings
	ratings *fakeRatings
	users   *fakeUserRepo
}

// newLadderFixture builds a three-player 1v1 ladder: Alice and Bob tied at
// 500 points, Carol at 300. Alice is still in placements.
func newLadderFixture() (*ladderFixture, uuid.UUID, uuid.UUID, uuid.UUID) {
	alice := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	bob := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	carol := uuid.MustParse("00000000-0000-0000-0000-000000000003")

	season := &ladder.Season{
		ID:        1,
		Name:      "Season 1",
		StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
	}

	names := map[uuid.UUID]string{alice: "Alice", bob: "Bob", carol: "Carol"}

	f := &ladderFixture{
		season:  season,
		seasons: &fakeSeasonRepo{current: season},
		ranks: &fakeRankings{ordering: map[ladder.MatchmakingType][]uuid.UUID{
			ladder.Matchmaking1v1: {alice, bob, carol},
		}},
		ratings: &fakeRatings{
			rows: []*ladder.MatchmakingRating{
				{UserID: alice, MatchmakingType: ladder.Matchmaking1v1, SeasonID: 1, Points: 500, Rating: 1600, LifetimeGames: 3, Wins: 2, Losses: 1},
				{UserID: bob, MatchmakingType: ladder.Matchmaking1v1, SeasonID: 1, Points: 500, Rating: 1550, LifetimeGames: 30, Wins: 18, Losses: 12},
				{UserID: carol, MatchmakingType: ladder.Matchmaking1v1, SeasonID: 1, Points: 300, Rating: 1400, LifetimeGames: 12, Wins: 5, Losses: 7},
			},
			names: names,
		},
		users: &fakeUserRepo{names: names},
	}
	return f, alice, bob, carol
}

func (f *ladderFixture) handler() *GetCurrentLadderHandler {
	return NewGetCurrentLadderHandler(f.seasons, f.ranks, f.ratings, f.users, 5)
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func TestGetCurrentLadder_TieBreakAndTotalCount(t *testing.T) {
	f, _, _, _ := newLadderFixture()

	result, err := f.handler().Handle(context.Background(), GetCurrentLadderQuery{MatchmakingType: "1v1"})
	require.NoError(t, err)

	require.Len(t, result.Rows, 3)
	assert.Equal(t, 3, result.TotalCount)

	assert.Equal(t, "Alice", result.Rows[0].Name)
	assert.Equal(t, 1, result.Rows[0].Rank)
	assert.Equal(t, "Bob", result.Rows[1].Name)
	assert.Equal(t, 1, result.Rows[1].Rank)
	assert.Equal(t, "Carol", result.Rows[2].Name)
	assert.Equal(t, 3, result.Rows[2].Rank)

	assert.Equal(t, int64(1), result.Season.ID)
}

func TestGetCurrentLadder_PlacementSuppression(t *testing.T) {
	f, _, _, _ := newLadderFixture()

	result, err := f.handler().Handle(context.Background(), GetCurrentLadderQuery{MatchmakingType: "1v1"})
	require.NoError(t, err)

	// Alice has 3 lifetime games, below the threshold of 5.
	assert.Equal(t, 0.0, result.Rows[0].Rating)
	assert.Equal(t, 500.0, result.Rows[0].Points, "points are never suppressed")

	assert.Equal(t, 1550.0, result.Rows[1].Rating)
}

func TestGetCurrentLadder_SearchKeepsRankNumbers(t *testing.T) {
	f, _, _, _ := newLadderFixture()

	result, err := f.handler().Handle(context.Background(), GetCurrentLadderQuery{
		MatchmakingType: "1v1",
		SearchQuery:     "car",
	})
	require.NoError(t, err)

	require.Len(t, result.Rows, 1)
	assert.Equal(t, "Carol", result.Rows[0].Name)
	assert.Equal(t, 3, result.Rows[0].Rank, "filtered view keeps the unfiltered rank")
	assert.Equal(t, 3, result.TotalCount, "total count reflects the unfiltered ladder")
}

func TestGetCurrentLadder_InvalidType(t *testing.T) {
	f, _, _, _ := newLadderFixture()

	_, err := f.handler().Handle(context.Background(), GetCurrentLadderQuery{MatchmakingType: "5v5"})
	assert.Error(t, err)
}

func TestGetCurrentLadder_EmptyLadder(t *testing.T) {
	f, _, _, _ := newLadderFixture()
	f.ranks.ordering = nil

	result, err := f.handler().Handle(context.Background(), GetCurrentLadderQuery{MatchmakingType: "1v1"})
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
	assert.Equal(t, 0, result.TotalCount)
}

func TestGetUserRanks_PerTypeWithSentinel(t *testing.T) {
	f, alice, _, _ := newLadderFixture()

	handler := NewGetUserRanksHandler(f.seasons, f.ranks)
	result, err := handler.Handle(context.Background(), GetUserRanksQuery{UserID: alice})
	require.NoError(t, err)

	// Alice is first in 1v1 and absent from the other queues.
	assert.Equal(t, int64(1), result.Ranks["1v1"])
	assert.Equal(t, int64(ladder.UnrankedSentinel), result.Ranks["1v1fastest"])
	assert.Equal(t, int64(ladder.UnrankedSentinel), result.Ranks["2v2"])
	assert.Len(t, result.Ranks, 3)
}

func TestGetUserRanks_OneBased(t *testing.T) {
	f, _, _, carol := newLadderFixture()

	handler := NewGetUserRanksHandler(f.seasons, f.ranks)
	result, err := handler.Handle(context.Background(), GetUserRanksQuery{UserID: carol})
	require.NoError(t, err)

	assert.Equal(t, int64(3), result.Ranks["1v1"])
}
