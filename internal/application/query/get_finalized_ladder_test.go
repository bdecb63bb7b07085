package query

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShieldBattery/ShieldBattery-sub013/internal/domain/ladder"
)

func finalizedFixture() (*ladderFixture, uuid.UUID, uuid.UUID, uuid.UUID) {
	f, alice, bob, carol := newLadderFixture()

	past := &ladder.Season{
		ID:        2,
		Name:      "Season 0",
		StartDate: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Finalized: true,
	}
	f.seasons.byID = map[ladder.SeasonID]*ladder.Season{past.ID: past}

	f.ratings.finalized = []*ladder.FinalizedRank{
		{UserID: alice, MatchmakingType: ladder.Matchmaking1v1, SeasonID: 2, Rank: 1, Points: 500, Rating: 1600, LifetimeGames: 3, Wins: 2, Losses: 1},
		{UserID: bob, MatchmakingType: ladder.Matchmaking1v1, SeasonID: 2, Rank: 1, Points: 500, Rating: 1550, LifetimeGames: 30, Wins: 18, Losses: 12},
		{UserID: carol, MatchmakingType: ladder.Matchmaking1v1, SeasonID: 2, Rank: 3, Points: 300, Rating: 1400, LifetimeGames: 12, Wins: 5, Losses: 7},
	}
	return f, alice, bob, carol
}

func TestGetFinalizedLadder_UsesStoredRanks(t *testing.T) {
	f, _, _, _ := finalizedFixture()

	handler := NewGetFinalizedLadderHandler(f.seasons, f.ratings, f.users)
	result, err := handler.Handle(context.Background(), GetFinalizedLadderQuery{
		MatchmakingType: "1v1",
		SeasonID:        2,
	})
	require.NoError(t, err)

	require.Len(t, result.Rows, 3)
	assert.Equal(t, 3, result.TotalCount)
	assert.Equal(t, 1, result.Rows[0].Rank)
	assert.Equal(t, 1, result.Rows[1].Rank)
	assert.Equal(t, 3, result.Rows[2].Rank)

	// Finalized ratings are frozen; placement suppression never reapplies.
	assert.Equal(t, "Alice", result.Rows[0].Name)
	assert.Equal(t, 1600.0, result.Rows[0].Rating)

	assert.True(t, result.Season.Finalized)
}

func TestGetFinalizedLadder_SearchKeepsStoredRanksAndTotal(t *testing.T) {
	f, _, _, _ := finalizedFixture()

	handler := NewGetFinalizedLadderHandler(f.seasons, f.ratings, f.users)
	result, err := handler.Handle(context.Background(), GetFinalizedLadderQuery{
		MatchmakingType: "1v1",
		SeasonID:        2,
		SearchQuery:     "bob",
	})
	require.NoError(t, err)

	require.Len(t, result.Rows, 1)
	assert.Equal(t, "Bob", result.Rows[0].Name)
	assert.Equal(t, 1, result.Rows[0].Rank)
	assert.Equal(t, 3, result.TotalCount)
}

func TestGetFinalizedLadder_UnknownSeasonIsEmpty(t *testing.T) {
	f, _, _, _ := finalizedFixture()

	handler := NewGetFinalizedLadderHandler(f.seasons, f.ratings, f.users)
	result, err := handler.Handle(context.Background(), GetFinalizedLadderQuery{
		MatchmakingType: "1v1",
		SeasonID:        999,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
	assert.Equal(t, 0, result.TotalCount)
	assert.Equal(t, int64(999), result.Season.ID)
}

func TestGetFinalizedLadder_UnfinalizedSeasonRejected(t *testing.T) {
	f, _, _, _ := finalizedFixture()
	f.seasons.byID[2].Finalized = false

	handler := NewGetFinalizedLadderHandler(f.seasons, f.ratings, f.users)
	_, err := handler.Handle(context.Background(), GetFinalizedLadderQuery{
		MatchmakingType: "1v1",
		SeasonID:        2,
	})
	assert.ErrorIs(t, err, ladder.ErrSeasonNotFinalized)
}

func TestGetFinalizedLadder_InvalidType(t *testing.T) {
	f, _, _, _ := finalizedFixture()

	handler := NewGetFinalizedLadderHandler(f.seasons, f.ratings, f.users)
	_, err := handler.Handle(context.Background(), GetFinalizedLadderQuery{
		MatchmakingType: "ffa",
		SeasonID:        2,
	})
	assert.Error(t, err)
}
