package jobs

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShieldBattery/ShieldBattery-sub013/internal/domain/ladder"
	"github.com/ShieldBattery/ShieldBattery-sub013/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// FAKES
// ══════════════════════════════════════════════════════════════════════════════

type fakeSeasonRepo struct {
	unfinalized []*ladder.Season
	finalized   map[ladder.SeasonID]bool
	markErr     error
}

func newFakeSeasonRepo(seasons ...*ladder.Season) *fakeSeasonRepo {
	return &fakeSeasonRepo{
		unfinalized: seasons,
		finalized:   make(map[ladder.SeasonID]bool),
	}
}

func (r *fakeSeasonRepo) CurrentSeason(context.Context, time.Time) (*ladder.Season, error) {
	return nil, ladder.ErrNoCurrentSeason
}

func (r *fakeSeasonRepo) SeasonByID(context.Context, ladder.SeasonID) (*ladder.Season, error) {
	return nil, ladder.ErrSeasonNotFound
}

func (r *fakeSeasonRepo) FindUnfinalizedSeasons(context.Context, time.Time) ([]*ladder.Season, error) {
	var out []*ladder.Season
	for _, s := range r.unfinalized {
		if !r.finalized[s.ID] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeSeasonRepo) MarkFinalized(_ context.Context, id ladder.SeasonID) error {
	if r.markErr != nil {
		return r.markErr
	}
	r.finalized[id] = true
	return nil
}

type fakeRatingStore struct {
	rows map[ladder.MatchmakingType][]*ladder.MatchmakingRating

	written  map[ladder.MatchmakingType][]*ladder.FinalizedRank
	writeErr map[ladder.MatchmakingType]error
}

func newFakeRatingStore() *fakeRatingStore {
	return &fakeRatingStore{
		rows:     make(map[ladder.MatchmakingType][]*ladder.MatchmakingRating),
		written:  make(map[ladder.MatchmakingType][]*ladder.FinalizedRank),
		writeErr: make(map[ladder.MatchmakingType]error),
	}
}

func (s *fakeRatingStore) GetAllRatings(_ context.Context, mt ladder.MatchmakingType, _ ladder.SeasonID) ([]*ladder.MatchmakingRating, error) {
	return s.rows[mt], nil
}

func (s *fakeRatingStore) GetRatingsForUsers(_ context.Context, userIDs []uuid.UUID, mt ladder.MatchmakingType, _ ladder.SeasonID, _ string) ([]*ladder.MatchmakingRating, error) {
	want := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		want[id] = true
	}
	var out []*ladder.MatchmakingRating
	for _, row := range s.rows[mt] {
		if want[row.UserID] {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *fakeRatingStore) GetFinalizedRanks(_ context.Context, mt ladder.MatchmakingType, _ ladder.SeasonID, _ string) ([]*ladder.FinalizedRank, error) {
	return s.written[mt], nil
}

func (s *fakeRatingStore) WriteFinalizedRanks(_ context.Context, mt ladder.MatchmakingType, _ ladder.SeasonID, ranks []*ladder.FinalizedRank) error {
	if err := s.writeErr[mt]; err != nil {
		return err
	}
	s.written[mt] = ranks
	return nil
}

// fakeRankingsSource serves orderings by sorting the rating store's rows,
// mirroring how the live cache orders its members.
type fakeRankingsSource struct {
	store *fakeRatingStore

	built    map[ladder.MatchmakingType]bool
	rebuilds int
}

func newFakeRankingsSource(store *fakeRatingStore) *fakeRankingsSource {
	return &fakeRankingsSource{store: store, built: make(map[ladder.MatchmakingType]bool)}
}

func (f *fakeRankingsSource) NeedsFullRebuild(_ context.Context, mt ladder.MatchmakingType, _ ladder.SeasonID) (bool, error) {
	return !f.built[mt], nil
}

func (f *fakeRankingsSource) DoFullRebuild(_ context.Context, mt ladder.MatchmakingType, _ ladder.SeasonID) error {
	f.rebuilds++
	f.built[mt] = true
	return nil
}

func (f *fakeRankingsSource) GetTopN(_ context.Context, mt ladder.MatchmakingType, _ ladder.SeasonID, _ int64) ([]uuid.UUID, error) {
	rows := append([]*ladder.MatchmakingRating(nil), f.store.rows[mt]...)
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Points != rows[j].Points {
			return rows[i].Points > rows[j].Points
		}
		return rows[i].UserID.String() < rows[j].UserID.String()
	})
	ids := make([]uuid.UUID, len(rows))
	for i, r := range rows {
		ids[i] = r.UserID
	}
	return ids, nil
}

type capturingPublisher struct {
	events []shared.Event
}

func (p *capturingPublisher) Publish(event shared.Event) error {
	p.events = append(p.events, event)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func endedSeason(id ladder.SeasonID) *ladder.Season {
	return &ladder.Season{
		ID:        id,
		Name:      "Season",
		StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
	}
}

func testRating(mt ladder.MatchmakingType, season ladder.SeasonID, points float64) *ladder.MatchmakingRating {
	return &ladder.MatchmakingRating{
		UserID:          uuid.New(),
		MatchmakingType: mt,
		SeasonID:        season,
		Points:          points,
		Rating:          1500 + points/10,
		LifetimeGames:   10,
	}
}

func TestFinalizeSeasonsJob_WritesTieBrokenRanksAndMarks(t *testing.T) {
	seasons := newFakeSeasonRepo(endedSeason(7))
	store := newFakeRatingStore()
	store.rows[ladder.Matchmaking1v1] = []*ladder.MatchmakingRating{
		testRating(ladder.Matchmaking1v1, 7, 900),
		testRating(ladder.Matchmaking1v1, 7, 900),
		testRating(ladder.Matchmaking1v1, 7, 700),
	}
	source := newFakeRankingsSource(store)
	for _, mt := range ladder.AllMatchmakingTypes() {
		source.built[mt] = true
	}
	pub := &capturingPublisher{}

	job := NewFinalizeSeasonsJob(seasons, store, source, pub, nil)
	require.NoError(t, job.Run(context.Background()))

	written := store.written[ladder.Matchmaking1v1]
	require.Len(t, written, 3)
	assert.Equal(t, 1, written[0].Rank)
	assert.Equal(t, 1, written[1].Rank)
	assert.Equal(t, 3, written[2].Rank)

	assert.True(t, seasons.finalized[7])

	require.Len(t, pub.events, 1)
	assert.Equal(t, shared.EventSeasonFinalized, pub.events[0].EventType())
}

func TestFinalizeSeasonsJob_WriteFailureLeavesSeasonUnfinalized(t *testing.T) {
	seasons := newFakeSeasonRepo(endedSeason(7))
	store := newFakeRatingStore()
	store.rows[ladder.Matchmaking1v1] = []*ladder.MatchmakingRating{
		testRating(ladder.Matchmaking1v1, 7, 500),
	}
	store.writeErr[ladder.Matchmaking1v1] = errors.New("write timeout")
	source := newFakeRankingsSource(store)
	for _, mt := range ladder.AllMatchmakingTypes() {
		source.built[mt] = true
	}

	job := NewFinalizeSeasonsJob(seasons, store, source, nil, nil)
	err := job.Run(context.Background())

	assert.Error(t, err)
	assert.False(t, seasons.finalized[7], "season must stay unfinalized after a failed write")
}

func TestFinalizeSeasonsJob_RetrySucceedsAfterTransientFailure(t *testing.T) {
	seasons := newFakeSeasonRepo(endedSeason(7))
	store := newFakeRatingStore()
	store.rows[ladder.Matchmaking1v1] = []*ladder.MatchmakingRating{
		testRating(ladder.Matchmaking1v1, 7, 500),
	}
	store.writeErr[ladder.Matchmaking1v1] = errors.New("write timeout")
	source := newFakeRankingsSource(store)
	for _, mt := range ladder.AllMatchmakingTypes() {
		source.built[mt] = true
	}

	job := NewFinalizeSeasonsJob(seasons, store, source, nil, nil)
	require.Error(t, job.Run(context.Background()))

	// Next cycle the store has recovered; the sweep picks the season up again.
	delete(store.writeErr, ladder.Matchmaking1v1)
	require.NoError(t, job.Run(context.Background()))

	assert.True(t, seasons.finalized[7])
	require.Len(t, store.written[ladder.Matchmaking1v1], 1)
	assert.Equal(t, 1, store.written[ladder.Matchmaking1v1][0].Rank)
}

func TestFinalizeSeasonsJob_RebuildsColdCacheBeforeReading(t *testing.T) {
	seasons := newFakeSeasonRepo(endedSeason(7))
	store := newFakeRatingStore()
	store.rows[ladder.Matchmaking1v1] = []*ladder.MatchmakingRating{
		testRating(ladder.Matchmaking1v1, 7, 500),
	}
	source := newFakeRankingsSource(store)

	job := NewFinalizeSeasonsJob(seasons, store, source, nil, nil)
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, len(ladder.AllMatchmakingTypes()), source.rebuilds)
	assert.True(t, seasons.finalized[7])
}

func TestFinalizeSeasonsJob_EmptyQueueStillFinalizes(t *testing.T) {
	seasons := newFakeSeasonRepo(endedSeason(7))
	store := newFakeRatingStore()
	source := newFakeRankingsSource(store)
	for _, mt := range ladder.AllMatchmakingTypes() {
		source.built[mt] = true
	}

	job := NewFinalizeSeasonsJob(seasons, store, source, nil, nil)
	require.NoError(t, job.Run(context.Background()))

	assert.True(t, seasons.finalized[7])
	assert.Empty(t, store.written[ladder.Matchmaking1v1])
}

func TestFinalizeSeasonsJob_NoPendingSeasonsIsNoOp(t *testing.T) {
	seasons := newFakeSeasonRepo()
	store := newFakeRatingStore()
	source := newFakeRankingsSource(store)

	job := NewFinalizeSeasonsJob(seasons, store, source, nil, nil)
	assert.NoError(t, job.Run(context.Background()))
}
