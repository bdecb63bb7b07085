package rankings

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShieldBattery/ShieldBattery-sub013/internal/domain/ladder"
)

// ══════════════════════════════════════════════════════════════════════════════
// FAKES
// ══════════════════════════════════════════════════════════════════════════════

func cacheKey(mt ladder.MatchmakingType, season ladder.SeasonID) string {
	return fmt.Sprintf("%s:%d", mt, season)
}

// fakeCache is an in-memory ladder.RankingsCache with the same "built
// marker" semantics as the Redis implementation.
type fakeCache struct {
	mu     sync.Mutex
	scores map[string]map[uuid.UUID]float64
	built  map[string]bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		scores: make(map[string]map[uuid.UUID]float64),
		built:  make(map[string]bool),
	}
}

func (c *fakeCache) UpsertMany(_ context.Context, mt ladder.MatchmakingType, season ladder.SeasonID, entries []ladder.CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(mt, season)
	if c.scores[key] == nil {
		c.scores[key] = make(map[uuid.UUID]float64)
	}
	for _, e := range entries {
		c.scores[key][e.UserID] = e.Points
	}
	c.built[key] = true
	return nil
}

func (c *fakeCache) RangeDescending(_ context.Context, mt ladder.MatchmakingType, season ladder.SeasonID, offset, limit int64) ([]uuid.UUID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	type entry struct {
		id     uuid.UUID
		points float64
	}
	var entries []entry
	for id, points := range c.scores[cacheKey(mt, season)] {
		entries = append(entries, entry{id, points})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].points != entries[j].points {
			return entries[i].points > entries[j].points
		}
		return entries[i].id.String() < entries[j].id.String()
	})

	if offset >= int64(len(entries)) {
		return nil, nil
	}
	entries = entries[offset:]
	if limit > 0 && limit < int64(len(entries)) {
		entries = entries[:limit]
	}

	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.id
	}
	return ids, nil
}

func (c *fakeCache) ReverseRankOf(ctx context.Context, mt ladder.MatchmakingType, season ladder.SeasonID, userID uuid.UUID) (int64, bool, error) {
	ids, err := c.RangeDescending(ctx, mt, season, 0, 0)
	if err != nil {
		return 0, false, err
	}
	for i, id := range ids {
		if id == userID {
			return int64(i), true, nil
		}
	}
	return 0, false, nil
}

func (c *fakeCache) Exists(_ context.Context, mt ladder.MatchmakingType, season ladder.SeasonID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.built[cacheKey(mt, season)], nil
}

func (c *fakeCache) Count(_ context.Context, mt ladder.MatchmakingType, season ladder.SeasonID) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(len(c.scores[cacheKey(mt, season)])), nil
}

func (c *fakeCache) pointsOf(mt ladder.MatchmakingType, season ladder.SeasonID, userID uuid.UUID) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.scores[cacheKey(mt, season)][userID]
	return p, ok
}

// fakeRatingRepo is an in-memory ladder.RatingRepository. readGate, when
// set, blocks GetAllRatings until released, to hold a rebuild open.
type fakeRatingRepo struct {
	mu       sync.Mutex
	rows     map[string][]*ladder.MatchmakingRating
	readGate chan struct{}
	readErr  error
}

func newFakeRatingRepo() *fakeRatingRepo {
	return &fakeRatingRepo{rows: make(map[string][]*ladder.MatchmakingRating)}
}

func (r *fakeRatingRepo) setRows(mt ladder.MatchmakingType, season ladder.SeasonID, rows ...*ladder.MatchmakingRating) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[cacheKey(mt, season)] = rows
}

func (r *fakeRatingRepo) GetAllRatings(_ context.Context, mt ladder.MatchmakingType, season ladder.SeasonID) ([]*ladder.MatchmakingRating, error) {
	r.mu.Lock()
	gate := r.readGate
	r.mu.Unlock()
	if gate != nil {
		<-gate
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.readErr != nil {
		return nil, r.readErr
	}
	return r.rows[cacheKey(mt, season)], nil
}

func (r *fakeRatingRepo) GetRatingsForUsers(_ context.Context, userIDs []uuid.UUID, mt ladder.MatchmakingType, season ladder.SeasonID, _ string) ([]*ladder.MatchmakingRating, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		want[id] = true
	}
	var out []*ladder.MatchmakingRating
	for _, row := range r.rows[cacheKey(mt, season)] {
		if want[row.UserID] {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *fakeRatingRepo) GetFinalizedRanks(context.Context, ladder.MatchmakingType, ladder.SeasonID, string) ([]*ladder.FinalizedRank, error) {
	return nil, nil
}

func (r *fakeRatingRepo) WriteFinalizedRanks(context.Context, ladder.MatchmakingType, ladder.SeasonID, []*ladder.FinalizedRank) error {
	return nil
}

func rating(id uuid.UUID, mt ladder.MatchmakingType, season ladder.SeasonID, points float64) *ladder.MatchmakingRating {
	return &ladder.MatchmakingRating{
		UserID:          id,
		MatchmakingType: mt,
		SeasonID:        season,
		Points:          points,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func TestCoordinator_NeedsFullRebuildTransitions(t *testing.T) {
	ctx := context.Background()
	cache := newFakeCache()
	repo := newFakeRatingRepo()
	c := NewCoordinator(cache, repo, nil, nil)

	needed, err := c.NeedsFullRebuild(ctx, ladder.Matchmaking1v1, 1)
	require.NoError(t, err)
	assert.True(t, needed, "never-written key needs a rebuild")

	err = c.UpdateRankings(ctx, []*ladder.MatchmakingRating{
		rating(uuid.New(), ladder.Matchmaking1v1, 1, 100),
	})
	require.NoError(t, err)

	needed, err = c.NeedsFullRebuild(ctx, ladder.Matchmaking1v1, 1)
	require.NoError(t, err)
	assert.False(t, needed, "one upsert materializes the key")

	// An empty rebuild still materializes its key.
	require.NoError(t, c.DoFullRebuild(ctx, ladder.Matchmaking2v2, 1))
	needed, err = c.NeedsFullRebuild(ctx, ladder.Matchmaking2v2, 1)
	require.NoError(t, err)
	assert.False(t, needed)
}

func TestCoordinator_DoFullRebuildPopulatesCache(t *testing.T) {
	ctx := context.Background()
	cache := newFakeCache()
	repo := newFakeRatingRepo()
	c := NewCoordinator(cache, repo, nil, nil)

	a, b, d := uuid.New(), uuid.New(), uuid.New()
	repo.setRows(ladder.Matchmaking1v1, 1,
		rating(a, ladder.Matchmaking1v1, 1, 500),
		rating(b, ladder.Matchmaking1v1, 1, 300),
		rating(d, ladder.Matchmaking1v1, 1, 400),
	)

	require.NoError(t, c.DoFullRebuild(ctx, ladder.Matchmaking1v1, 1))

	top, err := c.GetTopN(ctx, ladder.Matchmaking1v1, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, d, b}, top)
}

func TestCoordinator_UpdateOrderedAfterInflightRebuild(t *testing.T) {
	cache := newFakeCache()
	repo := newFakeRatingRepo()
	c := NewCoordinator(cache, repo, nil, nil)

	u := uuid.New()

	// The rebuild will read a stale snapshot of 100 points for u.
	repo.setRows(ladder.Matchmaking1v1, 1, rating(u, ladder.Matchmaking1v1, 1, 100))
	gate := make(chan struct{})
	repo.readGate = gate

	rebuildDone := make(chan error, 1)
	go func() {
		rebuildDone <- c.DoFullRebuild(context.Background(), ladder.Matchmaking1v1, 1)
	}()

	// Wait for the token to be installed, then submit the newer write.
	require.Eventually(t, func() bool {
		return c.currentToken(ladder.Matchmaking1v1) != nil
	}, time.Second, time.Millisecond)

	updateDone := make(chan error, 1)
	go func() {
		updateDone <- c.UpdateRankings(context.Background(), []*ladder.MatchmakingRating{
			rating(u, ladder.Matchmaking1v1, 1, 200),
		})
	}()

	// The update must not land while the rebuild is still in flight.
	time.Sleep(20 * time.Millisecond)
	_, present := cache.pointsOf(ladder.Matchmaking1v1, 1, u)
	assert.False(t, present, "update applied before rebuild landed")

	close(gate)
	require.NoError(t, <-rebuildDone)
	require.NoError(t, <-updateDone)

	// The stale rebuild value must not have overwritten the newer write.
	points, present := cache.pointsOf(ladder.Matchmaking1v1, 1, u)
	require.True(t, present)
	assert.Equal(t, 200.0, points)
}

func TestCoordinator_DoFullRebuildCallerTimeout(t *testing.T) {
	cache := newFakeCache()
	repo := newFakeRatingRepo()
	c := NewCoordinator(cache, repo, nil, nil)

	u := uuid.New()
	repo.setRows(ladder.Matchmaking1v1, 1, rating(u, ladder.Matchmaking1v1, 1, 100))
	gate := make(chan struct{})
	repo.readGate = gate

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.DoFullRebuild(ctx, ladder.Matchmaking1v1, 1)
	assert.ErrorIs(t, err, ErrRebuildInProgress)

	// The rebuild keeps running and eventually lands.
	close(gate)
	assert.Eventually(t, func() bool {
		_, present := cache.pointsOf(ladder.Matchmaking1v1, 1, u)
		return present
	}, time.Second, time.Millisecond)
}

func TestCoordinator_RebuildFailurePropagates(t *testing.T) {
	cache := newFakeCache()
	repo := newFakeRatingRepo()
	repo.readErr = errors.New("store down")
	c := NewCoordinator(cache, repo, nil, nil)

	err := c.DoFullRebuild(context.Background(), ladder.Matchmaking1v1, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store down")
}

func TestCoordinator_UpdateRankings_EmptyBatch(t *testing.T) {
	c := NewCoordinator(newFakeCache(), newFakeRatingRepo(), nil, nil)
	err := c.UpdateRankings(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoChanges)
}

func TestCoordinator_UpdateRankings_Idempotent(t *testing.T) {
	ctx := context.Background()
	cache := newFakeCache()
	c := NewCoordinator(cache, newFakeRatingRepo(), nil, nil)

	u := uuid.New()
	batch := []*ladder.MatchmakingRating{rating(u, ladder.Matchmaking1v1, 1, 150)}

	require.NoError(t, c.UpdateRankings(ctx, batch))
	require.NoError(t, c.UpdateRankings(ctx, batch))

	count, err := cache.Count(ctx, ladder.Matchmaking1v1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCoordinator_UpdateRankings_SpansTypesAndSeasons(t *testing.T) {
	ctx := context.Background()
	cache := newFakeCache()
	c := NewCoordinator(cache, newFakeRatingRepo(), nil, nil)

	u := uuid.New()
	err := c.UpdateRankings(ctx, []*ladder.MatchmakingRating{
		rating(u, ladder.Matchmaking1v1, 1, 100),
		rating(u, ladder.Matchmaking2v2, 1, 200),
		rating(u, ladder.Matchmaking1v1, 2, 300),
	})
	require.NoError(t, err)

	p, _ := cache.pointsOf(ladder.Matchmaking1v1, 1, u)
	assert.Equal(t, 100.0, p)
	p, _ = cache.pointsOf(ladder.Matchmaking2v2, 1, u)
	assert.Equal(t, 200.0, p)
	p, _ = cache.pointsOf(ladder.Matchmaking1v1, 2, u)
	assert.Equal(t, 300.0, p)
}

func TestCoordinator_GetRankOf(t *testing.T) {
	ctx := context.Background()
	cache := newFakeCache()
	c := NewCoordinator(cache, newFakeRatingRepo(), nil, nil)

	a, b := uuid.New(), uuid.New()
	require.NoError(t, c.UpdateRankings(ctx, []*ladder.MatchmakingRating{
		rating(a, ladder.Matchmaking1v1, 1, 500),
		rating(b, ladder.Matchmaking1v1, 1, 400),
	}))

	rank, found, err := c.GetRankOf(ctx, ladder.Matchmaking1v1, 1, b)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(1), rank)

	_, found, err = c.GetRankOf(ctx, ladder.Matchmaking1v1, 1, uuid.New())
	require.NoError(t, err)
	assert.False(t, found)
}
