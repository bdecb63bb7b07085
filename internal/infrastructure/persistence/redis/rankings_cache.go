package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ShieldBattery/ShieldBattery-sub013/internal/domain/ladder"
)

// ══════════════════════════════════════════════════════════════════════════════
// RANKINGS CACHE
// ══════════════════════════════════════════════════════════════════════════════

// RankingsCache implements ladder.RankingsCache on Redis Sorted Sets.
//
// Architecture:
//   - Sorted Set "rankings:{type}:{season}" stores userID -> points
//
// This gives O(log N) rank lookups and O(log N + M) range queries. Scores
// are absolute point values written by the coordinator; the set for an
// active season is the live ladder, and once the season is finalized the
// Postgres finalized-rank table becomes authoritative for display.
type RankingsCache struct {
	cache *Cache
}

// Key patterns for the rankings cache.
const (
	// keyRankings is the sorted set key prefix for ladder rankings.
	keyRankings = "rankings:"

	// keyRankingsBuilt marks a (type, season) key as materialized. Redis
	// cannot hold an empty sorted set, and "built but empty" must stay
	// distinguishable from "never built".
	keyRankingsBuilt = "rankings:built:"
)

// NewRankingsCache creates a new RankingsCache instance.
func NewRankingsCache(cache *Cache) *RankingsCache {
	return &RankingsCache{cache: cache}
}

// rankingsKey builds the sorted set key for a (type, season) pair.
func rankingsKey(mt ladder.MatchmakingType, season ladder.SeasonID) string {
	return fmt.Sprintf("%s%s:%d", keyRankings, mt, season)
}

// builtKey builds the materialization marker key for a (type, season) pair.
func builtKey(mt ladder.MatchmakingType, season ladder.SeasonID) string {
	return fmt.Sprintf("%s%s:%d", keyRankingsBuilt, mt, season)
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITE OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// UpsertMany assigns absolute point scores for a batch of users. A single
// ZADD carries the whole batch, so the ordering reflects every new score
// at once. Re-running the same batch is a no-op for the observable state.
func (r *RankingsCache) UpsertMany(ctx context.Context, mt ladder.MatchmakingType, season ladder.SeasonID, entries []ladder.CacheEntry) error {
	members := make([]redis.Z, len(entries))
	for i, e := range entries {
		members[i] = redis.Z{
			Score:  e.Points,
			Member: e.UserID.String(),
		}
	}

	pipe := r.cache.Client().TxPipeline()
	if len(members) > 0 {
		pipe.ZAdd(ctx, rankingsKey(mt, season), members...)
	}
	pipe.Set(ctx, builtKey(mt, season), "1", 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rankings_cache: upsert %d entries for %s season %d: %w", len(entries), mt, season, err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// READ OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// RangeDescending returns up to limit user IDs by descending points
// starting at offset; limit 0 means all. An absent key yields an empty
// slice; distinguishing "never built" is Exists' job. A transient store
// outage propagates as an error rather than an empty result.
func (r *RankingsCache) RangeDescending(ctx context.Context, mt ladder.MatchmakingType, season ladder.SeasonID, offset, limit int64) ([]uuid.UUID, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = offset + limit - 1
	}

	raw, err := r.cache.Client().ZRevRange(ctx, rankingsKey(mt, season), offset, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("rankings_cache: range %s season %d: %w", mt, season, err)
	}

	ids := make([]uuid.UUID, 0, len(raw))
	for _, member := range raw {
		id, err := uuid.Parse(member)
		if err != nil {
			return nil, fmt.Errorf("rankings_cache: corrupt member %q in %s season %d: %w", member, mt, season, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ReverseRankOf returns the 0-based descending rank of a user. An absent
// user is found=false, not an error.
func (r *RankingsCache) ReverseRankOf(ctx context.Context, mt ladder.MatchmakingType, season ladder.SeasonID, userID uuid.UUID) (int64, bool, error) {
	rank, err := r.cache.Client().ZRevRank(ctx, rankingsKey(mt, season), userID.String()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("rankings_cache: rank of %s in %s season %d: %w", userID, mt, season, err)
	}
	return rank, true, nil
}

// Exists reports whether the (type, season) key has been materialized by
// at least one upsert or rebuild.
func (r *RankingsCache) Exists(ctx context.Context, mt ladder.MatchmakingType, season ladder.SeasonID) (bool, error) {
	count, err := r.cache.Client().Exists(ctx, rankingsKey(mt, season), builtKey(mt, season)).Result()
	if err != nil {
		return false, fmt.Errorf("rankings_cache: exists %s season %d: %w", mt, season, err)
	}
	return count > 0, nil
}

// Count returns the number of ranked users for a (type, season) pair.
func (r *RankingsCache) Count(ctx context.Context, mt ladder.MatchmakingType, season ladder.SeasonID) (int64, error) {
	n, err := r.cache.Client().ZCard(ctx, rankingsKey(mt, season)).Result()
	if err != nil {
		return 0, fmt.Errorf("rankings_cache: count %s season %d: %w", mt, season, err)
	}
	return n, nil
}
