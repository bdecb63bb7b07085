// Package rankings contains the rankings coordinator: the consistency core
// that orders full cache rebuilds against the stream of incremental rank
// updates produced by finished games.
//
// The coordination primitive is a per-matchmaking-type token: a handle for
// the most recent rebuild. A rebuild installs a new token that first awaits
// the previous one, so rebuilds for one type are strictly serialized.
// Incremental updates await the current token (without holding it) and then
// apply their own batch; because cache scores are absolute assignments, not
// deltas, concurrent incremental writers never need mutual exclusion among
// themselves.
package rankings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShieldBattery/ShieldBattery-sub013/internal/domain/ladder"
	"github.com/ShieldBattery/ShieldBattery-sub013/internal/domain/shared"
	"github.com/ShieldBattery/ShieldBattery-sub013/pkg/metrics"
)

var (
	// ErrRebuildInProgress is returned when a caller's wait on a rebuild is
	// cut short by its context. The rebuild itself keeps running to
	// completion; the caller should re-check later rather than assume the
	// rebuild was aborted.
	ErrRebuildInProgress = errors.New("rankings: rebuild still in progress")

	// ErrNoChanges is returned for an empty update batch.
	ErrNoChanges = errors.New("rankings: no rating changes supplied")
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD TOKEN
// ══════════════════════════════════════════════════════════════════════════════

// rebuildToken is an in-flight handle for one full rebuild. done is closed
// exactly once, after the rebuild's data has landed in the cache (or the
// rebuild failed); err is written before the close and read only after it.
type rebuildToken struct {
	done chan struct{}
	err  error
}

func newRebuildToken() *rebuildToken {
	return &rebuildToken{done: make(chan struct{})}
}

// awaitDone blocks until the rebuild completes, or the caller's context
// expires. A context error never means the rebuild stopped.
func (t *rebuildToken) awaitDone(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrRebuildInProgress, ctx.Err())
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// COORDINATOR
// ══════════════════════════════════════════════════════════════════════════════

// Coordinator owns per-matchmaking-type serialization between full cache
// rebuilds and incremental rank updates. One Coordinator instance exists
// per process; callers receive it by injection.
type Coordinator struct {
	cache     ladder.RankingsCache
	ratings   ladder.RatingRepository
	publisher shared.EventPublisher
	logger    *slog.Logger

	mu     sync.Mutex
	tokens map[ladder.MatchmakingType]*rebuildToken
}

// NewCoordinator creates a Coordinator. publisher may be nil when no one
// consumes ranking events.
func NewCoordinator(
	cache ladder.RankingsCache,
	ratings ladder.RatingRepository,
	publisher shared.EventPublisher,
	logger *slog.Logger,
) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cache:     cache,
		ratings:   ratings,
		publisher: publisher,
		logger:    logger,
		tokens:    make(map[ladder.MatchmakingType]*rebuildToken),
	}
}

// currentToken returns the in-flight token for a type, or nil.
func (c *Coordinator) currentToken(mt ladder.MatchmakingType) *rebuildToken {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens[mt]
}

// installToken atomically replaces the type's token and returns the
// previous one (nil if none).
func (c *Coordinator) installToken(mt ladder.MatchmakingType, tok *rebuildToken) *rebuildToken {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.tokens[mt]
	c.tokens[mt] = tok
	return prev
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITE PATH
// ══════════════════════════════════════════════════════════════════════════════

// UpdateRankings applies a batch of changed rating rows to the cache.
// Called once per finished game; the batch may span matchmaking types.
//
// For each type touched, the call waits for that type's in-flight rebuild
// (if any) before writing, so the batch is ordered after any rebuild that
// was running when it was submitted. A rebuild reading a snapshot that
// predates these rows must not overwrite them. Concurrent
// UpdateRankings calls for the same type do not exclude each other:
// absolute-score upserts are commutative.
func (c *Coordinator) UpdateRankings(ctx context.Context, changes []*ladder.MatchmakingRating) error {
	if len(changes) == 0 {
		return ErrNoChanges
	}

	groups := groupChanges(changes)

	var errs []error
	for key, entries := range groups {
		if tok := c.currentToken(key.mt); tok != nil {
			if err := tok.awaitDone(ctx); err != nil {
				errs = append(errs, err)
				continue
			}
		}

		if err := c.cache.UpsertMany(ctx, key.mt, key.season, entries); err != nil {
			metrics.RecordCacheError()
			errs = append(errs, fmt.Errorf("rankings: update %s season %d: %w", key.mt, key.season, err))
			continue
		}

		metrics.RecordRankUpdates(len(entries))
		c.publish(shared.NewRankingsUpdatedEvent(string(key.mt), int64(key.season), len(entries)))
	}

	return errors.Join(errs...)
}

type groupKey struct {
	mt     ladder.MatchmakingType
	season ladder.SeasonID
}

// groupChanges partitions changed rows into one upsert batch per
// (type, season) pair.
func groupChanges(changes []*ladder.MatchmakingRating) map[groupKey][]ladder.CacheEntry {
	groups := make(map[groupKey][]ladder.CacheEntry)
	for _, r := range changes {
		key := groupKey{mt: r.MatchmakingType, season: r.SeasonID}
		groups[key] = append(groups[key], ladder.CacheEntry{
			UserID: r.UserID,
			Points: r.Points,
		})
	}
	return groups
}

// ══════════════════════════════════════════════════════════════════════════════
// FULL REBUILD
// ══════════════════════════════════════════════════════════════════════════════

// NeedsFullRebuild reports whether the cache key for (type, season) has
// never been materialized. This drives migration and bootstrap only;
// routine repair through frequent rebuilds would starve incremental writers
// behind the token queue.
func (c *Coordinator) NeedsFullRebuild(ctx context.Context, mt ladder.MatchmakingType, season ladder.SeasonID) (bool, error) {
	exists, err := c.cache.Exists(ctx, mt, season)
	if err != nil {
		return false, fmt.Errorf("rankings: check cache for %s season %d: %w", mt, season, err)
	}
	return !exists, nil
}

// DoFullRebuild reloads the cache for (type, season) from the rating store.
//
// The new token is published immediately, so incremental updates submitted
// from this point on queue behind the rebuild. The rebuild work itself runs
// detached and is not cancellable: an aborted rebuild could leave the cache
// half-written. The caller's context only bounds how long this call waits;
// on expiry it returns ErrRebuildInProgress while the rebuild continues.
func (c *Coordinator) DoFullRebuild(ctx context.Context, mt ladder.MatchmakingType, season ladder.SeasonID) error {
	tok := newRebuildToken()
	prev := c.installToken(mt, tok)

	go c.runRebuild(context.WithoutCancel(ctx), mt, season, tok, prev)

	if err := tok.awaitDone(ctx); err != nil {
		return err
	}
	return tok.err
}

// runRebuild executes one rebuild: wait out the previous token, read the
// authoritative rows, land them in one batch, resolve the token.
func (c *Coordinator) runRebuild(ctx context.Context, mt ladder.MatchmakingType, season ladder.SeasonID, tok, prev *rebuildToken) {
	defer close(tok.done)

	if prev != nil {
		// Strict ordering with the prior rebuild and everyone queued on it.
		// A failed predecessor does not fail this rebuild.
		<-prev.done
	}

	start := time.Now()

	all, err := c.ratings.GetAllRatings(ctx, mt, season)
	if err != nil {
		tok.err = fmt.Errorf("rankings: rebuild %s season %d: read ratings: %w", mt, season, err)
		metrics.RecordFullRebuildError()
		c.logger.Error("full rebuild failed", "matchmaking_type", mt, "season", season, "error", err)
		return
	}

	entries := make([]ladder.CacheEntry, len(all))
	for i, r := range all {
		entries[i] = ladder.CacheEntry{UserID: r.UserID, Points: r.Points}
	}

	if err := c.cache.UpsertMany(ctx, mt, season, entries); err != nil {
		tok.err = fmt.Errorf("rankings: rebuild %s season %d: write cache: %w", mt, season, err)
		metrics.RecordFullRebuildError()
		c.logger.Error("full rebuild failed", "matchmaking_type", mt, "season", season, "error", err)
		return
	}

	metrics.RecordFullRebuild(time.Since(start))
	c.logger.Info("full rebuild completed",
		"matchmaking_type", mt,
		"season", season,
		"users", len(entries),
		"duration", time.Since(start).String(),
	)
	c.publish(shared.NewRankingsRebuiltEvent(string(mt), int64(season), len(entries)))
}

// ══════════════════════════════════════════════════════════════════════════════
// READ PATH
// ══════════════════════════════════════════════════════════════════════════════

// GetTopN returns up to n user IDs ordered by descending points; n = 0
// means all. Reads are not gated by the rebuild token: a read overlapping a
// rebuild may be stale by milliseconds, which is the accepted tradeoff for
// read availability.
func (c *Coordinator) GetTopN(ctx context.Context, mt ladder.MatchmakingType, season ladder.SeasonID, n int64) ([]uuid.UUID, error) {
	return c.cache.RangeDescending(ctx, mt, season, 0, n)
}

// GetRankOf returns a user's 0-based descending rank for one type, with
// found=false when the user is not ranked there.
func (c *Coordinator) GetRankOf(ctx context.Context, mt ladder.MatchmakingType, season ladder.SeasonID, userID uuid.UUID) (int64, bool, error) {
	return c.cache.ReverseRankOf(ctx, mt, season, userID)
}

// publish emits an event if a publisher is wired; publish failures are
// logged and never affect the ranking operation.
func (c *Coordinator) publish(event shared.Event) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(event); err != nil {
		c.logger.Warn("failed to publish event", "event", event.EventType(), "error", err)
	}
}
