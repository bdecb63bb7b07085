// Package jobs contains implementations of scheduled jobs for the rankings
// engine.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ShieldBattery/ShieldBattery-sub013/internal/domain/ladder"
	"github.com/ShieldBattery/ShieldBattery-sub013/internal/domain/shared"
	"github.com/ShieldBattery/ShieldBattery-sub013/pkg/metrics"
)

// ══════════════════════════════════════════════════════════════════════════════
// SEASON FINALIZATION JOB
// ══════════════════════════════════════════════════════════════════════════════

// RankingsSource is the coordinator surface the job needs: the final cache
// ordering plus the ability to repair a missing cache key on demand.
type RankingsSource interface {
	NeedsFullRebuild(ctx context.Context, mt ladder.MatchmakingType, season ladder.SeasonID) (bool, error)
	DoFullRebuild(ctx context.Context, mt ladder.MatchmakingType, season ladder.SeasonID) error
	GetTopN(ctx context.Context, mt ladder.MatchmakingType, season ladder.SeasonID, n int64) ([]uuid.UUID, error)
}

// FinalizeSeasonsJob snapshots the final standings of every ended season
// into the permanent finalized rank table.
//
// A season is marked finalized only after the complete rank set for every
// matchmaking type has been written. If any write fails, the season is left
// unfinalized and retried on the next cycle; re-running recomputes the same
// rows, so a partial earlier attempt is simply overwritten.
type FinalizeSeasonsJob struct {
	seasons   ladder.SeasonRepository
	ratings   ladder.RatingRepository
	rankings  RankingsSource
	publisher shared.EventPublisher
	logger    *slog.Logger

	now func() time.Time
}

// NewFinalizeSeasonsJob creates the finalization job. publisher may be nil.
func NewFinalizeSeasonsJob(
	seasons ladder.SeasonRepository,
	ratings ladder.RatingRepository,
	rankings RankingsSource,
	publisher shared.EventPublisher,
	logger *slog.Logger,
) *FinalizeSeasonsJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &FinalizeSeasonsJob{
		seasons:   seasons,
		ratings:   ratings,
		rankings:  rankings,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Name returns the unique name of the job.
func (j *FinalizeSeasonsJob) Name() string {
	return "finalize_seasons"
}

// Description returns a human-readable description of the job.
func (j *FinalizeSeasonsJob) Description() string {
	return "Snapshots final ranks for ended seasons and marks them finalized"
}

// Run finds every ended but unfinalized season and finalizes each in turn.
// A failure on one season is logged and does not block the others.
func (j *FinalizeSeasonsJob) Run(ctx context.Context) error {
	seasons, err := j.seasons.FindUnfinalizedSeasons(ctx, j.now())
	if err != nil {
		return fmt.Errorf("jobs: find unfinalized seasons: %w", err)
	}
	if len(seasons) == 0 {
		return nil
	}

	j.logger.Info("season finalization sweep", "pending", len(seasons))

	var failed int
	for _, season := range seasons {
		if err := j.finalizeSeason(ctx, season); err != nil {
			failed++
			metrics.RecordFinalizeError()
			j.logger.Error("season finalization failed, will retry next cycle",
				"season", season.ID,
				"error", err,
			)
		}
	}

	if failed > 0 {
		return fmt.Errorf("jobs: %d of %d seasons failed to finalize", failed, len(seasons))
	}
	return nil
}

// finalizeSeason writes the complete finalized rank set for one season and
// then flips its finalized flag. The flag is flipped last so an observer
// never sees a finalized season with missing rank rows.
func (j *FinalizeSeasonsJob) finalizeSeason(ctx context.Context, season *ladder.Season) error {
	start := time.Now()
	totalRows := 0

	for _, mt := range ladder.AllMatchmakingTypes() {
		n, err := j.finalizeType(ctx, mt, season.ID)
		if err != nil {
			return fmt.Errorf("finalize %s: %w", mt, err)
		}
		totalRows += n
	}

	if err := j.seasons.MarkFinalized(ctx, season.ID); err != nil {
		return fmt.Errorf("mark finalized: %w", err)
	}

	metrics.RecordSeasonFinalized(time.Since(start), totalRows)
	j.logger.Info("season finalized",
		"season", season.ID,
		"name", season.Name,
		"rank_rows", totalRows,
		"duration", time.Since(start).String(),
	)

	if j.publisher != nil {
		event := shared.NewSeasonFinalizedEvent(int64(season.ID), totalRows)
		if err := j.publisher.Publish(event); err != nil {
			j.logger.Warn("failed to publish event", "event", event.EventType(), "error", err)
		}
	}

	return nil
}

// finalizeType snapshots one matchmaking type's final standing. Ranks are
// assigned with the same tie-break rule the live ladder uses, so the frozen
// table matches what the ladder showed when the season closed.
func (j *FinalizeSeasonsJob) finalizeType(ctx context.Context, mt ladder.MatchmakingType, season ladder.SeasonID) (int, error) {
	needsRebuild, err := j.rankings.NeedsFullRebuild(ctx, mt, season)
	if err != nil {
		return 0, fmt.Errorf("check cache: %w", err)
	}
	if needsRebuild {
		// The cache key was lost (or this instance came up after the season
		// ended). Rebuild it from the rating store before reading.
		if err := j.rankings.DoFullRebuild(ctx, mt, season); err != nil {
			return 0, fmt.Errorf("rebuild cache: %w", err)
		}
	}

	orderedIDs, err := j.rankings.GetTopN(ctx, mt, season, 0)
	if err != nil {
		return 0, fmt.Errorf("read final ordering: %w", err)
	}
	if len(orderedIDs) == 0 {
		// Nobody played this queue this season.
		return 0, nil
	}

	ratingRows, err := j.ratings.GetRatingsForUsers(ctx, orderedIDs, mt, season, "")
	if err != nil {
		return 0, fmt.Errorf("load rating rows: %w", err)
	}

	byUser := make(map[uuid.UUID]*ladder.MatchmakingRating, len(ratingRows))
	for _, r := range ratingRows {
		byUser[r.UserID] = r
	}

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

	finalized := make([]*ladder.FinalizedRank, len(ordered))
	for i, r := range ordered {
		finalized[i] = ladder.NewFinalizedRank(ranks[i], r)
	}

	if err := j.ratings.WriteFinalizedRanks(ctx, mt, season, finalized); err != nil {
		return 0, fmt.Errorf("write finalized ranks: %w", err)
	}

	return len(finalized), nil
}
