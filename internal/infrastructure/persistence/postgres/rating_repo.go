package postgres

import (
	"context"
	"fmt"

	"github.com/ShieldBattery/ShieldBattery-sub013/internal/domain/ladder"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATING REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// RatingRepository implements ladder.RatingRepository for PostgreSQL.
type RatingRepository struct {
	conn *Connection
}

// NewRatingRepository creates a new RatingRepository.
func NewRatingRepository(conn *Connection) *RatingRepository {
	return &RatingRepository{conn: conn}
}

const ratingColumns = `
	user_id, matchmaking_type, season_id, rating, points, bonus_used,
	lifetime_games, wins, losses,
	p_wins, p_losses, t_wins, t_losses, z_wins, z_losses, r_wins, r_losses,
	last_played_date
`

// ─────────────────────────────────────────────────────────────────────────────
// RATING QUERIES
// ─────────────────────────────────────────────────────────────────────────────

// GetAllRatings returns every rating row for a (type, season) pair.
// Ordered by descending points so a full rebuild writes in ladder order.
func (r *RatingRepository) GetAllRatings(ctx context.Context, mt ladder.MatchmakingType, season ladder.SeasonID) ([]*ladder.MatchmakingRating, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM matchmaking_ratings
		WHERE matchmaking_type = $1 AND season_id = $2
		ORDER BY points DESC
	`, ratingColumns)

	rows, err := r.conn.Query(ctx, query, string(mt), int64(season))
	if err != nil {
		return nil, fmt.Errorf("failed to get all ratings: %w", err)
	}
	defer rows.Close()

	return r.scanRatings(rows)
}

// GetRatingsForUsers returns the rating rows for exactly the given users.
// A non-empty nameFilter restricts results to users whose name matches the
// filter as a case-insensitive substring.
func (r *RatingRepository) GetRatingsForUsers(ctx context.Context, userIDs []uuid.UUID, mt ladder.MatchmakingType, season ladder.SeasonID, nameFilter string) ([]*ladder.MatchmakingRating, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM matchmaking_ratings
		WHERE user_id = ANY($1) AND matchmaking_type = $2 AND season_id = $3
	`, ratingColumns)

	args := []interface{}{userIDs, string(mt), int64(season)}
	if nameFilter != "" {
		query = fmt.Sprintf(`
			SELECT %s
			FROM matchmaking_ratings mr
			JOIN users u ON mr.user_id = u.id
			WHERE mr.user_id = ANY($1) AND mr.matchmaking_type = $2 AND mr.season_id = $3
				AND u.name ILIKE $4
		`, ratingColumns)
		args = append(args, "%"+escapeLike(nameFilter)+"%")
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get ratings for users: %w", err)
	}
	defer rows.Close()

	return r.scanRatings(rows)
}

// ─────────────────────────────────────────────────────────────────────────────
// FINALIZED RANKS
// ─────────────────────────────────────────────────────────────────────────────

const finalizedColumns = `
	user_id, matchmaking_type, season_id, rank, points, rating,
	lifetime_games, wins, losses,
	p_wins, p_losses, t_wins, t_losses, z_wins, z_losses, r_wins, r_losses
`

// GetFinalizedRanks returns the permanent rank rows of a finalized season,
// ordered by ascending rank. The stored rank is used as-is; ties were
// resolved at finalization time.
func (r *RatingRepository) GetFinalizedRanks(ctx context.Context, mt ladder.MatchmakingType, season ladder.SeasonID, nameFilter string) ([]*ladder.FinalizedRank, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM matchmaking_finalized_ranks fr
		WHERE fr.matchmaking_type = $1 AND fr.season_id = $2
	`, finalizedColumns)

	args := []interface{}{string(mt), int64(season)}
	if nameFilter != "" {
		query = fmt.Sprintf(`
			SELECT %s
			FROM matchmaking_finalized_ranks fr
			JOIN users u ON fr.user_id = u.id
			WHERE fr.matchmaking_type = $1 AND fr.season_id = $2
				AND u.name ILIKE $3
		`, finalizedColumns)
		args = append(args, "%"+escapeLike(nameFilter)+"%")
	}

	query += " ORDER BY rank ASC, user_id ASC"

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get finalized ranks: %w", err)
	}
	defer rows.Close()

	var ranks []*ladder.FinalizedRank
	for rows.Next() {
		var fr ladder.FinalizedRank
		var mtStr string
		var seasonID int64

		err := rows.Scan(
			&fr.UserID,
			&mtStr,
			&seasonID,
			&fr.Rank,
			&fr.Points,
			&fr.Rating,
			&fr.LifetimeGames,
			&fr.Wins,
			&fr.Losses,
			&fr.Races.PWins,
			&fr.Races.PLosses,
			&fr.Races.TWins,
			&fr.Races.TLosses,
			&fr.Races.ZWins,
			&fr.Races.ZLosses,
			&fr.Races.RWins,
			&fr.Races.RLosses,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan finalized rank: %w", err)
		}

		fr.MatchmakingType = ladder.MatchmakingType(mtStr)
		fr.SeasonID = ladder.SeasonID(seasonID)
		ranks = append(ranks, &fr)
	}

	return ranks, rows.Err()
}

// WriteFinalizedRanks writes the complete finalized rank set for a
// (type, season) in one transaction. Rows are upserted so a retried
// finalization run produces the same table state.
func (r *RatingRepository) WriteFinalizedRanks(ctx context.Context, mt ladder.MatchmakingType, season ladder.SeasonID, ranks []*ladder.FinalizedRank) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if len(ranks) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, fr := range ranks {
			batch.Queue(`
				INSERT INTO matchmaking_finalized_ranks
				(user_id, matchmaking_type, season_id, rank, points, rating,
				 lifetime_games, wins, losses,
				 p_wins, p_losses, t_wins, t_losses, z_wins, z_losses, r_wins, r_losses)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
				ON CONFLICT (user_id, matchmaking_type, season_id) DO UPDATE SET
					rank = EXCLUDED.rank,
					points = EXCLUDED.points,
					rating = EXCLUDED.rating,
					lifetime_games = EXCLUDED.lifetime_games,
					wins = EXCLUDED.wins,
					losses = EXCLUDED.losses,
					p_wins = EXCLUDED.p_wins,
					p_losses = EXCLUDED.p_losses,
					t_wins = EXCLUDED.t_wins,
					t_losses = EXCLUDED.t_losses,
					z_wins = EXCLUDED.z_wins,
					z_losses = EXCLUDED.z_losses,
					r_wins = EXCLUDED.r_wins,
					r_losses = EXCLUDED.r_losses
			`,
				fr.UserID,
				string(mt),
				int64(season),
				fr.Rank,
				fr.Points,
				fr.Rating,
				fr.LifetimeGames,
				fr.Wins,
				fr.Losses,
				fr.Races.PWins,
				fr.Races.PLosses,
				fr.Races.TWins,
				fr.Races.TLosses,
				fr.Races.ZWins,
				fr.Races.ZLosses,
				fr.Races.RWins,
				fr.Races.RLosses,
			)
		}

		br := tx.SendBatch(ctx, batch)
		defer br.Close()

		for range ranks {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("failed to write finalized rank: %w", err)
			}
		}

		return nil
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER METHODS
// ══════════════════════════════════════════════════════════════════════════════

// scanRatings scans rating rows.
func (r *RatingRepository) scanRatings(rows pgx.Rows) ([]*ladder.MatchmakingRating, error) {
	var ratings []*ladder.MatchmakingRating

	for rows.Next() {
		var mr ladder.MatchmakingRating
		var mtStr string
		var seasonID int64

		err := rows.Scan(
			&mr.UserID,
			&mtStr,
			&seasonID,
			&mr.Rating,
			&mr.Points,
			&mr.BonusUsed,
			&mr.LifetimeGames,
			&mr.Wins,
			&mr.Losses,
			&mr.Races.PWins,
			&mr.Races.PLosses,
			&mr.Races.TWins,
			&mr.Races.TLosses,
			&mr.Races.ZWins,
			&mr.Races.ZLosses,
			&mr.Races.RWins,
			&mr.Races.RLosses,
			&mr.LastPlayedDate,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rating: %w", err)
		}

		mr.MatchmakingType = ladder.MatchmakingType(mtStr)
		mr.SeasonID = ladder.SeasonID(seasonID)
		ratings = append(ratings, &mr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return ratings, nil
}

// Ensure interfaces are implemented
var _ ladder.RatingRepository = (*RatingRepository)(nil)
