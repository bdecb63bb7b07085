package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ShieldBattery/ShieldBattery-sub013/internal/domain/ladder"
)

// ══════════════════════════════════════════════════════════════════════════════
// SEASON REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// SeasonRepository implements ladder.SeasonRepository for PostgreSQL.
type SeasonRepository struct {
	conn *Connection
}

// NewSeasonRepository creates a new SeasonRepository.
func NewSeasonRepository(conn *Connection) *SeasonRepository {
	return &SeasonRepository{conn: conn}
}

// CurrentSeason returns the season whose window contains now.
func (r *SeasonRepository) CurrentSeason(ctx context.Context, now time.Time) (*ladder.Season, error) {
	var season ladder.Season
	var id int64

	err := r.conn.QueryRow(ctx, `
		SELECT id, name, start_date, end_date, finalized
		FROM matchmaking_seasons
		WHERE start_date <= $1 AND end_date > $1
		ORDER BY start_date DESC
		LIMIT 1
	`, now).Scan(&id, &season.Name, &season.StartDate, &season.EndDate, &season.Finalized)

	if IsNoRows(err) {
		return nil, ladder.ErrNoCurrentSeason
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current season: %w", err)
	}

	season.ID = ladder.SeasonID(id)
	return &season, nil
}

// SeasonByID returns a season by ID.
func (r *SeasonRepository) SeasonByID(ctx context.Context, id ladder.SeasonID) (*ladder.Season, error) {
	var season ladder.Season
	var rawID int64

	err := r.conn.QueryRow(ctx, `
		SELECT id, name, start_date, end_date, finalized
		FROM matchmaking_seasons
		WHERE id = $1
	`, int64(id)).Scan(&rawID, &season.Name, &season.StartDate, &season.EndDate, &season.Finalized)

	if IsNoRows(err) {
		return nil, ladder.ErrSeasonNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get season by id: %w", err)
	}

	season.ID = ladder.SeasonID(rawID)
	return &season, nil
}

// FindUnfinalizedSeasons returns all ended but unfinalized seasons, oldest
// first so backlogged seasons are finalized in order.
func (r *SeasonRepository) FindUnfinalizedSeasons(ctx context.Context, now time.Time) ([]*ladder.Season, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, name, start_date, end_date, finalized
		FROM matchmaking_seasons
		WHERE end_date <= $1 AND NOT finalized
		ORDER BY end_date ASC
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to find unfinalized seasons: %w", err)
	}
	defer rows.Close()

	var seasons []*ladder.Season
	for rows.Next() {
		var season ladder.Season
		var id int64

		err := rows.Scan(&id, &season.Name, &season.StartDate, &season.EndDate, &season.Finalized)
		if err != nil {
			return nil, fmt.Errorf("failed to scan season: %w", err)
		}

		season.ID = ladder.SeasonID(id)
		seasons = append(seasons, &season)
	}

	return seasons, rows.Err()
}

// MarkFinalized flips a season's finalized flag.
func (r *SeasonRepository) MarkFinalized(ctx context.Context, id ladder.SeasonID) error {
	result, err := r.conn.Exec(ctx, `
		UPDATE matchmaking_seasons SET finalized = TRUE WHERE id = $1
	`, int64(id))
	if err != nil {
		return fmt.Errorf("failed to mark season finalized: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ladder.ErrSeasonNotFound
	}
	return nil
}

// Ensure interfaces are implemented
var _ ladder.SeasonRepository = (*SeasonRepository)(nil)
