package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: USERS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create users table
-- Version: 001

CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name VARCHAR(32) NOT NULL UNIQUE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_users_name_lower ON users (LOWER(name));
`

const migration001Down = `
DROP TABLE IF EXISTS users;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: SEASONS AND RATINGS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create matchmaking seasons and ratings
-- Version: 002

CREATE TABLE IF NOT EXISTS matchmaking_seasons (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(64) NOT NULL,
    start_date TIMESTAMP WITH TIME ZONE NOT NULL,
    end_date TIMESTAMP WITH TIME ZONE NOT NULL,
    finalized BOOLEAN NOT NULL DEFAULT FALSE,

    CONSTRAINT valid_window CHECK (end_date > start_date)
);

CREATE INDEX IF NOT EXISTS idx_seasons_window ON matchmaking_seasons (start_date, end_date);
CREATE INDEX IF NOT EXISTS idx_seasons_unfinalized ON matchmaking_seasons (end_date) WHERE NOT finalized;

-- One rating row per user x matchmaking type x season, written by the
-- external rating computation after each finished game.
CREATE TABLE IF NOT EXISTS matchmaking_ratings (
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    matchmaking_type VARCHAR(16) NOT NULL,
    season_id BIGINT NOT NULL REFERENCES matchmaking_seasons(id) ON DELETE CASCADE,
    rating DOUBLE PRECISION NOT NULL DEFAULT 0,
    points DOUBLE PRECISION NOT NULL DEFAULT 0,
    bonus_used DOUBLE PRECISION NOT NULL DEFAULT 0,
    lifetime_games INTEGER NOT NULL DEFAULT 0,
    wins INTEGER NOT NULL DEFAULT 0,
    losses INTEGER NOT NULL DEFAULT 0,
    p_wins INTEGER NOT NULL DEFAULT 0,
    p_losses INTEGER NOT NULL DEFAULT 0,
    t_wins INTEGER NOT NULL DEFAULT 0,
    t_losses INTEGER NOT NULL DEFAULT 0,
    z_wins INTEGER NOT NULL DEFAULT 0,
    z_losses INTEGER NOT NULL DEFAULT 0,
    r_wins INTEGER NOT NULL DEFAULT 0,
    r_losses INTEGER NOT NULL DEFAULT 0,
    last_played_date TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, matchmaking_type, season_id),
    CONSTRAINT valid_games CHECK (lifetime_games >= 0)
);

-- Full rebuilds scan a (type, season) pair ordered by points.
CREATE INDEX IF NOT EXISTS idx_ratings_ladder
    ON matchmaking_ratings (matchmaking_type, season_id, points DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS matchmaking_ratings;
DROP TABLE IF EXISTS matchmaking_seasons;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: FINALIZED RANKS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create permanent finalized rank table
-- Version: 003

-- One row per user x matchmaking type x season, written once when the
-- season is finalized and immutable thereafter.
CREATE TABLE IF NOT EXISTS matchmaking_finalized_ranks (
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    matchmaking_type VARCHAR(16) NOT NULL,
    season_id BIGINT NOT NULL REFERENCES matchmaking_seasons(id) ON DELETE CASCADE,
    rank INTEGER NOT NULL,
    points DOUBLE PRECISION NOT NULL,
    rating DOUBLE PRECISION NOT NULL,
    lifetime_games INTEGER NOT NULL,
    wins INTEGER NOT NULL,
    losses INTEGER NOT NULL,
    p_wins INTEGER NOT NULL DEFAULT 0,
    p_losses INTEGER NOT NULL DEFAULT 0,
    t_wins INTEGER NOT NULL DEFAULT 0,
    t_losses INTEGER NOT NULL DEFAULT 0,
    z_wins INTEGER NOT NULL DEFAULT 0,
    z_losses INTEGER NOT NULL DEFAULT 0,
    r_wins INTEGER NOT NULL DEFAULT 0,
    r_losses INTEGER NOT NULL DEFAULT 0,

    PRIMARY KEY (user_id, matchmaking_type, season_id),
    CONSTRAINT valid_rank CHECK (rank >= 1)
);

CREATE INDEX IF NOT EXISTS idx_finalized_ranks_ladder
    ON matchmaking_finalized_ranks (matchmaking_type, season_id, rank);
`

const migration003Down = `
DROP TABLE IF EXISTS matchmaking_finalized_ranks;
`

// GetMigrations returns all migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_users", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_seasons_and_ratings", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_finalized_ranks", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// Migrator handles database migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a new migrator with embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: GetMigrations(),
		tableName:  "schema_migrations",
	}
}

// EnsureMigrationTable creates the migration tracking table if it doesn't exist.
func (m *Migrator) EnsureMigrationTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`, m.tableName)

	if _, err := m.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// GetAppliedMigrations returns all applied migrations.
func (m *Migrator) GetAppliedMigrations(ctx context.Context) (map[int]time.Time, error) {
	query := fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName)

	rows, err := m.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = appliedAt
	}

	return applied, rows.Err()
}

// Migrate applies all pending migrations.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if _, isApplied := applied[mig.Version]; isApplied {
			continue
		}

		if mig.UpSQL == "" {
			return fmt.Errorf("%w: missing up SQL for migration %d", ErrMigrationFailed, mig.Version)
		}

		// Apply migration in transaction
		err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", mig.Version, err)
			}

			insertQuery := fmt.Sprintf(
				"INSERT INTO %s (version, name) VALUES ($1, $2)",
				m.tableName,
			)
			_, err := tx.Exec(ctx, insertQuery, mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
	}

	return nil
}
