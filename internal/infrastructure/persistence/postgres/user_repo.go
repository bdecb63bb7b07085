package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/ShieldBattery/ShieldBattery-sub013/internal/domain/user"
	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// UserRepository implements user.Repository for PostgreSQL.
type UserRepository struct {
	conn *Connection
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(conn *Connection) *UserRepository {
	return &UserRepository{conn: conn}
}

// FindUsersByIDs returns identities for the given IDs. Unknown IDs are
// simply absent from the result.
func (r *UserRepository) FindUsersByIDs(ctx context.Context, ids []uuid.UUID) ([]*user.Identity, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.conn.Query(ctx, `
		SELECT id, name FROM users WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to find users by ids: %w", err)
	}
	defer rows.Close()

	var users []*user.Identity
	for rows.Next() {
		var u user.Identity
		if err := rows.Scan(&u.ID, &u.Name); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &u)
	}

	return users, rows.Err()
}

// escapeLike escapes LIKE metacharacters so user-supplied search text
// matches literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// Ensure interfaces are implemented
var _ user.Repository = (*UserRepository)(nil)
