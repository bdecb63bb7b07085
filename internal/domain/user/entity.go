// Package user contains the minimal identity model the rankings engine
// needs: resolving user IDs to display names for ladder rows.
package user

import (
	"context"

	"github.com/google/uuid"
)

// Identity is the public identity of a user as shown on the ladder.
type Identity struct {
	ID   uuid.UUID
	Name string
}

// Repository looks up user identities. Missing IDs are simply absent from
// the result, not an error.
type Repository interface {
	FindUsersByIDs(ctx context.Context, ids []uuid.UUID) ([]*Identity, error)
}
