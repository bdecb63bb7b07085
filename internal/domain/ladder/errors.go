package ladder

import "errors"

var (
	// ErrSeasonNotFound is returned when a season ID does not exist.
	ErrSeasonNotFound = errors.New("ladder: season not found")

	// ErrNoCurrentSeason is returned when no season window contains now.
	ErrNoCurrentSeason = errors.New("ladder: no current season")

	// ErrSeasonNotFinalized is returned when finalized results are requested
	// for a season whose ranks have not been snapshotted yet.
	ErrSeasonNotFinalized = errors.New("ladder: season not finalized")

	// ErrSeasonAlreadyFinalized is returned when finalization is attempted
	// on a season that has already been marked finalized.
	ErrSeasonAlreadyFinalized = errors.New("ladder: season already finalized")

	// ErrInvalidMatchmakingType is returned for unknown queue types.
	ErrInvalidMatchmakingType = errors.New("ladder: invalid matchmaking type")
)
