// Package shared contains common domain types used across the rankings
// engine: domain events and the publish/subscribe contracts.
package shared

import "time"

// EventType identifies a kind of domain event.
type EventType string

// Domain event types emitted by the rankings engine. Downstream consumers
// (client notifications, activity feeds in the API layer) subscribe to
// these; the engine itself only publishes.
const (
	// EventRankingsUpdated fires after an incremental rank update batch has
	// been applied to the rankings cache.
	EventRankingsUpdated EventType = "rankings.updated"

	// EventRankingsRebuilt fires after a full cache rebuild completes.
	EventRankingsRebuilt EventType = "rankings.rebuilt"

	// EventSeasonFinalized fires once a season's final ranks have been
	// written permanently and the season marked finalized.
	EventSeasonFinalized EventType = "season.finalized"
)

// Event is implemented by every domain event the engine publishes.
type Event interface {
	EventType() EventType

	// OccurredAt returns when the event occurred, in UTC.
	OccurredAt() time.Time

	// AggregateID identifies the aggregate that produced the event, e.g.
	// a matchmaking type string for rankings events.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]any
}

// BaseEvent carries the fields shared by all events. Concrete events embed
// it and add their own payload fields.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
}

func (e BaseEvent) EventType() EventType  { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) AggregateID() string   { return e.AggregateId }

// NewBaseEvent stamps a new event with the current UTC time.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT CONTRACTS
// ══════════════════════════════════════════════════════════════════════════════

// EventHandler processes a single event. A non-nil error is logged by the
// bus but does not stop delivery to other handlers.
type EventHandler func(event Event) error

// EventPublisher is the side the engine's write paths depend on.
type EventPublisher interface {
	Publish(event Event) error
}

// EventSubscriber is the side consumers depend on.
type EventSubscriber interface {
	// Subscribe registers a handler for one event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler that sees every event.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// ══════════════════════════════════════════════════════════════════════════════
// RANKINGS EVENTS
// ══════════════════════════════════════════════════════════════════════════════

// RankingsUpdatedEvent is published after an incremental update batch.
type RankingsUpdatedEvent struct {
	BaseEvent
	MatchmakingType string `json:"matchmaking_type"`
	SeasonID        int64  `json:"season_id"`
	UsersChanged    int    `json:"users_changed"`
}

func (e RankingsUpdatedEvent) Payload() map[string]any {
	return map[string]any{
		"matchmaking_type": e.MatchmakingType,
		"season_id":        e.SeasonID,
		"users_changed":    e.UsersChanged,
	}
}

// NewRankingsUpdatedEvent creates a new RankingsUpdatedEvent.
func NewRankingsUpdatedEvent(matchmakingType string, seasonID int64, usersChanged int) RankingsUpdatedEvent {
	return RankingsUpdatedEvent{
		BaseEvent:       NewBaseEvent(EventRankingsUpdated, matchmakingType),
		MatchmakingType: matchmakingType,
		SeasonID:        seasonID,
		UsersChanged:    usersChanged,
	}
}

// RankingsRebuiltEvent is published after a full cache rebuild.
type RankingsRebuiltEvent struct {
	BaseEvent
	MatchmakingType string `json:"matchmaking_type"`
	SeasonID        int64  `json:"season_id"`
	TotalUsers      int    `json:"total_users"`
}

func (e RankingsRebuiltEvent) Payload() map[string]any {
	return map[string]any{
		"matchmaking_type": e.MatchmakingType,
		"season_id":        e.SeasonID,
		"total_users":      e.TotalUsers,
	}
}

// NewRankingsRebuiltEvent creates a new RankingsRebuiltEvent.
func NewRankingsRebuiltEvent(matchmakingType string, seasonID int64, totalUsers int) RankingsRebuiltEvent {
	return RankingsRebuiltEvent{
		BaseEvent:       NewBaseEvent(EventRankingsRebuilt, matchmakingType),
		MatchmakingType: matchmakingType,
		SeasonID:        seasonID,
		TotalUsers:      totalUsers,
	}
}

// SeasonFinalizedEvent is published once per season, after finalization.
type SeasonFinalizedEvent struct {
	BaseEvent
	SeasonID    int64 `json:"season_id"`
	RanksFrozen int   `json:"ranks_frozen"`
}

func (e SeasonFinalizedEvent) Payload() map[string]any {
	return map[string]any{
		"season_id":    e.SeasonID,
		"ranks_frozen": e.RanksFrozen,
	}
}

// NewSeasonFinalizedEvent creates a new SeasonFinalizedEvent.
func NewSeasonFinalizedEvent(seasonID int64, ranksFrozen int) SeasonFinalizedEvent {
	return SeasonFinalizedEvent{
		BaseEvent:   NewBaseEvent(EventSeasonFinalized, "season"),
		SeasonID:    seasonID,
		RanksFrozen: ranksFrozen,
	}
}
