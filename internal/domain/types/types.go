// Package types contains read shapes shared by the HTTP layer and the app.
package types

import "github.com/okian/crmscore/internal/domain/model"

// Entry is one row of the entity leaderboard. Equal scores share a rank.
type Entry struct {
	Rank     int          `json:"rank"`
	EntityID string       `json:"entity_id"`
	Name     string       `json:"name,omitempty"`
	Status   model.Status `json:"status,omitempty"`
	Score    int          `json:"score"`
}

// Stats describes the running service.
type Stats struct {
	Entities        int   `json:"entities"`
	Opportunities   int   `json:"opportunities"`
	RankedEntities  int   `json:"ranked_entities"`
	QueueSize       int   `json:"queue_size"`
	QueueCapacity   int   `json:"queue_capacity"`
	DedupeEntries   int64 `json:"dedupe_entries"`
	WorkerCount     int   `json:"worker_count"`
	EventsProcessed int64 `json:"events_processed"`
	Running         bool  `json:"running"`
}
