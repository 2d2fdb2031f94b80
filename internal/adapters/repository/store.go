// Package repository holds the in-memory state of the service: the entity
// ranking and the entity/opportunity records.
package repository

import (
	"context"
	"time"

	"github.com/okian/crmscore/internal/domain/model"
)

// Entry represents a ranking row.
type Entry struct {
	Rank     int
	EntityID string
	Score    int
}

// RankStore orders entities by score.
type RankStore interface {
	// Upsert sets the score of an entity, replacing any previous score.
	// Returns false when the entity already had that score.
	Upsert(ctx context.Context, entityID string, score int) (bool, error)

	// Remove drops an entity from the ranking. Returns false if unknown.
	Remove(ctx context.Context, entityID string) bool

	// Rank returns the dense rank and score of an entity.
	// Returns ErrNotFound if the entity is unknown.
	Rank(ctx context.Context, entityID string) (Entry, error)

	// TopN returns the top-N entries ordered by score desc, then id asc.
	TopN(ctx context.Context, n int) ([]Entry, error)

	// Page returns up to limit entries starting at the zero-based position offset.
	Page(ctx context.Context, offset, limit int) ([]Entry, error)

	// Count returns the number of ranked entities.
	Count(ctx context.Context) int
}

// RecordStore keeps the entity and opportunity records.
//
// The *At variants take the time of the event behind the write and return
// model.ErrStale when a later write already applied to the same record.
type RecordStore interface {
	PutEntity(ctx context.Context, e model.Entity) (model.Entity, error)
	PutEntityAt(ctx context.Context, e model.Entity, at time.Time) (model.Entity, error)
	GetEntity(ctx context.Context, id string) (model.Entity, error)
	// DeleteEntity removes the entity and every opportunity linked to it,
	// returning the ids of the removed opportunities.
	DeleteEntity(ctx context.Context, id string) ([]string, error)
	DeleteEntityAt(ctx context.Context, id string, at time.Time) ([]string, error)
	ListEntities(ctx context.Context) []model.Entity

	PutOpportunity(ctx context.Context, o model.Opportunity) (model.Opportunity, error)
	PutOpportunityAt(ctx context.Context, o model.Opportunity, at time.Time) (model.Opportunity, error)
	GetOpportunity(ctx context.Context, id string) (model.Opportunity, error)
	DeleteOpportunity(ctx context.Context, id string) error
	DeleteOpportunityAt(ctx context.Context, id string, at time.Time) error
	ListOpportunities(ctx context.Context) []model.Opportunity
	// OpportunitiesFor lists the opportunities linked to an entity.
	OpportunitiesFor(ctx context.Context, entityID string) []model.Opportunity

	Counts(ctx context.Context) (entities, opportunities int)
}
