package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/crmscore/internal/domain/model"
)

// MemoryRecords implements RecordStore with maps guarded by a RWMutex.
// Records are copied in and out; callers never share memory with the store.
//
// Writes made through the *At methods carry an event time. The store keeps
// the latest such time per record, deletes included, and rejects older writes
// with model.ErrStale. A zero time always applies and leaves the version as is.
type MemoryRecords struct {
	mu            sync.RWMutex
	entities      map[string]model.Entity
	opportunities map[string]model.Opportunity
	versions      map[string]time.Time
	now           func() time.Time
}

var _ RecordStore = (*MemoryRecords)(nil)

// NewMemoryRecords creates an empty record store.
func NewMemoryRecords(opts ...RecordsOption) *MemoryRecords {
	r := &MemoryRecords{
		entities:      make(map[string]model.Entity),
		opportunities: make(map[string]model.Opportunity),
		versions:      make(map[string]time.Time),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func copyInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneEntity(e model.Entity) model.Entity {
	e.Revenue = copyInt64(e.Revenue)
	e.Employees = copyInt64(e.Employees)
	return e
}

func entityKey(id string) string      { return "entity/" + id }
func opportunityKey(id string) string { return "opportunity/" + id }

// admit records at as the version of key unless a later write already
// applied. Callers hold mu.
func (r *MemoryRecords) admit(key string, at time.Time) bool {
	if at.IsZero() {
		return true
	}
	if last, ok := r.versions[key]; ok && at.Before(last) {
		return false
	}
	r.versions[key] = at
	return true
}

func staleError(kind, id string, at time.Time) error {
	return fmt.Errorf("%s %q at %s: %w", kind, id, at.UTC().Format(time.RFC3339Nano), model.ErrStale)
}

// PutEntity stores e, replacing any entity with the same id.
func (r *MemoryRecords) PutEntity(ctx context.Context, e model.Entity) (model.Entity, error) {
	return r.PutEntityAt(ctx, e, time.Time{})
}

// PutEntityAt stores e unless a write newer than at was already applied to
// the same id.
func (r *MemoryRecords) PutEntityAt(_ context.Context, e model.Entity, at time.Time) (model.Entity, error) {
	if e.ID == "" {
		return model.Entity{}, fmt.Errorf("entity: %w", ErrMissingIdentifier)
	}
	e = cloneEntity(e)
	e.UpdatedAt = r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.admit(entityKey(e.ID), at) {
		return model.Entity{}, staleError("entity", e.ID, at)
	}
	r.entities[e.ID] = e
	return cloneEntity(e), nil
}

// GetEntity returns the entity with the given id.
func (r *MemoryRecords) GetEntity(_ context.Context, id string) (model.Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[id]
	if !ok {
		return model.Entity{}, fmt.Errorf("entity %q: %w", id, ErrNotFound)
	}
	return cloneEntity(e), nil
}

// DeleteEntity removes an entity and cascades to its opportunities.
func (r *MemoryRecords) DeleteEntity(ctx context.Context, id string) ([]string, error) {
	return r.DeleteEntityAt(ctx, id, time.Time{})
}

// DeleteEntityAt removes an entity unless a newer write was applied to it.
// The version is kept even when the entity is missing, so an older upsert
// arriving later cannot bring it back. Opportunities written after at survive
// the cascade.
func (r *MemoryRecords) DeleteEntityAt(_ context.Context, id string, at time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.admit(entityKey(id), at) {
		return nil, staleError("entity", id, at)
	}
	if _, ok := r.entities[id]; !ok {
		return nil, fmt.Errorf("entity %q: %w", id, ErrNotFound)
	}
	delete(r.entities, id)

	removed := []string{}
	for oid, o := range r.opportunities {
		if o.EntityID != id {
			continue
		}
		if !r.admit(opportunityKey(oid), at) {
			continue
		}
		delete(r.opportunities, oid)
		removed = append(removed, oid)
	}
	sort.Strings(removed)
	return removed, nil
}

// ListEntities returns every entity ordered by id.
func (r *MemoryRecords) ListEntities(_ context.Context) []model.Entity {
	r.mu.RLock()
	out := make([]model.Entity, 0, len(r.entities))
	for _, e := range r.entities {
		out = append(out, cloneEntity(e))
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PutOpportunity stores o, replacing any opportunity with the same id.
// The linked entity does not need to exist.
func (r *MemoryRecords) PutOpportunity(ctx context.Context, o model.Opportunity) (model.Opportunity, error) {
	return r.PutOpportunityAt(ctx, o, time.Time{})
}

// PutOpportunityAt stores o unless a write newer than at was already applied
// to the same id.
func (r *MemoryRecords) PutOpportunityAt(_ context.Context, o model.Opportunity, at time.Time) (model.Opportunity, error) {
	if o.ID == "" {
		return model.Opportunity{}, fmt.Errorf("opportunity: %w", ErrMissingIdentifier)
	}
	o.UpdatedAt = r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.admit(opportunityKey(o.ID), at) {
		return model.Opportunity{}, staleError("opportunity", o.ID, at)
	}
	r.opportunities[o.ID] = o
	return o, nil
}

// GetOpportunity returns the opportunity with the given id.
func (r *MemoryRecords) GetOpportunity(_ context.Context, id string) (model.Opportunity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.opportunities[id]
	if !ok {
		return model.Opportunity{}, fmt.Errorf("opportunity %q: %w", id, ErrNotFound)
	}
	return o, nil
}

// DeleteOpportunity removes the opportunity with the given id.
func (r *MemoryRecords) DeleteOpportunity(ctx context.Context, id string) error {
	return r.DeleteOpportunityAt(ctx, id, time.Time{})
}

// DeleteOpportunityAt removes an opportunity unless a newer write was applied
// to it. Like DeleteEntityAt it keeps the version of a missing record.
func (r *MemoryRecords) DeleteOpportunityAt(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.admit(opportunityKey(id), at) {
		return staleError("opportunity", id, at)
	}
	if _, ok := r.opportunities[id]; !ok {
		return fmt.Errorf("opportunity %q: %w", id, ErrNotFound)
	}
	delete(r.opportunities, id)
	return nil
}

// ListOpportunities returns every opportunity ordered by id.
func (r *MemoryRecords) ListOpportunities(_ context.Context) []model.Opportunity {
	return r.filterOpportunities(func(model.Opportunity) bool { return true })
}

// OpportunitiesFor returns the opportunities linked to entityID ordered by id.
func (r *MemoryRecords) OpportunitiesFor(_ context.Context, entityID string) []model.Opportunity {
	return r.filterOpportunities(func(o model.Opportunity) bool { return o.EntityID == entityID })
}

func (r *MemoryRecords) filterOpportunities(keep func(model.Opportunity) bool) []model.Opportunity {
	r.mu.RLock()
	out := make([]model.Opportunity, 0, len(r.opportunities))
	for _, o := range r.opportunities {
		if keep(o) {
			out = append(out, o)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Counts returns the number of stored entities and opportunities.
func (r *MemoryRecords) Counts(_ context.Context) (entities, opportunities int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities), len(r.opportunities)
}
