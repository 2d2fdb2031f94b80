package model

import "time"

// EventKind selects what an ingested event does.
type EventKind string

// Supported event kinds.
const (
	EventEntityUpsert      EventKind = "entity.upsert"
	EventEntityDelete      EventKind = "entity.delete"
	EventOpportunityUpsert EventKind = "opportunity.upsert"
	EventOpportunityDelete EventKind = "opportunity.delete"
)

// Valid reports whether k is a supported kind.
func (k EventKind) Valid() bool {
	switch k {
	case EventEntityUpsert, EventEntityDelete, EventOpportunityUpsert, EventOpportunityDelete:
		return true
	}
	return false
}

// Event is a change submitted through the asynchronous ingestion path.
// Exactly one of Entity, Opportunity or TargetID is meaningful for a kind:
// upserts carry the record, deletes carry TargetID.
type Event struct {
	EventID     string       // idempotency key
	Kind        EventKind    // what to do
	Entity      *Entity      // entity.upsert payload
	Opportunity *Opportunity // opportunity.upsert payload
	TargetID    string       // id removed by delete kinds
	TS          time.Time    // client timestamp
}

// Validate checks that the payload matches the kind.
func (e Event) Validate() error {
	const op = "model.event"
	if e.EventID == "" {
		return InvalidArgument(op, "event_id is required")
	}
	switch e.Kind {
	case EventEntityUpsert:
		if e.Entity == nil {
			return InvalidArgument(op, "entity payload is required for %s", e.Kind)
		}
	case EventOpportunityUpsert:
		if e.Opportunity == nil {
			return InvalidArgument(op, "opportunity payload is required for %s", e.Kind)
		}
	case EventEntityDelete, EventOpportunityDelete:
		if e.TargetID == "" {
			return InvalidArgument(op, "target_id is required for %s", e.Kind)
		}
	default:
		return InvalidArgument(op, "unknown event kind %q", e.Kind)
	}
	return nil
}
