package api

import (
	"context"
	"net/http"
	"time"

	"github.com/okian/crmscore/internal/domain/model"
)

// EventDependencies defines the interface for event processing dependencies.
type EventDependencies interface {
	// Submit validates, deduplicates and enqueues an event. duplicate is
	// true when the event id was already seen.
	Submit(ctx context.Context, ev model.Event) (duplicate bool, err error)
}

// eventRequest mirrors the OpenAPI schema for POST /events.
type eventRequest struct {
	EventID     string              `json:"event_id" validate:"required,max=128"`
	Kind        string              `json:"kind" validate:"required"`
	Entity      *entityRequest      `json:"entity"`
	Opportunity *opportunityRequest `json:"opportunity"`
	TargetID    string              `json:"target_id" validate:"max=128"`
	TS          string              `json:"ts" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
}

func (e *eventRequest) toModel() (model.Event, error) {
	ts, _ := time.Parse(time.RFC3339, e.TS) // checked by the datetime rule
	ev := model.Event{
		EventID:  e.EventID,
		Kind:     model.EventKind(e.Kind),
		TargetID: e.TargetID,
		TS:       ts,
	}
	if e.Entity != nil {
		ent, err := e.Entity.toModel()
		if err != nil {
			return model.Event{}, err
		}
		ev.Entity = &ent
	}
	if e.Opportunity != nil {
		opp := e.Opportunity.toModel()
		ev.Opportunity = &opp
	}
	return ev, nil
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// EventsHandler handles event requests.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// HandlePostEvent handles POST /events requests. Accepted events are
// applied asynchronously by the worker pool.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"
	var req eventRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	ev, err := req.toModel()
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	duplicate, err := h.deps.Submit(r.Context(), ev)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	if duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", Duplicate: false})
}
