package api

import (
	"context"
	"net/http"

	"github.com/okian/crmscore/internal/domain/model"
	"github.com/okian/crmscore/internal/domain/valuation"
)

// OpportunityDependencies defines the opportunity operations used by the handlers.
type OpportunityDependencies interface {
	UpsertOpportunity(ctx context.Context, o model.Opportunity) (model.Opportunity, error)
	GetOpportunity(ctx context.Context, id string) (model.Opportunity, error)
	ListOpportunities(ctx context.Context) []model.Opportunity
	DeleteOpportunity(ctx context.Context, id string) error
}

// opportunityRequest is the body of POST /opportunities and the
// opportunity payload of POST /events.
type opportunityRequest struct {
	ID          string `json:"id" validate:"omitempty,max=128"`
	EntityID    string `json:"entity_id" validate:"max=128"`
	Title       string `json:"title" validate:"required,max=256"`
	Value       *int64 `json:"value" validate:"required"`
	Probability *int   `json:"probability" validate:"required"`
	Stage       string `json:"stage" validate:"max=64"`
}

func (o *opportunityRequest) toModel() model.Opportunity {
	return model.Opportunity{
		ID:          o.ID,
		EntityID:    o.EntityID,
		Title:       o.Title,
		Value:       *o.Value,
		Probability: *o.Probability,
		Stage:       o.Stage,
	}
}

// opportunityResponse adds the derived weighted value to a stored record.
type opportunityResponse struct {
	model.Opportunity
	WeightedValue int64 `json:"weighted_value"`
}

func newOpportunityResponse(o model.Opportunity) opportunityResponse { //nolint:gocritic // hugeParam: records travel by value
	// Stored records were validated on the way in.
	weighted, _ := valuation.WeightedValue(o.Value, o.Probability)
	return opportunityResponse{Opportunity: o, WeightedValue: weighted}
}

// OpportunitiesHandler handles /opportunities requests.
type OpportunitiesHandler struct {
	deps OpportunityDependencies
}

// NewOpportunitiesHandler creates an opportunities handler.
func NewOpportunitiesHandler(deps OpportunityDependencies) *OpportunitiesHandler {
	return &OpportunitiesHandler{deps: deps}
}

// HandleList handles GET /opportunities.
func (h *OpportunitiesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	opps := h.deps.ListOpportunities(r.Context())
	out := make([]opportunityResponse, len(opps))
	for i, o := range opps {
		out[i] = newOpportunityResponse(o)
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleUpsert handles POST /opportunities.
func (h *OpportunitiesHandler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	const op = "api.upsert_opportunity"
	var req opportunityRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	o, err := h.deps.UpsertOpportunity(r.Context(), req.toModel())
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, newOpportunityResponse(o))
}

// HandleGet handles GET /opportunities/{id}.
func (h *OpportunitiesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_opportunity"
	o, err := h.deps.GetOpportunity(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, newOpportunityResponse(o))
}

// HandleDelete handles DELETE /opportunities/{id}.
func (h *OpportunitiesHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_opportunity"
	if err := h.deps.DeleteOpportunity(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
