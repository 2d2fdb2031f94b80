package api

import (
	"context"
	"net/http"

	"github.com/okian/crmscore/internal/domain/model"
)

// EntityDependencies defines the entity operations used by the handlers.
type EntityDependencies interface {
	UpsertEntity(ctx context.Context, e model.Entity) (model.Entity, error)
	GetEntity(ctx context.Context, id string) (model.Entity, error)
	ListEntities(ctx context.Context) []model.Entity
	DeleteEntity(ctx context.Context, id string) error
}

// entityRequest is the body of POST /entities and the entity payload of
// POST /events.
type entityRequest struct {
	ID        string `json:"id" validate:"omitempty,max=128"`
	Name      string `json:"name" validate:"required,max=256"`
	Revenue   *int64 `json:"revenue"`
	Employees *int64 `json:"employees"`
	Status    string `json:"status" validate:"required"`
}

func (e *entityRequest) toModel() (model.Entity, error) {
	status, err := model.ParseStatus(e.Status)
	if err != nil {
		return model.Entity{}, err
	}
	return model.Entity{
		ID:        e.ID,
		Name:      e.Name,
		Revenue:   e.Revenue,
		Employees: e.Employees,
		Status:    status,
	}, nil
}

// EntitiesHandler handles /entities requests.
type EntitiesHandler struct {
	deps EntityDependencies
}

// NewEntitiesHandler creates an entities handler.
func NewEntitiesHandler(deps EntityDependencies) *EntitiesHandler {
	return &EntitiesHandler{deps: deps}
}

// HandleList handles GET /entities.
func (h *EntitiesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.ListEntities(r.Context()))
}

// HandleUpsert handles POST /entities. The stored entity, with its score,
// is returned.
func (h *EntitiesHandler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	const op = "api.upsert_entity"
	var req entityRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	in, err := req.toModel()
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	e, err := h.deps.UpsertEntity(r.Context(), in)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// HandleGet handles GET /entities/{id}.
func (h *EntitiesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_entity"
	e, err := h.deps.GetEntity(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// HandleDelete handles DELETE /entities/{id}. Linked opportunities go too.
func (h *EntitiesHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_entity"
	if err := h.deps.DeleteEntity(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
