package api

import (
	"net/http"

	"github.com/okian/crmscore/internal/domain/model"
	"github.com/okian/crmscore/internal/domain/scoring"
	"github.com/okian/crmscore/internal/domain/valuation"
	"github.com/okian/crmscore/pkg/metrics"
)

// scoreRequest is the body of POST /score. Range checks belong to the
// scoring engine so they surface as invalid_argument.
type scoreRequest struct {
	Revenue   *int64 `json:"revenue"`
	Employees *int64 `json:"employees"`
	Status    string `json:"status" validate:"required"`
}

// valuationRequest is the body of POST /valuation.
type valuationRequest struct {
	Value       *int64 `json:"value" validate:"required"`
	Probability *int   `json:"probability" validate:"required"`
}

// CalculatorHandler exposes the engines without touching stored records.
type CalculatorHandler struct{}

// NewCalculatorHandler creates a calculator handler.
func NewCalculatorHandler() *CalculatorHandler {
	return &CalculatorHandler{}
}

// HandleScore handles POST /score and returns the per-band breakdown.
func (h *CalculatorHandler) HandleScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.score"
	var req scoreRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	status, err := model.ParseStatus(req.Status)
	if err != nil {
		metrics.RecordInvalidArgument("score")
		writeServiceError(w, op, err)
		return
	}
	res, err := scoring.ScoreEntity(model.Entity{
		Revenue:   req.Revenue,
		Employees: req.Employees,
		Status:    status,
	})
	if err != nil {
		metrics.RecordInvalidArgument("score")
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleValuation handles POST /valuation.
func (h *CalculatorHandler) HandleValuation(w http.ResponseWriter, r *http.Request) {
	const op = "api.valuation"
	var req valuationRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	v, err := valuation.Evaluate(model.Opportunity{Value: *req.Value, Probability: *req.Probability})
	if err != nil {
		metrics.RecordInvalidArgument("valuation")
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
