package api

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/okian/crmscore/internal/adapters/report"
	"github.com/okian/crmscore/internal/domain/summary"
)

// SummaryDependencies defines the aggregate reads.
type SummaryDependencies interface {
	Summary(ctx context.Context) (summary.Dashboard, error)
	WritePipelineReport(ctx context.Context, w io.Writer) error
}

// SummaryHandler serves the dashboard and the pipeline report.
type SummaryHandler struct {
	deps SummaryDependencies
}

// NewSummaryHandler creates a summary handler.
func NewSummaryHandler(deps SummaryDependencies) *SummaryHandler {
	return &SummaryHandler{deps: deps}
}

// HandleSummary handles GET /summary.
func (h *SummaryHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	const op = "api.summary"
	d, err := h.deps.Summary(r.Context())
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// HandlePipelineReport handles GET /reports/pipeline.xlsx. The workbook is
// buffered so a failure can still produce a JSON error.
func (h *SummaryHandler) HandlePipelineReport(w http.ResponseWriter, r *http.Request) {
	const op = "api.pipeline_report"
	var buf bytes.Buffer
	if err := h.deps.WritePipelineReport(r.Context(), &buf); err != nil {
		writeServiceError(w, op, err)
		return
	}
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="pipeline.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
