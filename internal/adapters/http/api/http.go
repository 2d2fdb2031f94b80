// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/crmscore/internal/adapters/mq/queue"
	"github.com/okian/crmscore/internal/adapters/repository"
	"github.com/okian/crmscore/internal/domain/model"
	"github.com/okian/crmscore/internal/domain/types"
)

const defaultMaxLeaderboardLimit = 100

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	EventDependencies
	EntityDependencies
	OpportunityDependencies
	LeaderboardDependencies
	RankDependencies
	SummaryDependencies
	StatsProvider
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	calculatorHandler  *CalculatorHandler
	entitiesHandler    *EntitiesHandler
	opportunityHandler *OpportunitiesHandler
	eventsHandler      *EventsHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	summaryHandler     *SummaryHandler
}

// ServerOption configures a Server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	maxLimit int
}

// WithMaxLeaderboardLimit caps GET /leaderboard?limit.
func WithMaxLeaderboardLimit(n int) ServerOption {
	return func(o *serverOptions) {
		if n > 0 {
			o.maxLimit = n
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...ServerOption) *Server {
	o := serverOptions{maxLimit: defaultMaxLeaderboardLimit}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(deps),
		calculatorHandler:  NewCalculatorHandler(),
		entitiesHandler:    NewEntitiesHandler(deps),
		opportunityHandler: NewOpportunitiesHandler(deps),
		eventsHandler:      NewEventsHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, o.maxLimit),
		rankHandler:        NewRankHandler(deps),
		summaryHandler:     NewSummaryHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /score", MetricsMiddleware(s.calculatorHandler.HandleScore, "score"))
	mux.HandleFunc("POST /valuation", MetricsMiddleware(s.calculatorHandler.HandleValuation, "valuation"))

	mux.HandleFunc("GET /entities", MetricsMiddleware(s.entitiesHandler.HandleList, "entities"))
	mux.HandleFunc("POST /entities", MetricsMiddleware(s.entitiesHandler.HandleUpsert, "entities"))
	mux.HandleFunc("GET /entities/{id}", MetricsMiddleware(s.entitiesHandler.HandleGet, "entity"))
	mux.HandleFunc("DELETE /entities/{id}", MetricsMiddleware(s.entitiesHandler.HandleDelete, "entity"))

	mux.HandleFunc("GET /opportunities", MetricsMiddleware(s.opportunityHandler.HandleList, "opportunities"))
	mux.HandleFunc("POST /opportunities", MetricsMiddleware(s.opportunityHandler.HandleUpsert, "opportunities"))
	mux.HandleFunc("GET /opportunities/{id}", MetricsMiddleware(s.opportunityHandler.HandleGet, "opportunity"))
	mux.HandleFunc("DELETE /opportunities/{id}", MetricsMiddleware(s.opportunityHandler.HandleDelete, "opportunity"))

	mux.HandleFunc("POST /events", MetricsMiddleware(s.eventsHandler.HandlePostEvent, "events"))
	mux.HandleFunc("GET /leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("GET /rank/{id}", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
	mux.HandleFunc("GET /summary", MetricsMiddleware(s.summaryHandler.HandleSummary, "summary"))
	mux.HandleFunc("GET /reports/pipeline.xlsx", MetricsMiddleware(s.summaryHandler.HandlePipelineReport, "report"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError translates errors coming back from the service layer.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case model.IsInvalidArgument(err):
		writeError(w, http.StatusBadRequest, "invalid_argument", err)
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, repository.ErrInvalidLimit), errors.Is(err, repository.ErrInvalidOffset),
		errors.Is(err, repository.ErrMissingIdentifier):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, queue.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
	case errors.Is(err, queue.ErrQueueClosed):
		writeError(w, http.StatusServiceUnavailable, "unavailable", Wrap(op, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}
