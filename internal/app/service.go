// Package service provides the core business service that implements
// the dependencies required by the HTTP API and the worker pool.
package service

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/crmscore/internal/adapters/dataset"
	eventqueue "github.com/okian/crmscore/internal/adapters/mq/queue"
	workerpool "github.com/okian/crmscore/internal/adapters/mq/worker"
	"github.com/okian/crmscore/internal/adapters/report"
	repository "github.com/okian/crmscore/internal/adapters/repository"
	"github.com/okian/crmscore/internal/domain/dedupe"
	"github.com/okian/crmscore/internal/domain/model"
	"github.com/okian/crmscore/internal/domain/scoring"
	"github.com/okian/crmscore/internal/domain/summary"
	"github.com/okian/crmscore/internal/domain/types"
	"github.com/okian/crmscore/internal/domain/valuation"
	"github.com/okian/crmscore/pkg/logger"
	"github.com/okian/crmscore/pkg/metrics"
)

// Service owns the CRM state: records, the score ranking, and the
// asynchronous ingestion pipeline.
type Service struct {
	mu sync.RWMutex
	// writeMu keeps records and ranking in step across concurrent writers.
	writeMu sync.Mutex

	records repository.RecordStore
	ranking repository.RankStore
	deduper dedupe.Deduper
	scorer  scoring.Scorer
	queue   *eventqueue.InMemoryQueue
	pool    *workerpool.Pool

	workerCount int
	queueSize   int
	dedupeSize  int
	now         func() time.Time

	started bool
	logger  logger.Logger
}

var _ workerpool.Sink = (*Service)(nil)

// New constructs a Service. Synchronous operations work immediately;
// Start is needed for event ingestion.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: runtime.NumCPU() * 2,
		queueSize:   10_000,
		dedupeSize:  100_000,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.scorer == nil {
		s.scorer = scoring.NewBandScorer()
	}
	if s.deduper == nil {
		s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	}
	s.records = repository.NewMemoryRecords(repository.WithClock(s.now))
	s.ranking = repository.NewTreapStore()
	return s
}

// Start creates the event queue and starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting crm service...")

	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.scorer, s, workerpool.WithDropHandler(s.forgetDropped))
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "crm service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop closes the queue and waits for the workers to drain it.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping crm service...")

	err := s.pool.Shutdown(ctx)
	s.started = false
	if err != nil {
		return fmt.Errorf("stop service: %w", err)
	}
	s.logger.Info(ctx, "crm service stopped")
	return nil
}

// forgetDropped lets a client resubmit an event the workers never applied.
func (s *Service) forgetDropped(ev model.Event) { //nolint:gocritic // hugeParam: events travel by value
	ctx := context.Background()
	s.Unrecord(ctx, ev.EventID)
	s.logger.Warn(ctx, "event dropped at shutdown, id released for retry",
		logger.String("eventID", ev.EventID),
		logger.String("kind", string(ev.Kind)),
	)
}

// SaveScoredEntity stores an entity whose score is already computed and
// moves it in the ranking. A non-zero at is the event time; the write is
// refused with model.ErrStale when a later event already touched the entity.
func (s *Service) SaveScoredEntity(ctx context.Context, e model.Entity, at time.Time) (model.Entity, error) { //nolint:gocritic // hugeParam: records travel by value
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	stored, err := s.records.PutEntityAt(ctx, e, at)
	if err != nil {
		return model.Entity{}, err
	}
	if _, err := s.ranking.Upsert(ctx, stored.ID, stored.Score); err != nil {
		return model.Entity{}, fmt.Errorf("rank entity %s: %w", stored.ID, err)
	}
	s.updateCounts(ctx)
	return stored, nil
}

// SaveValuedOpportunity stores an opportunity whose approval flag is already
// set. at follows the SaveScoredEntity rules.
func (s *Service) SaveValuedOpportunity(ctx context.Context, o model.Opportunity, at time.Time) (model.Opportunity, error) { //nolint:gocritic // hugeParam: records travel by value
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	stored, err := s.records.PutOpportunityAt(ctx, o, at)
	if err != nil {
		return model.Opportunity{}, err
	}
	s.updateCounts(ctx)
	return stored, nil
}

// UpsertEntity scores e and stores it. An empty ID is replaced by a new UUID.
func (s *Service) UpsertEntity(ctx context.Context, e model.Entity) (model.Entity, error) { //nolint:gocritic // hugeParam: records travel by value
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	start := time.Now()
	res, err := s.scorer.Score(ctx, scoring.InputFromEntity(e))
	metrics.RecordScoringLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		if model.IsInvalidArgument(err) {
			metrics.RecordInvalidArgument("score")
		}
		return model.Entity{}, err
	}
	e.Score = res.Score

	stored, err := s.SaveScoredEntity(ctx, e, time.Time{})
	if err != nil {
		return model.Entity{}, err
	}
	metrics.RecordEntityScored()
	return stored, nil
}

// UpsertOpportunity values o and stores it. An empty ID is replaced by a
// new UUID. The linked entity does not need to exist yet.
func (s *Service) UpsertOpportunity(ctx context.Context, o model.Opportunity) (model.Opportunity, error) { //nolint:gocritic // hugeParam: records travel by value
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	v, err := valuation.Evaluate(o)
	if err != nil {
		metrics.RecordInvalidArgument("valuation")
		return model.Opportunity{}, err
	}
	o.RequiresApproval = v.RequiresApproval

	stored, err := s.SaveValuedOpportunity(ctx, o, time.Time{})
	if err != nil {
		return model.Opportunity{}, err
	}
	metrics.RecordOpportunityValued(stored.RequiresApproval)
	return stored, nil
}

// GetEntity returns one entity.
func (s *Service) GetEntity(ctx context.Context, id string) (model.Entity, error) {
	return s.records.GetEntity(ctx, id)
}

// ListEntities returns every entity ordered by id.
func (s *Service) ListEntities(ctx context.Context) []model.Entity {
	return s.records.ListEntities(ctx)
}

// DeleteEntity removes an entity, its ranking entry and its opportunities.
func (s *Service) DeleteEntity(ctx context.Context, id string) error {
	return s.DeleteEntityAt(ctx, id, time.Time{})
}

// DeleteEntityAt is DeleteEntity for an event stamped at.
func (s *Service) DeleteEntityAt(ctx context.Context, id string, at time.Time) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	removed, err := s.records.DeleteEntityAt(ctx, id, at)
	if err != nil {
		return err
	}
	s.ranking.Remove(ctx, id)
	if len(removed) > 0 {
		s.logger.Debug(ctx, "cascaded opportunity delete",
			logger.String("entity_id", id),
			logger.Int("opportunities", len(removed)),
		)
	}
	s.updateCounts(ctx)
	return nil
}

// GetOpportunity returns one opportunity.
func (s *Service) GetOpportunity(ctx context.Context, id string) (model.Opportunity, error) {
	return s.records.GetOpportunity(ctx, id)
}

// ListOpportunities returns every opportunity ordered by id.
func (s *Service) ListOpportunities(ctx context.Context) []model.Opportunity {
	return s.records.ListOpportunities(ctx)
}

// OpportunitiesFor returns the opportunities linked to an entity.
func (s *Service) OpportunitiesFor(ctx context.Context, entityID string) []model.Opportunity {
	return s.records.OpportunitiesFor(ctx, entityID)
}

// DeleteOpportunity removes one opportunity.
func (s *Service) DeleteOpportunity(ctx context.Context, id string) error {
	return s.DeleteOpportunityAt(ctx, id, time.Time{})
}

// DeleteOpportunityAt is DeleteOpportunity for an event stamped at.
func (s *Service) DeleteOpportunityAt(ctx context.Context, id string, at time.Time) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.records.DeleteOpportunityAt(ctx, id, at); err != nil {
		return err
	}
	s.updateCounts(ctx)
	return nil
}

// TopN returns the n best-scored entities.
func (s *Service) TopN(ctx context.Context, n int) ([]types.Entry, error) {
	entries, err := s.ranking.TopN(ctx, n)
	if err != nil {
		return nil, err
	}
	out := make([]types.Entry, len(entries))
	for i, entry := range entries {
		out[i] = s.decorate(ctx, entry)
	}
	return out, nil
}

// Page returns up to limit leaderboard entries after skipping offset.
func (s *Service) Page(ctx context.Context, offset, limit int) ([]types.Entry, error) {
	entries, err := s.ranking.Page(ctx, offset, limit)
	if err != nil {
		return nil, err
	}
	out := make([]types.Entry, len(entries))
	for i, entry := range entries {
		out[i] = s.decorate(ctx, entry)
	}
	return out, nil
}

// Rank returns the rank and score of one entity.
func (s *Service) Rank(ctx context.Context, entityID string) (types.Entry, error) {
	entry, err := s.ranking.Rank(ctx, entityID)
	if err != nil {
		return types.Entry{}, err
	}
	return s.decorate(ctx, entry), nil
}

// decorate adds the entity name and status to a ranking row. A concurrent
// delete may have removed the record; the row is returned bare then.
func (s *Service) decorate(ctx context.Context, entry repository.Entry) types.Entry {
	out := types.Entry{Rank: entry.Rank, EntityID: entry.EntityID, Score: entry.Score}
	if e, err := s.records.GetEntity(ctx, entry.EntityID); err == nil {
		out.Name = e.Name
		out.Status = e.Status
	}
	return out
}

// Summary aggregates every stored record.
func (s *Service) Summary(ctx context.Context) (summary.Dashboard, error) {
	d, err := summary.Summarize(s.records.ListEntities(ctx), s.records.ListOpportunities(ctx))
	if err != nil {
		return summary.Dashboard{}, err
	}
	metrics.UpdateWeightedPipelineValue(d.TotalWeightedValue)
	return d, nil
}

// WritePipelineReport writes the XLSX pipeline report to w.
func (s *Service) WritePipelineReport(ctx context.Context, w io.Writer) error {
	return report.WritePipeline(w, s.records.ListEntities(ctx), s.records.ListOpportunities(ctx))
}

// LoadDataset upserts every record of ds, entities first.
func (s *Service) LoadDataset(ctx context.Context, ds dataset.Dataset) error {
	for _, e := range ds.Entities {
		if _, err := s.UpsertEntity(ctx, e); err != nil {
			return fmt.Errorf("load entity %s: %w", e.ID, err)
		}
	}
	for _, o := range ds.Opportunities {
		if _, err := s.UpsertOpportunity(ctx, o); err != nil {
			return fmt.Errorf("load opportunity %s: %w", o.ID, err)
		}
	}
	s.logger.Info(ctx, "dataset loaded",
		logger.Int("entities", len(ds.Entities)),
		logger.Int("opportunities", len(ds.Opportunities)),
	)
	return nil
}

// SeenAndRecord atomically checks if an event id was seen and records it if not.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	seen := s.deduper.SeenAndRecord(ctx, id)
	if seen {
		metrics.RecordEventDuplicate()
	}
	return seen
}

// Unrecord removes an event ID from the seen list, allowing it to be retried.
func (s *Service) Unrecord(ctx context.Context, id string) {
	s.deduper.Unrecord(ctx, id)
}

// Submit validates ev, drops it when its id was already seen and enqueues
// it otherwise. duplicate is true for dropped events. When the queue
// rejects the event the id is forgotten so the client can retry.
func (s *Service) Submit(ctx context.Context, ev model.Event) (duplicate bool, err error) { //nolint:gocritic // hugeParam: events travel by value
	if err := validatePayload(ev); err != nil {
		metrics.RecordInvalidArgument(string(ev.Kind))
		return false, err
	}

	s.mu.RLock()
	q := s.queue
	started := s.started
	s.mu.RUnlock()
	if !started {
		return false, ErrNotStarted
	}

	if s.SeenAndRecord(ctx, ev.EventID) {
		s.logger.Debug(ctx, "duplicate event detected, skipping", logger.String("eventID", ev.EventID))
		return true, nil
	}
	if err := q.Enqueue(ctx, ev); err != nil {
		s.Unrecord(ctx, ev.EventID)
		return false, err
	}
	return false, nil
}

// validatePayload rejects events the workers would fail on.
func validatePayload(ev model.Event) error { //nolint:gocritic // hugeParam: events travel by value
	const op = "service.submit"
	if err := ev.Validate(); err != nil {
		return err
	}
	switch ev.Kind {
	case model.EventEntityUpsert:
		if ev.Entity.ID == "" {
			return model.InvalidArgument(op, "entity id is required")
		}
		if _, err := scoring.ScoreEntity(*ev.Entity); err != nil {
			return err
		}
	case model.EventOpportunityUpsert:
		if ev.Opportunity.ID == "" {
			return model.InvalidArgument(op, "opportunity id is required")
		}
		if _, err := valuation.Evaluate(*ev.Opportunity); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns service statistics for monitoring.
func (s *Service) Stats(ctx context.Context) types.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entities, opps := s.records.Counts(ctx)
	st := types.Stats{
		Entities:       entities,
		Opportunities:  opps,
		RankedEntities: s.ranking.Count(ctx),
		QueueCapacity:  s.queueSize,
		DedupeEntries:  s.deduper.Size(),
		WorkerCount:    s.workerCount,
		Running:        s.started,
	}
	if s.queue != nil {
		st.QueueSize = s.queue.Len()
	}
	if s.pool != nil {
		st.EventsProcessed = s.pool.Processed()
	}
	return st
}

// DedupeSize returns the current number of entries in the deduper.
func (s *Service) DedupeSize() int64 {
	return s.deduper.Size()
}

func (s *Service) updateCounts(ctx context.Context) {
	entities, opps := s.records.Counts(ctx)
	metrics.UpdateRecordCounts(entities, opps)
}
