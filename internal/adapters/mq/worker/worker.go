// Package worker applies queued events through the scoring and valuation
// engines and hands the results to a Sink.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/crmscore/internal/domain/model"
	"github.com/okian/crmscore/internal/domain/scoring"
	"github.com/okian/crmscore/internal/domain/valuation"
	"github.com/okian/crmscore/pkg/logger"
	"github.com/okian/crmscore/pkg/metrics"
)

const defaultWorkerMultiplier = 2 // workers per CPU when no count is given

// Event is what workers read off the queue.
type Event = model.Event

// Sink receives the outcome of processed events. Every write carries the
// event timestamp; a Sink returns an error wrapping model.ErrStale when a
// later event already changed the same record.
type Sink interface {
	// SaveScoredEntity stores an entity whose Score is already computed.
	SaveScoredEntity(ctx context.Context, e model.Entity, at time.Time) (model.Entity, error)
	// SaveValuedOpportunity stores an opportunity whose RequiresApproval is already set.
	SaveValuedOpportunity(ctx context.Context, o model.Opportunity, at time.Time) (model.Opportunity, error)
	DeleteEntityAt(ctx context.Context, id string, at time.Time) error
	DeleteOpportunityAt(ctx context.Context, id string, at time.Time) error
}

// Source is where workers receive events from.
type Source interface {
	Dequeue() <-chan Event
}

// Worker processes events until its source closes or ctx ends.
type Worker interface {
	Run(ctx context.Context)
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	source      Source
	scorer      scoring.Scorer
	sink        Sink
	name        string
	logger      logger.Logger
	onProcessed func(Event)
	onDropped   func(Event)
}

// NewInMemoryWorker creates a worker.
func NewInMemoryWorker(source Source, scorer scoring.Scorer, sink Sink, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		source: source,
		scorer: scorer,
		sink:   sink,
		name:   "worker",
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run reads events until the source channel is closed and drained or ctx
// is cancelled.
func (w *InMemoryWorker) Run(ctx context.Context) {
	events := w.source.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			if err := w.Process(ctx, ev); err != nil {
				if ctx.Err() != nil && w.onDropped != nil {
					w.onDropped(ev)
					continue
				}
				w.logger.Error(ctx, "event not applied",
					logger.String("event_id", ev.EventID),
					logger.String("kind", string(ev.Kind)),
					logger.Error(err),
				)
				continue
			}
			if w.onProcessed != nil {
				w.onProcessed(ev)
			}
		}
	}
}

// Process applies a single event.
func (w *InMemoryWorker) Process(ctx context.Context, ev Event) error { //nolint:gocritic // hugeParam: events travel by value
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	err := w.apply(ctx, ev)
	if errors.Is(err, model.ErrStale) {
		metrics.RecordEventStale()
		w.logger.Debug(ctx, "newer event already applied, skipping",
			logger.String("event_id", ev.EventID),
			logger.String("kind", string(ev.Kind)),
		)
		return nil
	}
	if err != nil {
		metrics.RecordWorkerError()
		kind := "apply_error"
		if errors.Is(err, model.ErrInvalidArgument) {
			kind = "invalid_argument"
			metrics.RecordInvalidArgument(string(ev.Kind))
		}
		metrics.RecordErrorByComponent("worker", kind)
		return err
	}
	metrics.RecordEventProcessed()
	return nil
}

func (w *InMemoryWorker) apply(ctx context.Context, ev Event) error { //nolint:gocritic // hugeParam: events travel by value
	if err := ev.Validate(); err != nil {
		return err
	}

	switch ev.Kind {
	case model.EventEntityUpsert:
		e := *ev.Entity
		scoreStart := time.Now()
		res, err := w.scorer.Score(ctx, scoring.InputFromEntity(e))
		metrics.RecordScoringLatency(float64(time.Since(scoreStart).Microseconds()) / 1000)
		if err != nil {
			return fmt.Errorf("score entity %s: %w", e.ID, err)
		}
		e.Score = res.Score
		if _, err := w.sink.SaveScoredEntity(ctx, e, ev.TS); err != nil {
			return fmt.Errorf("save entity %s: %w", e.ID, err)
		}
		metrics.RecordEntityScored()

	case model.EventOpportunityUpsert:
		o := *ev.Opportunity
		v, err := valuation.Evaluate(o)
		if err != nil {
			return fmt.Errorf("value opportunity %s: %w", o.ID, err)
		}
		o.RequiresApproval = v.RequiresApproval
		if _, err := w.sink.SaveValuedOpportunity(ctx, o, ev.TS); err != nil {
			return fmt.Errorf("save opportunity %s: %w", o.ID, err)
		}
		metrics.RecordOpportunityValued(o.RequiresApproval)

	case model.EventEntityDelete:
		if err := w.sink.DeleteEntityAt(ctx, ev.TargetID, ev.TS); err != nil {
			return fmt.Errorf("delete entity %s: %w", ev.TargetID, err)
		}

	case model.EventOpportunityDelete:
		if err := w.sink.DeleteOpportunityAt(ctx, ev.TargetID, ev.TS); err != nil {
			return fmt.Errorf("delete opportunity %s: %w", ev.TargetID, err)
		}
	}
	return nil
}

// Closer is implemented by sources that can stop accepting events.
type Closer interface {
	Close() error
}

// Pool runs a fixed number of workers over one source.
type Pool struct {
	workers   []*InMemoryWorker
	source    Source
	processed atomic.Int64
	wg        sync.WaitGroup
	dropped   atomic.Int64
	cancel    context.CancelFunc
	onDropped func(Event)
	logger    logger.Logger
}

// NewPool creates a pool; workerCount < 1 picks a count from the CPUs.
func NewPool(workerCount int, source Source, scorer scoring.Scorer, sink Sink, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		source:  source,
		logger:  logger.Get().Named("worker-pool"),
	}
	for _, opt := range opts {
		opt(p)
	}
	for i := range p.workers {
		p.workers[i] = NewInMemoryWorker(source, scorer, sink,
			WithName("worker-"+strconv.Itoa(i)),
			WithOnProcessed(func(Event) { p.processed.Add(1) }),
			WithOnDropped(p.drop),
		)
	}
	return p
}

func (p *Pool) drop(ev Event) { //nolint:gocritic // hugeParam: events travel by value
	p.dropped.Add(1)
	metrics.RecordEventDropped()
	if p.onDropped != nil {
		p.onDropped(ev)
	}
}

// drainDropped hands every event still buffered in the source to drop. It
// does not wait for new events.
func (p *Pool) drainDropped() {
	events := p.source.Dequeue()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.drop(ev)
		default:
			return
		}
	}
}

// Start launches every worker. Workers stop when ctx ends, or when the
// source is closed and drained.
func (p *Pool) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *InMemoryWorker) {
			defer p.wg.Done()
			w.Run(runCtx)
		}(w)
	}
	metrics.UpdateWorkerCount(len(p.workers))
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns the number of events handled without error, stale
// events included.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Dropped returns the number of events abandoned by a timed out Shutdown.
func (p *Pool) Dropped() int64 { return p.dropped.Load() }

// Shutdown closes the source when it is a Closer, lets workers drain what is
// buffered and waits for them. When ctx ends first the workers are cancelled
// and every event not applied goes to the drop handler.
func (p *Pool) Shutdown(ctx context.Context) error {
	if c, ok := p.source.(Closer); ok {
		if err := c.Close(); err != nil {
			p.logger.Error(ctx, "error closing source", logger.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	defer metrics.UpdateWorkerCount(0)
	select {
	case <-done:
		if p.cancel != nil {
			p.cancel()
		}
		p.drainDropped()
		if n := p.dropped.Load(); n > 0 {
			p.logger.Warn(ctx, "workers stopped before draining the source",
				logger.Int64("dropped_events", n),
			)
		}
		return nil
	case <-ctx.Done():
		if p.cancel != nil {
			p.cancel()
		}
		<-done
		p.drainDropped()
		p.logger.Warn(ctx, "worker pool shutdown timed out",
			logger.Int64("dropped_events", p.dropped.Load()),
		)
		return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
	}
}
