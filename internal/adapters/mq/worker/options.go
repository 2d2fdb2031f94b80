package worker

import (
	"github.com/okian/crmscore/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name used in logs.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithOnProcessed registers a callback run after each applied event.
func WithOnProcessed(fn func(Event)) Option {
	return func(w *InMemoryWorker) {
		w.onProcessed = fn
	}
}

// WithOnDropped registers a callback run for an event abandoned because the
// worker context ended while it was being applied.
func WithOnDropped(fn func(Event)) Option {
	return func(w *InMemoryWorker) {
		w.onDropped = fn
	}
}

// PoolOption applies a configuration option to the Pool.
type PoolOption func(*Pool)

// WithDropHandler registers a callback run for every event the pool gives up
// on when Shutdown times out: events still buffered in the source and events
// interrupted mid-apply.
func WithDropHandler(fn func(Event)) PoolOption {
	return func(p *Pool) {
		p.onDropped = fn
	}
}
