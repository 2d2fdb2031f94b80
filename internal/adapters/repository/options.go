package repository

import "time"

// Option applies a configuration option to the TreapStore.
type Option func(*TreapStore)

// WithSeed fixes the seed of the node priorities for reproducible shapes.
func WithSeed(seed uint64) Option {
	return func(s *TreapStore) {
		s.seed = seed
	}
}

// RecordsOption applies a configuration option to MemoryRecords.
type RecordsOption func(*MemoryRecords)

// WithClock sets the time source used to stamp UpdatedAt.
func WithClock(now func() time.Time) RecordsOption {
	return func(r *MemoryRecords) {
		if now != nil {
			r.now = now
		}
	}
}
