package service

import (
	"fmt"

	eventqueue "github.com/okian/crmscore/internal/adapters/mq/queue"
	repository "github.com/okian/crmscore/internal/adapters/repository"
)

// Sentinel error kinds returned by the Service.
var (
	// ErrNotStarted is returned by Submit before Start or after Stop. It
	// matches eventqueue.ErrQueueClosed.
	ErrNotStarted = fmt.Errorf("service not started: %w", eventqueue.ErrQueueClosed)

	// ErrNotFound is returned for unknown entity or opportunity ids.
	ErrNotFound = repository.ErrNotFound

	// ErrBackpressure is returned when the event queue is full.
	ErrBackpressure = eventqueue.ErrQueueFull
)
