package loadgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/crmscore/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

// ErrVerification is returned when the service disagrees with the local engines.
var ErrVerification = errors.New("verification failed")

// serviceStats is the subset of GET /stats the runner reads.
type serviceStats struct {
	Entities      int `json:"entities"`
	Opportunities int `json:"opportunities"`
	QueueSize     int `json:"queue_size"`
}

// Run executes a complete load run and returns its statistics.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("loadgen")
	log.Info(ctx, "starting load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("entities", cfg.Entities),
		logger.Int("opportunitiesPerEntity", cfg.OpportunitiesPerEntity),
		logger.Int("workers", cfg.Workers),
	)

	c := newHTTPClient(cfg)
	if err := c.getJSON(ctx, "/healthz", nil); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	var before serviceStats
	if err := c.getJSON(ctx, "/stats", &before); err != nil {
		return stats, err
	}

	events := newGenerator(cfg.Seed).events(cfg)
	stats.EventsGenerated = len(events)

	if err := submitEvents(ctx, cfg, c, events, stats); err != nil {
		return stats, err
	}
	if err := waitForProcessing(ctx, cfg, c, before, events); err != nil {
		return stats, err
	}
	if err := verify(ctx, cfg, c, events, before, stats); err != nil {
		return stats, err
	}

	if cfg.OutputFile != "" {
		if err := saveEvents(cfg.OutputFile, events); err != nil {
			log.Warn(ctx, "failed to save events to file", logger.Error(err))
		}
	}

	stats.Duration = time.Since(stats.StartTime)
	log.Info(ctx, "load run completed",
		logger.Int("eventsGenerated", stats.EventsGenerated),
		logger.Int("eventsAccepted", stats.EventsAccepted),
		logger.Int("ranksChecked", stats.RanksChecked),
		logger.Int("leaderboardEntries", stats.LeaderboardEntries),
		logger.Duration("duration", stats.Duration),
	)
	return stats, nil
}

// waitForProcessing polls /stats until every generated record is stored and
// the queue is empty.
func waitForProcessing(ctx context.Context, cfg *Config, c *httpClient, before serviceStats, events []Event) error {
	wantEntities, wantOpps := before.Entities, before.Opportunities
	for _, ev := range events {
		if ev.Entity != nil {
			wantEntities++
		} else {
			wantOpps++
		}
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.WaitTimeout)
	defer cancel()
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		var st serviceStats
		if err := c.getJSON(ctx, "/stats", &st); err == nil &&
			st.QueueSize == 0 && st.Entities >= wantEntities && st.Opportunities >= wantOpps {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for events to be processed: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func saveEvents(filename string, events []Event) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}
	return nil
}
