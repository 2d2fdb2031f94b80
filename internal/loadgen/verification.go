package loadgen

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/okian/crmscore/internal/domain/model"
	"github.com/okian/crmscore/internal/domain/scoring"
	"github.com/okian/crmscore/internal/domain/summary"
	"github.com/okian/crmscore/pkg/logger"
)

// verify checks ranks, the leaderboard order and, on a fresh service, the
// pipeline summary.
func verify(ctx context.Context, cfg *Config, c *httpClient, events []Event, before serviceStats, stats *Stats) error {
	if err := verifyRanks(ctx, cfg, c, events, stats); err != nil {
		return err
	}
	if err := verifyLeaderboard(ctx, cfg, c, stats); err != nil {
		return err
	}
	if before.Entities == 0 && before.Opportunities == 0 {
		if err := verifySummary(ctx, c, events); err != nil {
			return err
		}
	}
	if stats.ScoreMismatches > 0 {
		return fmt.Errorf("%w: %d score mismatches", ErrVerification, stats.ScoreMismatches)
	}
	return nil
}

// verifyRanks compares every served score with the local scoring engine.
func verifyRanks(ctx context.Context, cfg *Config, c *httpClient, events []Event, stats *Stats) error {
	expected := make(map[string]int)
	for _, ev := range events {
		if ev.Entity == nil {
			continue
		}
		want, err := expectedScore(*ev.Entity)
		if err != nil {
			return fmt.Errorf("score %s locally: %w", ev.Entity.ID, err)
		}
		expected[ev.Entity.ID] = want
	}

	var checked, mismatched atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for id, want := range expected {
		g.Go(func() error {
			var got Entry
			if err := c.getJSON(gctx, "/rank/"+url.PathEscape(id), &got); err != nil {
				return err
			}
			checked.Add(1)
			if got.Score != want {
				mismatched.Add(1)
				logger.Get().Warn(gctx, "score mismatch",
					logger.String("entity_id", id),
					logger.Int("served", got.Score),
					logger.Int("expected", want),
				)
			}
			return nil
		})
	}
	err := g.Wait()
	stats.RanksChecked = int(checked.Load())
	stats.ScoreMismatches = int(mismatched.Load())
	if err != nil {
		return fmt.Errorf("verify ranks: %w", err)
	}
	return nil
}

// verifyLeaderboard checks that the top entries are ordered by score then id
// and carry dense ranks.
func verifyLeaderboard(ctx context.Context, cfg *Config, c *httpClient, stats *Stats) error {
	var entries []Entry
	if err := c.getJSON(ctx, "/leaderboard?limit="+strconv.Itoa(cfg.TopN), &entries); err != nil {
		return fmt.Errorf("verify leaderboard: %w", err)
	}
	stats.LeaderboardEntries = len(entries)
	if err := checkLeaderboard(entries); err != nil {
		return err
	}
	return nil
}

func checkLeaderboard(entries []Entry) error {
	for i, e := range entries {
		if i == 0 {
			if e.Rank != 1 {
				return fmt.Errorf("%w: first entry has rank %d", ErrVerification, e.Rank)
			}
			continue
		}
		prev := entries[i-1]
		switch {
		case e.Score > prev.Score:
			return fmt.Errorf("%w: %s scores %d above %s at %d", ErrVerification, e.EntityID, e.Score, prev.EntityID, prev.Score)
		case e.Score == prev.Score && (e.Rank != prev.Rank || e.EntityID < prev.EntityID):
			return fmt.Errorf("%w: tie at %d out of order at position %d", ErrVerification, e.Score, i+1)
		case e.Score < prev.Score && e.Rank != prev.Rank+1:
			return fmt.Errorf("%w: rank %d follows rank %d", ErrVerification, e.Rank, prev.Rank)
		}
	}
	return nil
}

// verifySummary compares the served weighted pipeline with the local total.
func verifySummary(ctx context.Context, c *httpClient, events []Event) error {
	var opps []model.Opportunity
	for _, ev := range events {
		if o := ev.Opportunity; o != nil {
			opps = append(opps, model.Opportunity{ID: o.ID, EntityID: o.EntityID, Value: o.Value, Probability: o.Probability})
		}
	}
	want, err := summary.TotalWeightedValue(opps)
	if err != nil {
		return fmt.Errorf("total weighted value: %w", err)
	}

	var got summary.Dashboard
	if err := c.getJSON(ctx, "/summary", &got); err != nil {
		return fmt.Errorf("verify summary: %w", err)
	}
	if got.TotalWeightedValue != want {
		return fmt.Errorf("%w: total weighted value %d, expected %d", ErrVerification, got.TotalWeightedValue, want)
	}
	return nil
}

func expectedScore(e Entity) (int, error) {
	r, err := scoring.ScoreEntity(model.Entity{
		ID:        e.ID,
		Revenue:   e.Revenue,
		Employees: e.Employees,
		Status:    model.Status(e.Status),
	})
	if err != nil {
		return 0, err
	}
	return r.Score, nil
}
