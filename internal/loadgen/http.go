package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/okian/crmscore/pkg/logger"
)

// httpClient wraps http.Client with JSON helpers.
type httpClient struct {
	client  *http.Client
	baseURL string
}

func newHTTPClient(cfg *Config) *httpClient {
	return &httpClient{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
	}
}

// getJSON performs a GET and decodes a 200 response into out.
func (c *httpClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, bytes.TrimSpace(body))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// postJSON sends body as JSON and returns the status code and response body.
func (c *httpClient) postJSON(ctx context.Context, path string, body any) (int, []byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("POST %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read %s: %w", path, err)
	}
	return resp.StatusCode, respBody, nil
}

// submitEvents posts events with at most cfg.Workers requests in flight.
func submitEvents(ctx context.Context, cfg *Config, c *httpClient, events []Event, stats *Stats) error {
	var accepted, duplicate, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, ev := range events {
		g.Go(func() error {
			switch submitSingleEvent(gctx, c, ev) {
			case resultAccepted:
				accepted.Add(1)
			case resultDuplicate:
				duplicate.Add(1)
			default:
				failed.Add(1)
			}
			return gctx.Err()
		})
	}
	err := g.Wait()

	stats.EventsAccepted = int(accepted.Load())
	stats.EventsDuplicate = int(duplicate.Load())
	stats.EventsFailed = int(failed.Load())
	logger.Get().Info(ctx, "event submission completed",
		logger.Int("accepted", stats.EventsAccepted),
		logger.Int("duplicate", stats.EventsDuplicate),
		logger.Int("failed", stats.EventsFailed),
	)
	if err != nil {
		return fmt.Errorf("submit events: %w", err)
	}
	return nil
}

type submitResult int

const (
	resultFailed submitResult = iota
	resultAccepted
	resultDuplicate
)

func submitSingleEvent(ctx context.Context, c *httpClient, ev Event) submitResult {
	status, body, err := c.postJSON(ctx, "/events", ev)
	if err != nil {
		logger.Get().Debug(ctx, "event submission failed", logger.String("event_id", ev.EventID), logger.Error(err))
		return resultFailed
	}
	var ack AckResponse
	_ = json.Unmarshal(body, &ack)
	switch {
	case status == http.StatusAccepted:
		return resultAccepted
	case status == http.StatusOK && ack.Duplicate:
		return resultDuplicate
	default:
		logger.Get().Debug(ctx, "event rejected",
			logger.String("event_id", ev.EventID),
			logger.Int("status", status),
			logger.String("body", string(bytes.TrimSpace(body))),
		)
		return resultFailed
	}
}
