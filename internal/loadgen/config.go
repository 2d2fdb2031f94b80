// Package loadgen drives a running crmscore service over HTTP: it submits
// generated entities and opportunities as events, waits for the workers to
// apply them and checks what the service serves against the local engines.
package loadgen

import "time"

// Config holds configuration for a load run.
type Config struct {
	BaseURL                string        // Base URL of the service
	Entities               int           // Number of entities to generate
	OpportunitiesPerEntity int           // Opportunities generated per entity
	TopN                   int           // Leaderboard entries to fetch
	Workers                int           // Concurrent HTTP requests
	Timeout                time.Duration // Per-request timeout
	WaitTimeout            time.Duration // How long to wait for the workers
	PollInterval           time.Duration // /stats polling interval
	Seed                   uint64        // Generator seed; 0 picks one from the clock
	OutputFile             string        // Optional JSON dump of the generated events
}

// Event mirrors the POST /events body.
type Event struct {
	EventID     string       `json:"event_id"`
	Kind        string       `json:"kind"`
	Entity      *Entity      `json:"entity,omitempty"`
	Opportunity *Opportunity `json:"opportunity,omitempty"`
	TS          string       `json:"ts"`
}

// Entity is the entity payload of an event.
type Entity struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Revenue   *int64 `json:"revenue,omitempty"`
	Employees *int64 `json:"employees,omitempty"`
	Status    string `json:"status"`
}

// Opportunity is the opportunity payload of an event.
type Opportunity struct {
	ID          string `json:"id"`
	EntityID    string `json:"entity_id"`
	Title       string `json:"title"`
	Value       int64  `json:"value"`
	Probability int    `json:"probability"`
	Stage       string `json:"stage,omitempty"`
}

// Entry is a leaderboard or rank row.
type Entry struct {
	Rank     int    `json:"rank"`
	EntityID string `json:"entity_id"`
	Score    int    `json:"score"`
}

// AckResponse is the response to an event submission.
type AckResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// Stats holds run statistics.
type Stats struct {
	EventsGenerated    int
	EventsAccepted     int
	EventsDuplicate    int
	EventsFailed       int
	RanksChecked       int
	ScoreMismatches    int
	LeaderboardEntries int
	StartTime          time.Time
	Duration           time.Duration
}
