// Package scoring computes the 0-100 priority score of a CRM entity from its
// annual revenue, headcount and relationship status.
package scoring

import (
	"context"
	"fmt"

	"github.com/okian/crmscore/internal/domain/model"
)

// MaxScore is the upper bound of every score.
const MaxScore = 100

// Band awards Points to values at or above Min. Bands are evaluated in
// descending Min order and the first match wins.
type Band struct {
	Min    int64 `json:"min"`
	Points int   `json:"points"`
}

// Revenue bands (currency units).
var revenueBands = []Band{
	{Min: 100_000_000, Points: 40},
	{Min: 50_000_000, Points: 30},
	{Min: 10_000_000, Points: 20},
	{Min: 0, Points: 10},
}

// Headcount bands.
var employeeBands = []Band{
	{Min: 100, Points: 30},
	{Min: 50, Points: 25},
	{Min: 20, Points: 20},
	{Min: 10, Points: 15},
	{Min: 0, Points: 10},
}

var statusPoints = map[model.Status]int{
	model.StatusClient:   30,
	model.StatusProspect: 15,
}

// RevenueBands returns a copy of the revenue bands, highest first.
func RevenueBands() []Band { return append([]Band(nil), revenueBands...) }

// EmployeeBands returns a copy of the headcount bands, highest first.
func EmployeeBands() []Band { return append([]Band(nil), employeeBands...) }

// StatusPoints returns a copy of the points awarded per status.
func StatusPoints() map[model.Status]int {
	out := make(map[model.Status]int, len(statusPoints))
	for k, v := range statusPoints {
		out[k] = v
	}
	return out
}

// Result is a score with its per-band breakdown.
type Result struct {
	EntityID       string `json:"entity_id,omitempty"`
	RevenuePoints  int    `json:"revenue_points"`
	EmployeePoints int    `json:"employee_points"`
	StatusPoints   int    `json:"status_points"`
	Score          int    `json:"score"`
}

// ComputeScore returns min(100, revenue band + headcount band + status band).
// Callers with missing revenue or headcount pass 0, which still earns the
// lowest band.
func ComputeScore(revenue, employees int64, status model.Status) (int, error) {
	r, err := Explain(revenue, employees, status)
	if err != nil {
		return 0, err
	}
	return r.Score, nil
}

// Explain computes the score and reports how many points each band awarded.
func Explain(revenue, employees int64, status model.Status) (Result, error) {
	const op = "scoring.compute"
	if revenue < 0 {
		return Result{}, model.InvalidArgument(op, "revenue %d is negative", revenue)
	}
	if employees < 0 {
		return Result{}, model.InvalidArgument(op, "employees %d is negative", employees)
	}
	sp, ok := statusPoints[status]
	if !ok {
		return Result{}, model.InvalidArgument(op, "unknown status %q", status)
	}

	r := Result{
		RevenuePoints:  bandPoints(revenueBands, revenue),
		EmployeePoints: bandPoints(employeeBands, employees),
		StatusPoints:   sp,
	}
	r.Score = min(MaxScore, r.RevenuePoints+r.EmployeePoints+r.StatusPoints)
	return r, nil
}

// ScoreEntity scores an entity, reading missing revenue or headcount as 0.
func ScoreEntity(e model.Entity) (Result, error) {
	r, err := Explain(e.RevenueOrZero(), e.EmployeesOrZero(), e.Status)
	if err != nil {
		return Result{}, err
	}
	r.EntityID = e.ID
	return r, nil
}

func bandPoints(bands []Band, v int64) int {
	for _, b := range bands {
		if v >= b.Min {
			return b.Points
		}
	}
	return 0
}

// Input carries the entity fields needed for scoring.
type Input struct {
	EntityID  string
	Revenue   *int64
	Employees *int64
	Status    model.Status
}

// InputFromEntity builds a scoring input from an entity.
func InputFromEntity(e model.Entity) Input {
	return Input{EntityID: e.ID, Revenue: e.Revenue, Employees: e.Employees, Status: e.Status}
}

// Scorer computes an entity score.
type Scorer interface {
	// Score computes a score, honoring ctx for cancellation.
	Score(ctx context.Context, in Input) (Result, error)
}

// BandScorer implements Scorer with the fixed band tables.
type BandScorer struct{}

// NewBandScorer creates a band scorer.
func NewBandScorer() *BandScorer { return &BandScorer{} }

// Score computes the score for the given input.
func (s *BandScorer) Score(ctx context.Context, in Input) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("context cancelled: %w", err)
	}
	return ScoreEntity(model.Entity{ID: in.EntityID, Revenue: in.Revenue, Employees: in.Employees, Status: in.Status})
}
