// Package summary reduces entity and opportunity collections to the figures
// shown on the CRM dashboard. Empty input yields zero values.
package summary

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/okian/crmscore/internal/domain/model"
	"github.com/okian/crmscore/internal/domain/valuation"
)

var maxTotal = decimal.NewFromInt(math.MaxInt64)

// CountByStatus counts entities per status. Every known status is present in
// the result, with 0 when no entity has it.
func CountByStatus(entities []model.Entity) map[model.Status]int {
	counts := make(map[model.Status]int, len(model.Statuses()))
	for _, s := range model.Statuses() {
		counts[s] = 0
	}
	for _, e := range entities {
		counts[e.Status]++
	}
	return counts
}

// TotalWeightedValue sums the rounded weighted value of each opportunity, so
// the total always equals the sum of the rows shown next to it. A total that
// does not fit in an int64 is rejected.
func TotalWeightedValue(opps []model.Opportunity) (int64, error) {
	const op = "summary.total_weighted_value"
	total := decimal.Zero
	for _, o := range opps {
		w, err := valuation.WeightedValue(o.Value, o.Probability)
		if err != nil {
			return 0, err
		}
		total = total.Add(decimal.NewFromInt(w))
	}
	return fitTotal(op, total)
}

// TotalValue sums the unweighted opportunity values. A total that does not
// fit in an int64 is rejected.
func TotalValue(opps []model.Opportunity) (int64, error) {
	const op = "summary.total_value"
	total := decimal.Zero
	for _, o := range opps {
		total = total.Add(decimal.NewFromInt(o.Value))
	}
	return fitTotal(op, total)
}

func fitTotal(op string, total decimal.Decimal) (int64, error) {
	if total.GreaterThan(maxTotal) || total.LessThan(maxTotal.Neg()) {
		return 0, model.InvalidArgument(op, "total %s overflows int64", total.String())
	}
	return total.IntPart(), nil
}

// AverageProbability returns the arithmetic mean of the probabilities, or 0
// for no opportunities.
func AverageProbability(opps []model.Opportunity) float64 {
	if len(opps) == 0 {
		return 0
	}
	var sum int64
	for _, o := range opps {
		sum += int64(o.Probability)
	}
	return mean(sum, len(opps))
}

// AverageScore returns the mean entity score, or 0 for no entities.
func AverageScore(entities []model.Entity) float64 {
	if len(entities) == 0 {
		return 0
	}
	var sum int64
	for _, e := range entities {
		sum += int64(e.Score)
	}
	return mean(sum, len(entities))
}

// mean is unrounded; callers round for display.
func mean(sum int64, n int) float64 {
	return float64(sum) / float64(n)
}

// ApprovalCount counts opportunities whose value needs approval.
func ApprovalCount(opps []model.Opportunity) int {
	n := 0
	for _, o := range opps {
		if valuation.RequiresApproval(o.Value) {
			n++
		}
	}
	return n
}

// CountByStage counts opportunities per pipeline stage. Opportunities without
// a stage are counted under UnstagedKey.
func CountByStage(opps []model.Opportunity) map[string]int {
	counts := make(map[string]int)
	for _, o := range opps {
		stage := o.Stage
		if stage == "" {
			stage = UnstagedKey
		}
		counts[stage]++
	}
	return counts
}

// UnstagedKey groups opportunities with no stage.
const UnstagedKey = "unstaged"

// TopEntities returns up to n entities ordered by score descending, then ID.
func TopEntities(entities []model.Entity, n int) []model.Entity {
	if n <= 0 || len(entities) == 0 {
		return []model.Entity{}
	}
	sorted := append([]model.Entity(nil), entities...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].ID < sorted[j].ID
	})
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}
