// Package valuation weights opportunity values by their win probability and
// flags deals large enough to need approval.
package valuation

import (
	"github.com/shopspring/decimal"

	"github.com/okian/crmscore/internal/domain/model"
)

// ApprovalThreshold is the value above which an opportunity needs approval.
// A value equal to the threshold does not.
const ApprovalThreshold int64 = 50_000_000

// MaxProbability is the upper bound of a probability percentage.
const MaxProbability = 100

// Valuation is the derived view of an opportunity.
type Valuation struct {
	OpportunityID    string `json:"opportunity_id,omitempty"`
	Value            int64  `json:"value"`
	Probability      int    `json:"probability"`
	WeightedValue    int64  `json:"weighted_value"`
	RequiresApproval bool   `json:"requires_approval"`
}

// WeightedValue returns value × probability / 100 rounded half-up to whole
// currency units. The product is computed exactly before rounding.
func WeightedValue(value int64, probability int) (int64, error) {
	const op = "valuation.weighted_value"
	if err := validate(op, value, probability); err != nil {
		return 0, err
	}
	return Weighted(value, probability).Round(0).IntPart(), nil
}

// Weighted returns the exact, unrounded weighted value. Inputs are not
// validated.
func Weighted(value int64, probability int) decimal.Decimal {
	return decimal.NewFromInt(value).Mul(decimal.NewFromInt(int64(probability))).Shift(-2)
}

// RequiresApproval reports whether value is strictly above ApprovalThreshold.
func RequiresApproval(value int64) bool {
	return value > ApprovalThreshold
}

// Evaluate validates an opportunity and computes its weighted value and
// approval flag.
func Evaluate(o model.Opportunity) (Valuation, error) {
	const op = "valuation.evaluate"
	if err := validate(op, o.Value, o.Probability); err != nil {
		return Valuation{}, err
	}
	return Valuation{
		OpportunityID:    o.ID,
		Value:            o.Value,
		Probability:      o.Probability,
		WeightedValue:    Weighted(o.Value, o.Probability).Round(0).IntPart(),
		RequiresApproval: RequiresApproval(o.Value),
	}, nil
}

func validate(op string, value int64, probability int) error {
	if value < 0 {
		return model.InvalidArgument(op, "value %d is negative", value)
	}
	if probability < 0 || probability > MaxProbability {
		return model.InvalidArgument(op, "probability %d outside [0,%d]", probability, MaxProbability)
	}
	return nil
}
