package valuation_test

import (
	"errors"
	"math"
	"testing"

	"github.com/okian/crmscore/internal/domain/model"
	"github.com/okian/crmscore/internal/domain/valuation"
	. "github.com/smartystreets/goconvey/convey"
)

func TestWeightedValue(t *testing.T) {
	Convey("Given opportunity values and probabilities", t, func() {
		Convey("When 45M is won at 75%", func() {
			v, err := valuation.Evaluate(model.Opportunity{ID: "o-1", Value: 45_000_000, Probability: 75})

			Convey("Then the weighted value is 33.75M and no approval is needed", func() {
				So(err, ShouldBeNil)
				So(v.OpportunityID, ShouldEqual, "o-1")
				So(v.WeightedValue, ShouldEqual, 33_750_000)
				So(v.RequiresApproval, ShouldBeFalse)
			})
		})

		Convey("When 60M is won at 60%", func() {
			v, err := valuation.Evaluate(model.Opportunity{Value: 60_000_000, Probability: 60})

			Convey("Then the weighted value is 36M and approval is required", func() {
				So(err, ShouldBeNil)
				So(v.WeightedValue, ShouldEqual, 36_000_000)
				So(v.RequiresApproval, ShouldBeTrue)
			})
		})

		Convey("When the probability is at its bounds", func() {
			for _, value := range []int64{0, 1, 999, 45_000_000, math.MaxInt64 / 100} {
				full, err := valuation.WeightedValue(value, 100)
				So(err, ShouldBeNil)
				So(full, ShouldEqual, value)

				none, err := valuation.WeightedValue(value, 0)
				So(err, ShouldBeNil)
				So(none, ShouldEqual, 0)
			}
		})

		Convey("When the product has a fractional part", func() {
			half, _ := valuation.WeightedValue(1, 50)
			below, _ := valuation.WeightedValue(1, 49)
			above, _ := valuation.WeightedValue(3, 33)
			odd, _ := valuation.WeightedValue(12_345, 50)

			Convey("Then it is rounded half-up to whole units", func() {
				So(half, ShouldEqual, 1)
				So(below, ShouldEqual, 0)
				So(above, ShouldEqual, 1)
				So(odd, ShouldEqual, 6_173)
			})
		})

		Convey("When inputs are out of range", func() {
			_, errNeg := valuation.WeightedValue(-1, 50)
			_, errLow := valuation.WeightedValue(10, -1)
			_, errHigh := valuation.WeightedValue(10, 101)
			_, errEval := valuation.Evaluate(model.Opportunity{Value: 10, Probability: 150})

			Convey("Then each is an invalid argument", func() {
				So(errors.Is(errNeg, model.ErrInvalidArgument), ShouldBeTrue)
				So(errors.Is(errLow, model.ErrInvalidArgument), ShouldBeTrue)
				So(errors.Is(errHigh, model.ErrInvalidArgument), ShouldBeTrue)
				So(errors.Is(errEval, model.ErrInvalidArgument), ShouldBeTrue)
			})
		})
	})
}

func TestRequiresApproval(t *testing.T) {
	Convey("Given values around the approval threshold", t, func() {
		So(valuation.RequiresApproval(0), ShouldBeFalse)
		So(valuation.RequiresApproval(49_999_999), ShouldBeFalse)
		So(valuation.RequiresApproval(valuation.ApprovalThreshold), ShouldBeFalse)
		So(valuation.RequiresApproval(valuation.ApprovalThreshold+1), ShouldBeTrue)
		So(valuation.RequiresApproval(1_000_000_000), ShouldBeTrue)
	})
}

func TestWeightedExact(t *testing.T) {
	Convey("Given the exact weighted value", t, func() {
		So(valuation.Weighted(12_345, 50).String(), ShouldEqual, "6172.5")
		So(valuation.Weighted(45_000_000, 75).IntPart(), ShouldEqual, 33_750_000)
	})
}
