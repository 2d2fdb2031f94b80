package scoring_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/crmscore/internal/domain/model"
	scoring "github.com/okian/crmscore/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestComputeScore(t *testing.T) {
	Convey("Given entity attributes", t, func() {
		Convey("When a client has 2.5M revenue and 150 employees", func() {
			r, err := scoring.Explain(2_500_000, 150, model.StatusClient)

			Convey("Then the score is 10 + 30 + 30", func() {
				So(err, ShouldBeNil)
				So(r.RevenuePoints, ShouldEqual, 10)
				So(r.EmployeePoints, ShouldEqual, 30)
				So(r.StatusPoints, ShouldEqual, 30)
				So(r.Score, ShouldEqual, 70)
			})
		})

		Convey("When a client has 150M revenue and 45 employees", func() {
			score, err := scoring.ComputeScore(150_000_000, 45, model.StatusClient)

			Convey("Then the score is 40 + 20 + 30", func() {
				So(err, ShouldBeNil)
				So(score, ShouldEqual, 90)
			})
		})

		Convey("When every band is at its top", func() {
			score, err := scoring.ComputeScore(100_000_000, 100, model.StatusClient)

			Convey("Then the score is the maximum", func() {
				So(err, ShouldBeNil)
				So(score, ShouldEqual, scoring.MaxScore)
			})
		})

		Convey("When a prospect has no revenue and no employees", func() {
			score, err := scoring.ComputeScore(0, 0, model.StatusProspect)

			Convey("Then the floors still apply", func() {
				So(err, ShouldBeNil)
				So(score, ShouldEqual, 10+10+15)
			})
		})

		Convey("When inputs are negative or the status unknown", func() {
			_, errRev := scoring.ComputeScore(-1, 10, model.StatusClient)
			_, errEmp := scoring.ComputeScore(10, -1, model.StatusClient)
			_, errStatus := scoring.ComputeScore(10, 10, model.Status("qualified"))

			Convey("Then each is an invalid argument", func() {
				So(errors.Is(errRev, model.ErrInvalidArgument), ShouldBeTrue)
				So(errors.Is(errEmp, model.ErrInvalidArgument), ShouldBeTrue)
				So(errors.Is(errStatus, model.ErrInvalidArgument), ShouldBeTrue)
			})
		})
	})
}

func TestBandBoundaries(t *testing.T) {
	cases := []struct {
		name      string
		revenue   int64
		employees int64
		want      int
	}{
		{"revenue just under 10M", 9_999_999, 0, 10 + 10 + 15},
		{"revenue at 10M", 10_000_000, 0, 20 + 10 + 15},
		{"revenue at 50M", 50_000_000, 0, 30 + 10 + 15},
		{"revenue just under 100M", 99_999_999, 0, 30 + 10 + 15},
		{"revenue at 100M", 100_000_000, 0, 40 + 10 + 15},
		{"employees at 9", 0, 9, 10 + 10 + 15},
		{"employees at 10", 0, 10, 10 + 15 + 15},
		{"employees at 20", 0, 20, 10 + 20 + 15},
		{"employees at 49", 0, 49, 10 + 20 + 15},
		{"employees at 50", 0, 50, 10 + 25 + 15},
		{"employees at 100", 0, 100, 10 + 30 + 15},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := scoring.ComputeScore(tc.revenue, tc.employees, model.StatusProspect)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("score = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestScoreProperties(t *testing.T) {
	Convey("Given a sweep of revenue and headcount values", t, func() {
		revenues := []int64{0, 1, 9_999_999, 10_000_000, 49_999_999, 50_000_000, 99_999_999, 100_000_000, 1 << 40}
		employees := []int64{0, 9, 10, 19, 20, 49, 50, 99, 100, 100_000}

		Convey("Then scores stay within [0,100] and never decrease as inputs grow", func() {
			for _, st := range model.Statuses() {
				for i, rev := range revenues {
					for j, emp := range employees {
						s, err := scoring.ComputeScore(rev, emp, st)
						So(err, ShouldBeNil)
						So(s, ShouldBeBetweenOrEqual, 0, 100)
						if i > 0 {
							prev, _ := scoring.ComputeScore(revenues[i-1], emp, st)
							So(s, ShouldBeGreaterThanOrEqualTo, prev)
						}
						if j > 0 {
							prev, _ := scoring.ComputeScore(rev, employees[j-1], st)
							So(s, ShouldBeGreaterThanOrEqualTo, prev)
						}
					}
				}
			}
		})

		Convey("Then a client always outranks an identical prospect", func() {
			c, _ := scoring.ComputeScore(20_000_000, 30, model.StatusClient)
			p, _ := scoring.ComputeScore(20_000_000, 30, model.StatusProspect)
			So(c-p, ShouldEqual, 15)
		})
	})
}

func TestScoreEntity(t *testing.T) {
	Convey("Given an entity with missing optional fields", t, func() {
		e := model.Entity{ID: "e-7", Status: model.StatusClient}

		Convey("When it is scored", func() {
			r, err := scoring.ScoreEntity(e)

			Convey("Then missing values are treated as zero", func() {
				So(err, ShouldBeNil)
				So(r.EntityID, ShouldEqual, "e-7")
				So(r.Score, ShouldEqual, 10+10+30)
			})
		})
	})
}

func TestBandScorer(t *testing.T) {
	Convey("Given a band scorer", t, func() {
		s := scoring.NewBandScorer()

		Convey("When scoring an input", func() {
			in := scoring.InputFromEntity(model.Entity{
				ID: "e-1", Revenue: model.Int64(150_000_000), Employees: model.Int64(45), Status: model.StatusClient,
			})
			r, err := s.Score(context.Background(), in)

			Convey("Then it matches ComputeScore", func() {
				So(err, ShouldBeNil)
				So(r.EntityID, ShouldEqual, "e-1")
				So(r.Score, ShouldEqual, 90)
			})
		})

		Convey("When the context is already cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := s.Score(ctx, scoring.Input{Status: model.StatusClient})

			Convey("Then the cancellation is returned", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})

		Convey("Band tables are exposed as copies", func() {
			bands := scoring.RevenueBands()
			bands[0].Points = 0
			So(scoring.RevenueBands()[0].Points, ShouldEqual, 40)
			So(scoring.EmployeeBands(), ShouldHaveLength, 5)

			points := scoring.StatusPoints()
			points[model.StatusClient] = 0
			So(scoring.StatusPoints()[model.StatusClient], ShouldEqual, 30)
		})
	})
}
