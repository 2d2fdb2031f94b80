package service_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/crmscore/internal/adapters/dataset"
	repository "github.com/okian/crmscore/internal/adapters/repository"
	service "github.com/okian/crmscore/internal/app"
	"github.com/okian/crmscore/internal/domain/model"
	"github.com/okian/crmscore/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestServiceRecords(t *testing.T) {
	Convey("Given a service with a fixed clock", t, func() {
		ctx := context.Background()
		fixed := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
		svc := service.New(service.WithClock(func() time.Time { return fixed }))

		Convey("When an entity is upserted", func() {
			e, err := svc.UpsertEntity(ctx, model.Entity{
				ID: "acme", Name: "Acme", Revenue: model.Int64(2_500_000),
				Employees: model.Int64(150), Status: model.StatusClient,
			})

			Convey("Then it is scored, stamped and ranked", func() {
				So(err, ShouldBeNil)
				So(e.Score, ShouldEqual, 70)
				So(e.UpdatedAt, ShouldEqual, fixed)

				entry, err := svc.Rank(ctx, "acme")
				So(err, ShouldBeNil)
				So(entry.Rank, ShouldEqual, 1)
				So(entry.Score, ShouldEqual, 70)
				So(entry.Name, ShouldEqual, "Acme")
				So(entry.Status, ShouldEqual, model.StatusClient)
			})

			Convey("Then a rescore moves it in the ranking", func() {
				_, err := svc.UpsertEntity(ctx, model.Entity{ID: "acme", Name: "Acme", Status: model.StatusProspect})
				So(err, ShouldBeNil)
				entry, _ := svc.Rank(ctx, "acme")
				So(entry.Score, ShouldEqual, 35)
			})
		})

		Convey("When an entity has no id", func() {
			e, err := svc.UpsertEntity(ctx, model.Entity{Name: "Anon", Status: model.StatusProspect})

			Convey("Then one is generated", func() {
				So(err, ShouldBeNil)
				So(e.ID, ShouldHaveLength, 36)
				got, err := svc.GetEntity(ctx, e.ID)
				So(err, ShouldBeNil)
				So(got.Name, ShouldEqual, "Anon")
			})
		})

		Convey("When invalid records are upserted", func() {
			_, errEnt := svc.UpsertEntity(ctx, model.Entity{ID: "x", Employees: model.Int64(-5), Status: model.StatusClient})
			_, errStatus := svc.UpsertEntity(ctx, model.Entity{ID: "y", Status: "qualified"})
			_, errOpp := svc.UpsertOpportunity(ctx, model.Opportunity{ID: "o", Value: 100, Probability: 150})

			Convey("Then they are rejected as invalid arguments and not stored", func() {
				So(errors.Is(errEnt, model.ErrInvalidArgument), ShouldBeTrue)
				So(errors.Is(errStatus, model.ErrInvalidArgument), ShouldBeTrue)
				So(errors.Is(errOpp, model.ErrInvalidArgument), ShouldBeTrue)
				So(svc.ListEntities(ctx), ShouldBeEmpty)
				So(svc.ListOpportunities(ctx), ShouldBeEmpty)
			})
		})

		Convey("When opportunities are upserted", func() {
			small, err1 := svc.UpsertOpportunity(ctx, model.Opportunity{ID: "o-1", EntityID: "acme", Value: 45_000_000, Probability: 75})
			big, err2 := svc.UpsertOpportunity(ctx, model.Opportunity{ID: "o-2", EntityID: "acme", Value: 60_000_000, Probability: 60})

			Convey("Then the approval flag is derived from the value", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(small.RequiresApproval, ShouldBeFalse)
				So(big.RequiresApproval, ShouldBeTrue)
				So(svc.OpportunitiesFor(ctx, "acme"), ShouldHaveLength, 2)
			})

			Convey("Then deleting the entity cascades", func() {
				_, _ = svc.UpsertEntity(ctx, model.Entity{ID: "acme", Status: model.StatusClient})
				So(svc.DeleteEntity(ctx, "acme"), ShouldBeNil)
				So(svc.ListOpportunities(ctx), ShouldBeEmpty)
				_, err := svc.Rank(ctx, "acme")
				So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
			})

			Convey("Then a single opportunity can be deleted", func() {
				So(svc.DeleteOpportunity(ctx, "o-1"), ShouldBeNil)
				_, err := svc.GetOpportunity(ctx, "o-1")
				So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
				So(errors.Is(svc.DeleteOpportunity(ctx, "o-1"), service.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestServiceRanking(t *testing.T) {
	Convey("Given entities with tied scores", t, func() {
		ctx := context.Background()
		svc := service.New()
		for _, e := range []model.Entity{
			{ID: "b", Revenue: model.Int64(150_000_000), Employees: model.Int64(200), Status: model.StatusClient},
			{ID: "a", Revenue: model.Int64(150_000_000), Employees: model.Int64(200), Status: model.StatusClient},
			{ID: "c", Status: model.StatusProspect},
		} {
			_, err := svc.UpsertEntity(ctx, e)
			So(err, ShouldBeNil)
		}

		Convey("When the top entries are read", func() {
			top, err := svc.TopN(ctx, 10)

			Convey("Then ties share a rank and are ordered by id", func() {
				So(err, ShouldBeNil)
				So(top, ShouldHaveLength, 3)
				So(top[0].EntityID, ShouldEqual, "a")
				So(top[0].Score, ShouldEqual, 100)
				So(top[1].EntityID, ShouldEqual, "b")
				So(top[1].Rank, ShouldEqual, 1)
				So(top[2].Rank, ShouldEqual, 2)
				So(top[2].Score, ShouldEqual, 35)
			})
		})

		Convey("When an invalid limit is asked for", func() {
			_, err := svc.TopN(ctx, 0)

			Convey("Then the repository error is returned", func() {
				So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
			})
		})
	})
}

func TestServiceSummaryAndReport(t *testing.T) {
	Convey("Given a service loaded from a dataset", t, func() {
		ctx := context.Background()
		svc := service.New()
		ds := dataset.Dataset{
			Entities: []model.Entity{
				{ID: "acme", Name: "Acme", Revenue: model.Int64(2_500_000), Employees: model.Int64(150), Status: model.StatusClient},
				{ID: "globex", Name: "Globex", Revenue: model.Int64(150_000_000), Employees: model.Int64(45), Status: model.StatusClient},
				{ID: "initech", Name: "Initech", Status: model.StatusProspect},
			},
			Opportunities: []model.Opportunity{
				{ID: "o-1", EntityID: "acme", Title: "Renewal", Value: 45_000_000, Probability: 75, Stage: "proposal"},
				{ID: "o-2", EntityID: "globex", Title: "Expansion", Value: 60_000_000, Probability: 60},
			},
		}
		So(svc.LoadDataset(ctx, ds), ShouldBeNil)

		Convey("When the summary is computed", func() {
			d, err := svc.Summary(ctx)

			Convey("Then it aggregates every record", func() {
				So(err, ShouldBeNil)
				So(d.Entities, ShouldEqual, 3)
				So(d.ByStatus[model.StatusClient], ShouldEqual, 2)
				So(d.ByStatus[model.StatusProspect], ShouldEqual, 1)
				So(d.TotalWeightedValue, ShouldEqual, 33_750_000+36_000_000)
				So(d.AverageProbability, ShouldEqual, 67.5)
				So(d.AverageScore, ShouldEqual, 65.0)
				So(d.PendingApprovals, ShouldEqual, 1)
			})
		})

		Convey("When the pipeline report is written", func() {
			var buf bytes.Buffer
			So(svc.WritePipelineReport(ctx, &buf), ShouldBeNil)

			Convey("Then it is a workbook holding every record", func() {
				f, err := excelize.OpenReader(&buf)
				So(err, ShouldBeNil)
				defer func() { _ = f.Close() }()
				rows, err := f.GetRows("Entities")
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 4)
			})
		})

		Convey("When a dataset holds an invalid record", func() {
			err := svc.LoadDataset(ctx, dataset.Dataset{
				Opportunities: []model.Opportunity{{ID: "bad", Value: -1}},
			})

			Convey("Then loading stops with the record id", func() {
				So(errors.Is(err, model.ErrInvalidArgument), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "load opportunity bad")
			})
		})
	})
}
