package report_test

import (
	"bytes"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/xuri/excelize/v2"

	"github.com/okian/crmscore/internal/adapters/report"
	"github.com/okian/crmscore/internal/domain/model"
)

func TestWritePipeline(t *testing.T) {
	Convey("Given scored entities and opportunities", t, func() {
		entities := []model.Entity{
			{ID: "acme", Name: "Acme", Revenue: model.Int64(2_500_000), Employees: model.Int64(150), Status: model.StatusClient, Score: 70},
			{ID: "initech", Name: "Initech", Status: model.StatusProspect, Score: 35},
		}
		opps := []model.Opportunity{
			{ID: "o-1", EntityID: "acme", Title: "ERP", Value: 45_000_000, Probability: 75, Stage: "proposal"},
			{ID: "o-2", EntityID: "acme", Title: "Audit", Value: 60_000_000, Probability: 60},
		}

		Convey("When the workbook is written", func() {
			var buf bytes.Buffer
			err := report.WritePipeline(&buf, entities, opps)
			So(err, ShouldBeNil)

			f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
			So(err, ShouldBeNil)
			defer f.Close()

			Convey("Then it has the three sheets", func() {
				So(f.GetSheetList(), ShouldResemble, []string{report.SheetEntities, report.SheetOpportunities, report.SheetSummary})
			})

			Convey("Then entity rows carry scores and blanks for missing values", func() {
				rows, err := f.GetRows(report.SheetEntities)
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 3)
				So(rows[1], ShouldResemble, []string{"acme", "Acme", "client", "2500000", "150", "70"})
				So(rows[2][0], ShouldEqual, "initech")
				So(rows[2][5], ShouldEqual, "35")
			})

			Convey("Then opportunity rows carry weighted values and approval flags", func() {
				rows, err := f.GetRows(report.SheetOpportunities)
				So(err, ShouldBeNil)
				So(rows[1][6], ShouldEqual, "33750000")
				So(rows[1][7], ShouldEqual, "no")
				So(rows[2][6], ShouldEqual, "36000000")
				So(rows[2][7], ShouldEqual, "yes")
			})

			Convey("Then the summary reconciles with the rows", func() {
				v, err := f.GetCellValue(report.SheetSummary, "B8")
				So(err, ShouldBeNil)
				So(v, ShouldEqual, "69750000")
				approvals, _ := f.GetCellValue(report.SheetSummary, "B10")
				So(approvals, ShouldEqual, "1")
			})

			Convey("Then averages are rounded to two decimals for display", func() {
				v, err := f.GetCellValue(report.SheetSummary, "B5")
				So(err, ShouldBeNil)
				So(v, ShouldEqual, "52.5")
				p, err := f.GetCellValue(report.SheetSummary, "B9")
				So(err, ShouldBeNil)
				So(p, ShouldEqual, "67.5")
			})
		})

		Convey("When an opportunity is invalid", func() {
			var buf bytes.Buffer
			err := report.WritePipeline(&buf, entities, append(opps, model.Opportunity{ID: "bad", Value: -1}))

			Convey("Then no workbook is written", func() {
				So(errors.Is(err, model.ErrInvalidArgument), ShouldBeTrue)
				So(buf.Len(), ShouldEqual, 0)
			})
		})

		Convey("When an average has a repeating fraction", func() {
			third := append(entities, model.Entity{ID: "globex", Status: model.StatusProspect, Score: 40})
			var buf bytes.Buffer
			So(report.WritePipeline(&buf, third, opps), ShouldBeNil)
			f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
			So(err, ShouldBeNil)
			defer f.Close()

			Convey("Then the summary cell shows it rounded", func() {
				v, err := f.GetCellValue(report.SheetSummary, "B5")
				So(err, ShouldBeNil)
				So(v, ShouldEqual, "48.33")
			})
		})

		Convey("When there is nothing to report", func() {
			var buf bytes.Buffer
			So(report.WritePipeline(&buf, nil, nil), ShouldBeNil)
			So(buf.Len(), ShouldBeGreaterThan, 0)
		})
	})
}
