// Package report renders the pipeline as an XLSX workbook.
package report

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/okian/crmscore/internal/domain/model"
	"github.com/okian/crmscore/internal/domain/summary"
	"github.com/okian/crmscore/internal/domain/valuation"
)

// Sheet names.
const (
	SheetEntities      = "Entities"
	SheetOpportunities = "Opportunities"
	SheetSummary       = "Summary"
)

// averagePlaces is the number of decimals shown for averages.
const averagePlaces = 2

// ContentType is the MIME type of the generated workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var (
	entityHeader      = []any{"ID", "Name", "Status", "Revenue", "Employees", "Score"}
	opportunityHeader = []any{"ID", "Entity", "Title", "Stage", "Value", "Probability", "Weighted Value", "Requires Approval"}
)

// WritePipeline writes a workbook with one sheet per record type and a
// summary sheet. Entities are expected to carry their computed score.
func WritePipeline(w io.Writer, entities []model.Entity, opps []model.Opportunity) error {
	dash, err := summary.Summarize(entities, opps)
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetEntities); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{SheetOpportunities, SheetSummary} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("new sheet %s: %w", name, err)
		}
	}

	if err := writeRow(f, SheetEntities, 1, entityHeader); err != nil {
		return err
	}
	for i, e := range entities {
		row := []any{e.ID, e.Name, string(e.Status), optional(e.Revenue), optional(e.Employees), e.Score}
		if err := writeRow(f, SheetEntities, i+2, row); err != nil {
			return err
		}
	}

	if err := writeRow(f, SheetOpportunities, 1, opportunityHeader); err != nil {
		return err
	}
	for i, o := range opps {
		v, err := valuation.Evaluate(o)
		if err != nil {
			return fmt.Errorf("opportunity %s: %w", o.ID, err)
		}
		row := []any{o.ID, o.EntityID, o.Title, o.Stage, o.Value, o.Probability, v.WeightedValue, yesNo(v.RequiresApproval)}
		if err := writeRow(f, SheetOpportunities, i+2, row); err != nil {
			return err
		}
	}

	rows := [][]any{
		{"Metric", "Value"},
		{"Entities", dash.Entities},
		{"Clients", dash.ByStatus[model.StatusClient]},
		{"Prospects", dash.ByStatus[model.StatusProspect]},
		{"Average Score", display(dash.AverageScore)},
		{"Opportunities", dash.Opportunities},
		{"Total Value", dash.TotalValue},
		{"Weighted Value", dash.TotalWeightedValue},
		{"Average Probability", display(dash.AverageProbability)},
		{"Pending Approvals", dash.PendingApprovals},
	}
	for i, row := range rows {
		if err := writeRow(f, SheetSummary, i+1, row); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("%s row %d: %w", sheet, row, err)
	}
	return nil
}

func display(avg float64) float64 {
	return decimal.NewFromFloat(avg).Round(averagePlaces).InexactFloat64()
}

func optional(p *int64) any {
	if p == nil {
		return ""
	}
	return *p
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
