package main

import (
	"github.com/spf13/cobra"

	"github.com/okian/crmscore/internal/domain/model"
	"github.com/okian/crmscore/internal/domain/scoring"
	"github.com/okian/crmscore/internal/domain/valuation"
)

func newScoreCmd() *cobra.Command {
	var (
		revenue   int64
		employees int64
		status    string
	)
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score an entity",
		Long: `Score an entity from its revenue, headcount and status.

Omitted revenue or employees earn the lowest band.`,
		Example: "  crmctl score --revenue 2500000 --employees 150 --status client",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := model.ParseStatus(status)
			if err != nil {
				return err
			}
			e := model.Entity{Status: st}
			if cmd.Flags().Changed("revenue") {
				e.Revenue = model.Int64(revenue)
			}
			if cmd.Flags().Changed("employees") {
				e.Employees = model.Int64(employees)
			}
			r, err := scoring.ScoreEntity(e)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), r)
		},
	}
	cmd.Flags().Int64Var(&revenue, "revenue", 0, "Annual revenue")
	cmd.Flags().Int64Var(&employees, "employees", 0, "Headcount")
	cmd.Flags().StringVar(&status, "status", "", "Entity status (client, prospect)")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func newValueCmd() *cobra.Command {
	var (
		value       int64
		probability int
	)
	cmd := &cobra.Command{
		Use:     "value",
		Short:   "Value an opportunity",
		Example: "  crmctl value --value 60000000 --probability 60",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := valuation.Evaluate(model.Opportunity{Value: value, Probability: probability})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), v)
		},
	}
	cmd.Flags().Int64Var(&value, "value", 0, "Deal value")
	cmd.Flags().IntVar(&probability, "probability", 0, "Win probability percentage (0-100)")
	_ = cmd.MarkFlagRequired("value")
	_ = cmd.MarkFlagRequired("probability")
	return cmd
}

// bandTable is the printed form of the scoring tables.
type bandTable struct {
	Revenue   []scoring.Band       `json:"revenue"`
	Employees []scoring.Band       `json:"employees"`
	Status    map[model.Status]int `json:"status"`
	MaxScore  int                  `json:"max_score"`
}

func newBandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bands",
		Short: "Print the scoring bands",
		Long: `Print the revenue and headcount bands, highest first, with the
points awarded per status. A value earns the points of the first band whose
minimum it reaches.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJSON(cmd.OutOrStdout(), bandTable{
				Revenue:   scoring.RevenueBands(),
				Employees: scoring.EmployeeBands(),
				Status:    scoring.StatusPoints(),
				MaxScore:  scoring.MaxScore,
			})
		},
	}
}
