package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/crmscore/internal/adapters/dataset"
	service "github.com/okian/crmscore/internal/app"
)

const reportFilePermission = 0o600

// loadService reads a dataset file into an unstarted service.
func loadService(ctx context.Context, path string) (*service.Service, error) {
	ds, err := dataset.LoadFile(path)
	if err != nil {
		return nil, err
	}
	svc := service.New()
	if err := svc.LoadDataset(ctx, ds); err != nil {
		return nil, err
	}
	return svc, nil
}

func newSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <dataset>",
		Short: "Print the dashboard of a dataset",
		Long: `Load a JSON or YAML dataset, score and value every record and print
the aggregated dashboard.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := loadService(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			d, err := svc.Summary(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), d)
		},
	}
}

func newReportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "report <dataset>",
		Short: "Write the XLSX pipeline report of a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := loadService(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, reportFilePermission)
			if err != nil {
				return fmt.Errorf("create report: %w", err)
			}
			if err := svc.WritePipelineReport(cmd.Context(), f); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close report: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "pipeline.xlsx", "Output file")
	return cmd
}
