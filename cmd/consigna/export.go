package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/consigna-dev/consigna/internal/cli"
	"github.com/consigna-dev/consigna/internal/export"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <output.xlsx>",
		Short: "Export processed records to an XLSX workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			filter, err := recordFilterFromFlags(cmd)
			if err != nil {
				return err
			}
			filter.Limit = 0

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			svc := export.NewService(store, slog.Default())
			count, err := svc.ExportXLSX(ctx, filter, args[0])
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			fmt.Printf("%s %d records written to %s\n", cli.SuccessStyle.Render("Exported:"), count, args[0])
			return nil
		},
	}

	cmd.Flags().String("from", "", "start date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "end date (YYYY-MM-DD)")
	cmd.Flags().String("status", "", "comma-separated statuses to include")
	cmd.Flags().Int("limit", 0, "unused, exports all matching records")
	_ = cmd.Flags().MarkHidden("limit")

	return cmd
}
