package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/consigna-dev/consigna/internal/cli"
	"github.com/consigna-dev/consigna/internal/export"
	"github.com/consigna-dev/consigna/internal/service"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List processed consignment records",
		RunE:  runHistory,
	}

	cmd.Flags().String("from", "", "start date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "end date (YYYY-MM-DD)")
	cmd.Flags().String("status", "", "comma-separated statuses (VALID, DUPLICATE, INVALID_ACCOUNT, LOW_QUALITY)")
	cmd.Flags().Int("limit", 50, "maximum number of records to show")

	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	filter, err := recordFilterFromFlags(cmd)
	if err != nil {
		return err
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	records, err := store.GetRecords(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to query records: %w", err)
	}

	if len(records) == 0 {
		fmt.Println(cli.SubtleStyle.Render("no records match the filter"))
		return nil
	}

	fmt.Println(cli.TitleStyle.Render(fmt.Sprintf("%d record(s)", len(records))))
	for _, r := range records {
		status := cli.StatusStyle(string(r.Status)).Render(fmt.Sprintf("%-15s", r.Status))
		fmt.Printf("%s %s  $%-12d %s  %s\n",
			status, r.Date, r.Amount, r.PrimaryIdentifier(),
			cli.SubtleStyle.Render(r.StatusMessage))
	}
	return nil
}

func recordFilterFromFlags(cmd *cobra.Command) (service.RecordFilter, error) {
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	statuses, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")

	filter := export.StatusFilter(strings.Split(statuses, ","))
	filter.Limit = limit

	var err error
	if filter.StartDate, err = parseDate(from); err != nil {
		return service.RecordFilter{}, err
	}
	if filter.EndDate, err = parseDate(to); err != nil {
		return service.RecordFilter{}, err
	}

	return filter, nil
}
