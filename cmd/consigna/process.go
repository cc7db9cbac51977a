package main

import (
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/consigna-dev/consigna/internal/cli"
	"github.com/consigna-dev/consigna/internal/consensus"
	"github.com/consigna-dev/consigna/internal/engine"
	"github.com/consigna-dev/consigna/internal/model"
)

func processCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process <image>...",
		Short: "Extract and validate a batch of receipt images",
		Long: `Process runs each receipt image through consensus extraction, applies the
bank-format correction rules, validates the result against the whitelist and
the payment history, and stores the resulting records.

Images are processed strictly in the order given, so duplicates inside one
batch are caught deterministically.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runProcess,
	}

	cmd.Flags().String("strategy", "triple", "consensus strategy (triple, dual)")
	cmd.Flags().Bool("append-remote", false, "append accepted records to the remote spreadsheet")
	cmd.Flags().Bool("no-cache", false, "bypass the extraction result cache")
	cmd.Flags().Bool("no-progress", false, "disable the progress bar")

	return cmd
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	strategy := consensus.Strategy(viper.GetString("extraction.strategy"))
	if flag, _ := cmd.Flags().GetString("strategy"); cmd.Flags().Changed("strategy") || strategy == "" {
		strategy = consensus.Strategy(flag)
	}
	if noCache, _ := cmd.Flags().GetBool("no-cache"); noCache {
		viper.Set("cache.disabled", true)
	}
	appendRemote, _ := cmd.Flags().GetBool("append-remote")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	images, err := loadImages(args)
	if err != nil {
		return err
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	logger := slog.Default()

	orchestrator, err := buildOrchestrator(store, logger)
	if err != nil {
		return err
	}

	history, err := buildHistoryStore(ctx, logger)
	if err != nil {
		return err
	}
	if appendRemote && history == nil {
		return fmt.Errorf("--append-remote requires sheets.spreadsheet_id in the config")
	}

	examples, err := loadExamples()
	if err != nil {
		return err
	}

	eng := engine.New(store, history, orchestrator, engine.Config{
		Strategy:     strategy,
		Examples:     examples,
		Validation:   validationConfig(),
		AppendRemote: appendRemote,
		ShowProgress: !noProgress,
	}, logger)

	records, procErr := eng.ProcessBatch(ctx, images)

	printRecords(records)

	if procErr != nil {
		return fmt.Errorf("batch finished with errors: %w", procErr)
	}
	return nil
}

// loadImages reads each path into memory and derives its MIME type from the
// file extension.
func loadImages(paths []string) ([]engine.Image, error) {
	images := make([]engine.Image, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read image %s: %w", path, err)
		}

		mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
		if mimeType == "" {
			mimeType = "image/jpeg"
		}

		images = append(images, engine.Image{
			Ref:      filepath.Base(path),
			MimeType: mimeType,
			Data:     data,
		})
	}
	return images, nil
}

func printRecords(records []model.ConsignmentRecord) {
	if len(records) == 0 {
		return
	}

	fmt.Println(cli.TitleStyle.Render(fmt.Sprintf("Processed %d receipt(s)", len(records))))

	valid := 0
	for _, r := range records {
		status := cli.StatusStyle(string(r.Status)).Render(string(r.Status))
		fmt.Printf("%s  %s  $%d  %s\n", status, r.ImageRef, r.Amount, cli.SubtleStyle.Render(r.StatusMessage))
		if r.HasAmbiguousNumbers {
			fmt.Printf("        %s\n", cli.WarningStyle.Render(
				fmt.Sprintf("ambiguous fields: %s", strings.Join(r.AmbiguousFields, ", "))))
		}
		if r.Status == model.StatusValid {
			valid++
		}
	}

	fmt.Printf("\n%s\n", cli.SubtleStyle.Render(
		fmt.Sprintf("%d accepted, %d rejected", valid, len(records)-valid)))
}
