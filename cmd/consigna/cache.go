package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/consigna-dev/consigna/internal/cache"
	"github.com/consigna-dev/consigna/internal/cli"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the extraction result cache",
	}

	cmd.AddCommand(cacheStatsCmd())
	cmd.AddCommand(cacheBumpCmd())
	cmd.AddCommand(cacheSweepCmd())

	return cmd
}

func cacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache size and the current ruleset version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			c := cache.New(store, viper.GetDuration("cache.ttl"), slog.Default())
			stats, err := c.Stats(ctx)
			if err != nil {
				return fmt.Errorf("failed to read cache stats: %w", err)
			}

			fmt.Println(cli.TitleStyle.Render("Result cache"))
			fmt.Printf("Entries:         %d\n", stats.Entries)
			fmt.Printf("Ruleset version: %d\n", stats.CurrentVersion)
			if !stats.OldestEntry.IsZero() {
				fmt.Printf("Oldest entry:    %s\n", stats.OldestEntry.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func cacheBumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bump",
		Short: "Bump the ruleset version, invalidating every cached result",
		Long: `Bump increments the global ruleset version counter. Every cached
extraction written under the old version becomes stale and will be recomputed
on next use. Run this after changing correction rules, partner tables, or
prompt examples.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			c := cache.New(store, viper.GetDuration("cache.ttl"), slog.Default())
			version, err := c.BumpRulesetVersion(ctx)
			if err != nil {
				return fmt.Errorf("failed to bump ruleset version: %w", err)
			}

			fmt.Printf("%s ruleset version is now %d\n", cli.SuccessStyle.Render("Cache invalidated:"), version)
			return nil
		},
	}
}

func cacheSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Physically delete cache entries older than the retention window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			window, _ := cmd.Flags().GetDuration("window")

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			c := cache.New(store, viper.GetDuration("cache.ttl"), slog.Default())
			removed, err := c.SweepExpired(ctx, window)
			if err != nil {
				return fmt.Errorf("failed to sweep cache: %w", err)
			}

			fmt.Printf("%s %d entries removed\n", cli.SuccessStyle.Render("Sweep complete:"), removed)
			return nil
		},
	}

	cmd.Flags().Duration("window", 0, "retention window (default: configured cache TTL)")

	return cmd
}
