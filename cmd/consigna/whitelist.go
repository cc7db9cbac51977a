package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/consigna-dev/consigna/internal/cli"
	"github.com/consigna-dev/consigna/internal/model"
)

func whitelistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whitelist",
		Short: "Manage the authorized account and convenio whitelist",
	}

	cmd.AddCommand(whitelistListCmd())
	cmd.AddCommand(whitelistAddCmd())
	cmd.AddCommand(whitelistRemoveCmd())

	return cmd
}

func whitelistListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List authorized accounts and convenios",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			entries, err := store.GetWhitelist(ctx)
			if err != nil {
				return fmt.Errorf("failed to load whitelist: %w", err)
			}

			if len(entries) == 0 {
				fmt.Println(cli.SubtleStyle.Render("whitelist is empty"))
				return nil
			}

			fmt.Println(cli.TitleStyle.Render("Authorized destinations"))
			for _, e := range entries {
				label := e.Label
				if label == "" {
					label = "-"
				}
				fmt.Printf("%-10s %-25s %s\n", e.Kind, e.Value, cli.SubtleStyle.Render(label))
			}
			return nil
		},
	}
}

func whitelistAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <value>",
		Short: "Authorize an account number or convenio code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			kind, _ := cmd.Flags().GetString("kind")
			label, _ := cmd.Flags().GetString("label")

			var entryKind model.WhitelistKind
			switch strings.ToUpper(kind) {
			case "ACCOUNT":
				entryKind = model.KindAccount
			case "CONVENIO":
				entryKind = model.KindConvenio
			default:
				return fmt.Errorf("invalid kind %q, expected account or convenio", kind)
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			entry := model.WhitelistEntry{Value: args[0], Label: label, Kind: entryKind}
			if err := store.AddWhitelistEntry(ctx, entry); err != nil {
				return fmt.Errorf("failed to add whitelist entry: %w", err)
			}

			fmt.Printf("%s %s\n", cli.SuccessStyle.Render("Authorized"), args[0])
			return nil
		},
	}

	cmd.Flags().String("kind", "account", "entry kind (account, convenio)")
	cmd.Flags().String("label", "", "human-readable label for the destination")

	return cmd
}

func whitelistRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <value>",
		Short: "Revoke an authorized account or convenio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.RemoveWhitelistEntry(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to remove whitelist entry: %w", err)
			}

			fmt.Printf("%s %s\n", cli.SuccessStyle.Render("Revoked"), args[0])
			return nil
		},
	}
}
