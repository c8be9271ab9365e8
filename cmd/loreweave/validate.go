package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"loreweave/internal/config"
	"loreweave/internal/schema"
)

func validateCmd() *cobra.Command {
	var slug string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Report valid, broken and orphaned references",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, slug)
		},
	}
	cmd.Flags().StringVar(&slug, "slug", "", "Restrict the check to one entry")
	return cmd
}

func runValidate(cmd *cobra.Command, slug string) error {
	ctx := context.Background()

	log, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg, err := config.LoadProjectConfig(configPath(cmd))
	if err != nil {
		return err
	}

	db, err := openStore(ctx, cfg, schema.Builtin(), log)
	if err != nil {
		return err
	}
	defer db.Close(ctx)

	report, err := db.ValidateReferences(ctx, slug)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Valid references: %d\n", len(report.Valid))

	if len(report.Broken) > 0 {
		fmt.Fprintf(os.Stdout, "Broken references (%d):\n", len(report.Broken))
		for _, ref := range report.Broken {
			fmt.Fprintf(os.Stdout, "  - %s -> %s (%s)\n", ref.SourceSlug, ref.TargetSlug, ref.Relationship)
		}
	}
	if len(report.Orphaned) > 0 {
		fmt.Fprintf(os.Stdout, "Orphaned entries (%d):\n", len(report.Orphaned))
		for _, entry := range report.Orphaned {
			fmt.Fprintf(os.Stdout, "  - %s (%s)\n", entry.Slug, entry.Type)
		}
	}

	if len(report.Broken) > 0 {
		return fmt.Errorf("validation found broken references")
	}
	return nil
}
