package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"loreweave/internal/config"
	"loreweave/internal/importer"
	"loreweave/internal/schema"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Bulk-create entries from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}
	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
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

	registry := schema.Builtin()

	db, err := openStore(ctx, cfg, registry, log)
	if err != nil {
		return err
	}
	defer db.Close(ctx)

	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}

	result, err := importer.Run(ctx, db, registry, args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Created %d entries, skipped %d.\n", result.Created, result.Skipped)
	for _, warning := range result.Warnings {
		fmt.Fprintf(os.Stdout, "  warning: %s\n", warning)
	}
	for _, importErr := range result.Errors {
		fmt.Fprintf(os.Stdout, "  error: %v\n", importErr)
	}

	if result.Created == 0 {
		return fmt.Errorf("no entries imported")
	}
	return nil
}
