package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"loreweave/internal/config"
	"loreweave/internal/extract"
	"loreweave/internal/llm"
	"loreweave/internal/lore"
	"loreweave/internal/mcp"
	"loreweave/internal/relate"
	"loreweave/internal/schema"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the lore MCP server over stdio",
		RunE:  runServe,
	}
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
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

	var producer llm.Completer
	if cfg.Model.ProducerModel != "" && cfg.Model.APIKey() != "" {
		producer = llm.NewClient(llm.Options{
			BaseURL: cfg.Model.BaseURL,
			APIKey:  cfg.Model.APIKey(),
			Model:   cfg.Model.ProducerModel,
			Timeout: cfg.Model.Timeout(),
			Title:   cfg.Project,
		}, log)
	} else {
		log.Info("no producer model configured, extraction runs on heuristics only")
	}

	engine := relate.NewEngine(db, log)
	extractor := extract.New(producer, registry, db, log)
	builder := lore.NewBuilder(registry, extractor, engine, log)

	server := mcp.NewServer(registry, db, engine, builder, version, log)
	log.Info("lore server starting",
		zap.String("project", cfg.Project), zap.String("driver", cfg.Database.Driver))
	return server.Run(ctx, &sdk.StdioTransport{})
}
