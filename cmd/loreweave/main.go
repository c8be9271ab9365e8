package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	root := &cobra.Command{
		Use:   "loreweave",
		Short: "Lore context and draft consolidation server for worldbuilding chats",
	}
	root.Version = version
	root.SetVersionTemplate("{{.Version}}\n")
	root.PersistentFlags().String("config", "loreweave.yaml", "Path to the project config")
	root.PersistentFlags().Bool("verbose", false, "Enable debug logging")
	root.AddCommand(serveCmd())
	root.AddCommand(initCmd())
	root.AddCommand(importCmd())
	root.AddCommand(validateCmd())
	root.AddCommand(versionCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cmd *cobra.Command) (*zap.Logger, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	// Stdout carries the MCP transport; logs must stay off it.
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return "loreweave.yaml"
	}
	return path
}
