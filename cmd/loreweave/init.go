package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func initCmd() *cobra.Command {
	var projectName string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a new loreweave project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(projectName) == "" {
				return fmt.Errorf("--name is required")
			}
			return runInit(projectName)
		},
	}
	cmd.Flags().StringVar(&projectName, "name", "", "Project name")
	return cmd
}

func runInit(projectName string) error {
	configPath := "loreweave.yaml"
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists", configPath)
	}

	contents := fmt.Sprintf(`project: %s
version: 1

database:
  driver: sqlite
  dsn: sqlite://./data/lore.db

model:
  base_url: https://openrouter.ai/api/v1
  api_key_env: OPENROUTER_API_KEY
  producer_model: openai/gpt-4o-mini
  chat_model: openai/gpt-4o
  timeout_seconds: 30
`, projectName)

	if err := os.WriteFile(configPath, []byte(contents), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", configPath, err)
	}
	if err := os.MkdirAll("data", 0o750); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	return nil
}
