package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	dbPath string
)

var rootCmd = &cobra.Command{
	Use:   "pagesplit",
	Short: "pagesplit - a self-hosted deterministic A/B testing engine",
	Long: `pagesplit is a self-hosted A/B testing engine for pages.
Single Go binary, embedded SQLite, deterministic visitor bucketing.

Running without a subcommand starts the server (same as 'pagesplit serve').`,
	RunE: runServe, // Default action is to start server
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", getEnvOrDefault("PS_DB_PATH", "./pagesplit.db"), "database path")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
