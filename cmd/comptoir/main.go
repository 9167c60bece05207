package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/comptoirhq/comptoir/internal/config"
	"github.com/comptoirhq/comptoir/internal/db"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "comptoir",
		Short: "Comptoir: multi-channel commerce chatbot server",
		Long:  "Comptoir ingests SMS, WhatsApp and Messenger webhooks and orchestrates order conversations for pharmacy tenants.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.toml (default: ./config.toml)")

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook ingestion server",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return db.Migrate(cfg.Postgres.DSN())
		},
	}
}
