package main

import (
	"fmt"
	"log/slog"
	"os"

	"whatsapp-crm/internal/config"
	"whatsapp-crm/internal/database"
	"whatsapp-crm/internal/store"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whatsapp-crm",
		Short: "WhatsApp CRM backend",
		Long:  "Serves the CRM dashboard API, receives WhatsApp webhooks and sends follow-up reminders.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
		SilenceUsage: true,
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSweepCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "whatsapp-crm %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler
	if cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// bootstrap loads configuration and opens the migrated database.
func bootstrap() (*config.Config, *slog.Logger, *gorm.DB, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	log := newLogger(cfg)
	slog.SetDefault(log)

	level := logger.Warn
	if !cfg.IsProduction() {
		level = logger.Info
	}
	db, err := database.Open(cfg, level)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, db, nil
}

func storeDefaults(cfg *config.Config) store.Defaults {
	return store.Defaults{
		Timezone:           cfg.Timezone,
		BusinessHoursStart: cfg.BusinessHoursStart,
		BusinessHoursEnd:   cfg.BusinessHoursEnd,
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
