package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"whatsapp-crm/internal/config"
	"whatsapp-crm/internal/database"
	"whatsapp-crm/internal/models"
	"whatsapp-crm/internal/store"

	"github.com/spf13/cobra"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const copyBatchSize = 100

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "migrate_data",
		Short:        "Move CRM data into the configured database",
		SilenceUsage: true,
	}
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newCopyCmd())
	return cmd
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Import a JSON data file from the file-backed backend",
		Long: `Reads a JSON data file written by the previous file-backed backend and
loads its users and workspaces. Defaults to LEGACY_DATA_FILE when no file
is given. Rows that already exist are kept.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, log, err := open()
			if err != nil {
				return err
			}

			path := cfg.LegacyDataFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return errors.New("no data file given and LEGACY_DATA_FILE is not set")
			}
			raw, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			st := store.New(db, store.Defaults{
				Timezone:           cfg.Timezone,
				BusinessHoursStart: cfg.BusinessHoursStart,
				BusinessHoursEnd:   cfg.BusinessHoursEnd,
			}, log)
			result, err := st.ImportLegacy(cmd.Context(), raw)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "imported %d user(s), %d workspace(s)\n", result.Users, result.Workspaces)
			if result.Legacy {
				fmt.Fprintln(out, "single-tenant data parked; the first account to register will adopt it")
			}
			return nil
		},
	}
}

func newCopyCmd() *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "copy",
		Short: "Copy every table from a SQLite file into the configured database",
		Long: `Copies users, sessions and workspaces from a SQLite database file into the
database selected by DB_DRIVER, typically when moving to PostgreSQL.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if from == "" {
				return errors.New("--from is required")
			}
			_, dst, log, err := open()
			if err != nil {
				return err
			}
			src, err := gorm.Open(sqlite.Open(from), &gorm.Config{
				Logger: logger.Default.LogMode(logger.Warn),
			})
			if err != nil {
				return fmt.Errorf("open %s: %w", from, err)
			}

			out := cmd.OutOrStdout()
			copied, err := copyTables(src, dst, log)
			for _, c := range copied {
				fmt.Fprintf(out, "%s: %d row(s)\n", c.table, c.rows)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "path to the source SQLite database")
	return cmd
}

type tableCount struct {
	table string
	rows  int
}

// copyTables moves rows in dependency order. Rows whose primary key already
// exists in dst are skipped, so the copy can be re-run.
func copyTables(src, dst *gorm.DB, log *slog.Logger) ([]tableCount, error) {
	var counts []tableCount

	migrateTable := func(table string, rows interface{}, n func() int) error {
		if err := src.Table(table).Find(rows).Error; err != nil {
			return fmt.Errorf("read %s: %w", table, err)
		}
		if n() == 0 {
			counts = append(counts, tableCount{table: table})
			return nil
		}
		err := dst.Transaction(func(tx *gorm.DB) error {
			return tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows, copyBatchSize).Error
		})
		if err != nil {
			return fmt.Errorf("write %s: %w", table, err)
		}
		log.Info("table copied", slog.String("table", table), slog.Int("rows", n()))
		counts = append(counts, tableCount{table: table, rows: n()})
		return nil
	}

	var users []models.User
	if err := migrateTable("users", &users, func() int { return len(users) }); err != nil {
		return counts, err
	}
	var sessions []models.AuthSession
	if err := migrateTable("auth_sessions", &sessions, func() int { return len(sessions) }); err != nil {
		return counts, err
	}
	var workspaces []models.WorkspaceRecord
	if err := migrateTable("workspaces", &workspaces, func() int { return len(workspaces) }); err != nil {
		return counts, err
	}
	return counts, nil
}

func open() (*config.Config, *gorm.DB, *slog.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	db, err := database.Open(cfg, logger.Warn)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, db, log, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
