package main

import (
	"fmt"

	"whatsapp-crm/internal/automation"
	"whatsapp-crm/internal/store"
	"whatsapp-crm/internal/whatsapp"

	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Send due follow-up reminders once and exit",
		Long: `Runs a single follow-up reminder pass over every workspace.

Useful when the reminder worker is disabled and an external scheduler
(systemd timer, Kubernetes CronJob) drives reminders instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, db, err := bootstrap()
			if err != nil {
				return err
			}
			st := store.New(db, storeDefaults(cfg), log)
			engine := automation.NewEngine(whatsapp.NewClient(cfg), log)

			sent, err := automation.NewSweeper(st, engine, nil, log).Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %d follow-up reminder(s)\n", sent)
			return nil
		},
	}
}
