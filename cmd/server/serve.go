package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"whatsapp-crm/internal/api"
	"whatsapp-crm/internal/auth"
	"whatsapp-crm/internal/automation"
	"whatsapp-crm/internal/crm"
	"whatsapp-crm/internal/store"
	"whatsapp-crm/internal/webhook"
	"whatsapp-crm/internal/whatsapp"
	"whatsapp-crm/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the reminder worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	cfg, log, db, err := bootstrap()
	if err != nil {
		return err
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := store.New(db, storeDefaults(cfg), log)
	hub := ws.NewHub(log, cfg.CORSOrigins)
	go hub.Run(ctx)

	whatsappClient := whatsapp.NewClient(cfg)
	if !whatsappClient.Fallback.Complete() {
		log.Info("no WhatsApp credentials in the environment, workspaces without their own will send in mock mode")
	}
	engine := automation.NewEngine(whatsappClient, log)
	crmService := crm.NewService(st, engine, hub, log)
	authService := auth.NewService(db, cfg, log)
	webhookHandler := webhook.NewHandler(cfg, st, crmService, log)

	worker, err := automation.NewWorker(automation.NewSweeper(st, engine, hub, log), cfg.ReminderSchedule, log)
	if err != nil {
		return err
	}

	router := api.NewRouter(api.Deps{
		Config:    cfg,
		Auth:      authService,
		CRM:       crmService,
		Directory: st,
		Webhook:   webhookHandler,
		Hub:       hub,
		Logger:    log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", slog.String("port", cfg.Port), slog.String("environment", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	worker.Start(ctx)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			worker.Stop()
			return err
		}
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", slog.Any("error", err))
	}
	worker.Stop()
	return nil
}
