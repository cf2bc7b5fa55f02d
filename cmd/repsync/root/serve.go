package root

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"repsync/internal/adapters/api"
	"repsync/internal/adapters/email"
	web "repsync/internal/adapters/http"
	"repsync/internal/application/orchestrators"
	"repsync/internal/application/syncer"
	"repsync/internal/application/workout"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync daemon and its local JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, cleanup, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			var transmitter api.Transmitter = api.NewNoopTransmitter()
			var plans orchestrators.PlanFetcher
			if cfg.API.Token != "" {
				client := api.NewClient(cfg.API.BaseURL, cfg.API.Token)
				transmitter = client
				plans = client
			} else {
				slog.Warn("api_token_missing_using_noop_transmitter")
			}

			engine := syncer.NewSession(store, transmitter, syncer.Config{
				Interval:     cfg.Sync.Interval(),
				InitialDelay: cfg.Sync.InitialDelay(),
				MaxAttempts:  cfg.Sync.MaxAttempts,
			})
			defer engine.Stop()

			var mailer orchestrators.EmailSender
			if cfg.Email.CoachEmail != "" {
				var sender email.Sender
				if cfg.Email.ResendAPIKey != "" {
					sender = email.NewResendSender(cfg.Email.ResendAPIKey, cfg.Email.From)
					slog.Info("email_sender_configured", "provider", "resend")
				} else {
					sender = email.NewNoopSender()
					slog.Info("email_sender_configured", "provider", "noop")
				}
				mailer = email.NewSummaryMailer(sender)
			}

			facade := workout.NewSession(workout.Deps{
				Store:      store,
				Sync:       engine,
				Plans:      plans,
				Email:      mailer,
				CoachEmail: cfg.Email.CoachEmail,
			})
			defer facade.Close()

			// Surface any drafts left over from a previous run.
			if drafts, err := orchestrators.ExecuteListUnfinishedDrafts(cmd.Context(), store); err == nil {
				for _, d := range drafts {
					slog.Info("unfinished_draft_found", "day_id", d.DayID, "pending", d.PendingCount, "last_modified", d.LastModified)
				}
			}

			srv := &http.Server{
				Addr:    cfg.HTTP.Addr,
				Handler: web.NewMux(facade, store, cfg.HTTP.AuthToken),
			}

			errCh := make(chan error, 1)
			go func() {
				slog.Info("daemon_started", "version", Version, "addr", cfg.HTTP.Addr, "db", cfg.DB.Path)
				errCh <- srv.ListenAndServe()
			}()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-stop:
				slog.Info("daemon_stopping", "signal", sig.String())
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}
