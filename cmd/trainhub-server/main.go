package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/trainhub/trainhub-server/internal/api"
	"github.com/trainhub/trainhub-server/internal/billing"
	"github.com/trainhub/trainhub-server/internal/config"
	"github.com/trainhub/trainhub-server/internal/mailer"
	"github.com/trainhub/trainhub-server/internal/notifier"
	"github.com/trainhub/trainhub-server/internal/server"
	"github.com/trainhub/trainhub-server/internal/storage"
)

func main() {
	var configPath = flag.String("config", "config/server.yml", "path to config file")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config_path", *configPath).Msg("Failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Log.Level).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("config_path", *configPath).
		Str("name", cfg.Server.Name).
		Str("version", cfg.Server.Version).
		Msg("TrainHub server starting")

	store, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer store.Close()

	provider := billing.NewStripeProvider(cfg.Stripe.SecretKey)
	orchestrator := billing.NewOrchestrator(store, provider, cfg.Stripe.SuccessURL, cfg.Stripe.CancelURL)
	synchronizer := billing.NewSynchronizer(store, provider)
	webhook := billing.NewWebhookHandler(cfg.Stripe.WebhookSecret, synchronizer)

	m := mailer.New(cfg.Mail.Provider, cfg.Mail.ServerToken, cfg.Mail.From)
	escalation := notifier.New(store, m, cfg.Mail.TemplateRef)

	restServer := api.NewRESTServer(cfg, store, m, orchestrator, webhook)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Scheduled escalation scans. The seconds field allows sub-minute
	// cadence.
	if cfg.Notifier.Enabled {
		scheduler := cron.New(cron.WithSeconds())
		_, err := scheduler.AddFunc(cfg.Notifier.Schedule, func() {
			if err := escalation.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Scheduled escalation run failed")
			}
		})
		if err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.Notifier.Schedule).Msg("Invalid notifier schedule")
		}
		scheduler.Start()
		defer scheduler.Stop()

		log.Info().Str("schedule", cfg.Notifier.Schedule).Msg("Escalation notifier scheduled")
	}

	// Optional message-driven trigger for the same scan.
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.ReconnectWait(cfg.NATS.ReconnectInterval),
			nats.MaxReconnects(cfg.NATS.MaxReconnects))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nc.Close()

		trigger := server.NewNATSTrigger(nc, escalation)
		go func() {
			if err := trigger.Start(ctx); err != nil && err != context.Canceled {
				log.Error().Err(err).Msg("NATS trigger stopped")
			}
		}()
	}

	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	go func() {
		if err := restServer.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("REST server failed")
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	case <-ctx.Done():
		log.Info().Msg("Context canceled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := restServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("REST server shutdown failed")
	}

	cancel()
	log.Info().Msg("TrainHub server stopped")
}
