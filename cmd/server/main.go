package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/hookpilot/hookpilot/internal/config"
	"github.com/hookpilot/hookpilot/internal/dispatch"
	"github.com/hookpilot/hookpilot/internal/ghcli"
	"github.com/hookpilot/hookpilot/internal/hooks"
	"github.com/hookpilot/hookpilot/internal/lifecycle"
	"github.com/hookpilot/hookpilot/internal/observability"
	"github.com/hookpilot/hookpilot/internal/routing"
	"github.com/hookpilot/hookpilot/internal/server"
	"github.com/hookpilot/hookpilot/internal/server/routes"
	"github.com/hookpilot/hookpilot/internal/subscriptions"
	"github.com/hookpilot/hookpilot/internal/tunnel"
)

func main() {
	log := slog.New(observability.WrapSlogHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))
	slog.SetDefault(log)

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	store, err := subscriptions.Open(subscriptions.Options{
		DBPath:     cfg.Store.Path,
		LegacyPath: cfg.Store.LegacyPath,
		Seed:       seedSubscriptions(cfg.Store.Seed),
		Log:        log,
	})
	if err != nil {
		slog.Error("Failed to open subscription store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("Failed to close subscription store", "error", err)
		}
	}()

	tracker := tunnel.NewTracker(cfg.Webhook.Hostname)
	delivery := tunnel.StaticConfig{Config: tunnel.DeliveryConfig{
		BasePath: cfg.Webhook.BasePath,
		Secret:   cfg.Webhook.Secret,
	}}

	gh := ghcli.New(log, cfg.Webhook.RemoteTimeout)
	reconciler := hooks.NewReconciler(gh, store, tracker, delivery, log)
	router := routing.NewRouter(store, routing.Table{
		Routes:          cfg.Routing.Table,
		PRReviewSession: cfg.Routing.PRReviewSession,
		ReleaseSession:  cfg.Routing.ReleaseSession,
	})
	orchestrator := lifecycle.New(reconciler, store, tracker, cfg.Organizations, log)
	dispatcher := dispatch.Dispatcher{
		Endpoints: cfg.Routing.SessionEndpoints,
		Token:     cfg.Routing.DispatchToken,
		Secret:    cfg.Routing.DispatchSecret,
	}

	srv := server.New(log)
	srv.RegisterRouter(routes.NewAPI(reconciler, store, router, orchestrator, dispatcher, log))

	slog.Info("hookpilot listening", "port", cfg.Server.Port, "orgs", cfg.Organizations)
	if err := srv.Start(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func seedSubscriptions(seed []config.SeedSubscription) []subscriptions.RepoSubscription {
	if len(seed) == 0 {
		return nil
	}
	out := make([]subscriptions.RepoSubscription, 0, len(seed))
	for _, entry := range seed {
		out = append(out, subscriptions.RepoSubscription{
			Repository:      entry.Repository,
			RegistrationID:  entry.RegistrationID,
			EventTypes:      entry.EventTypes,
			SessionOverride: entry.Session,
		})
	}
	return out
}
