// Package lifecycle reacts to infrastructure trigger signals. It owns no
// reconciliation logic of its own; it fans signals out to the reconciler
// per scope and relies on the reconciler's idempotence when the same signal
// arrives more than once.
package lifecycle

import (
	"context"
	"log/slog"

	"github.com/hookpilot/hookpilot/internal/hooks"
	"github.com/hookpilot/hookpilot/internal/subscriptions"
	"github.com/hookpilot/hookpilot/internal/tunnel"
)

type Orchestrator struct {
	reconciler *hooks.Reconciler
	store      *subscriptions.Store
	tracker    *tunnel.Tracker
	orgs       []string
	log        *slog.Logger
}

func New(reconciler *hooks.Reconciler, store *subscriptions.Store, tracker *tunnel.Tracker, orgs []string, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{reconciler: reconciler, store: store, tracker: tracker, orgs: orgs, log: log}
}

// InfrastructureReady re-runs organization setup for every configured org.
// Failures are logged per scope and do not stop the remaining scopes.
func (o *Orchestrator) InfrastructureReady(ctx context.Context) {
	for _, org := range o.orgs {
		result, err := o.reconciler.SetupOrgWebhook(ctx, org)
		if err != nil {
			o.log.Warn("organization webhook setup failed", "org", org, "kind", hooks.ClassifyError(err), "error", err)
			continue
		}
		o.log.Info("organization webhook ready", "org", org, "url", result.URL, "hook_id", result.RegistrationID)
	}
}

// HostnameChanged runs the explicit update algorithm for every configured
// organization and every tracked repository subscription, then records the
// new hostname for future reconciliations.
func (o *Orchestrator) HostnameChanged(ctx context.Context, oldHost, newHost string) {
	for _, org := range o.orgs {
		if _, err := o.reconciler.UpdateOrgWebhook(ctx, org, oldHost, newHost); err != nil {
			o.log.Warn("organization webhook update failed", "org", org, "kind", hooks.ClassifyError(err), "error", err)
		}
	}
	for _, sub := range o.store.List() {
		if _, err := o.reconciler.UpdateRepoWebhook(ctx, sub.Repository, oldHost, newHost); err != nil {
			o.log.Warn("repository webhook update failed", "repository", sub.Repository, "kind", hooks.ClassifyError(err), "error", err)
		}
	}
	o.tracker.Set(newHost)
	o.log.Info("hostname change applied", "old", oldHost, "new", newHost)
}
