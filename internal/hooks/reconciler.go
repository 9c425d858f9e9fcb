// Package hooks reconciles webhook registrations on the remote platform
// with the currently desired delivery URL. The target state for every scope
// is "exactly one registration pointing at the desired URL"; the reconciler
// reaches it by adopting an exact match, updating a stale registration in
// place, or creating a fresh one, in that order of preference.
package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hookpilot/hookpilot/internal/ghcli"
	"github.com/hookpilot/hookpilot/internal/subscriptions"
	"github.com/hookpilot/hookpilot/internal/tunnel"
)

// deliveryPathSuffix terminates every webhook URL this system manages; a
// registration ending in it but hosted elsewhere is a stale survivor of a
// hostname change.
const deliveryPathSuffix = "/github"

var (
	orgDefaultEvents  = []string{"pull_request", "pull_request_review"}
	repoDefaultEvents = []string{"push", "pull_request", "pull_request_review", "issues", "issue_comment"}
)

// Reconciler drives org- and repo-scoped webhook registrations toward the
// desired URL and keeps the subscription store in step for repo scopes.
type Reconciler struct {
	gh       ghcli.Runner
	store    *subscriptions.Store
	hostname tunnel.HostnameProvider
	delivery tunnel.ConfigProvider
	log      *slog.Logger
}

func NewReconciler(gh ghcli.Runner, store *subscriptions.Store, hostname tunnel.HostnameProvider, delivery tunnel.ConfigProvider, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{gh: gh, store: store, hostname: hostname, delivery: delivery, log: log}
}

// SetupResult reports the registration a reconciliation converged on.
type SetupResult struct {
	URL            string `json:"url"`
	RegistrationID int64  `json:"registration_id"`
}

// SubscribeOptions customizes a repository subscription.
type SubscribeOptions struct {
	EventTypes []string
	Session    string
}

// registration mirrors the hook objects returned by the remote API.
type registration struct {
	ID     int64 `json:"id"`
	Config struct {
		URL string `json:"url"`
	} `json:"config"`
}

// SetupOrgWebhook ensures the organization has exactly one registration
// pointing at the current desired URL, listening for the PR event set.
func (r *Reconciler) SetupOrgWebhook(ctx context.Context, org string) (SetupResult, error) {
	if !ValidIdentifier(org) {
		return SetupResult{}, fmt.Errorf("%w: %q is not a valid organization name", ErrInvalidIdentifier, org)
	}
	return r.reconcileScope(ctx, "orgs/"+org+"/hooks", orgDefaultEvents)
}

// UpdateOrgWebhook moves the organization registration from an explicitly
// named old hostname to a new one.
func (r *Reconciler) UpdateOrgWebhook(ctx context.Context, org, oldHost, newHost string) (SetupResult, error) {
	if !ValidIdentifier(org) {
		return SetupResult{}, fmt.Errorf("%w: %q is not a valid organization name", ErrInvalidIdentifier, org)
	}
	return r.updateScope(ctx, "orgs/"+org+"/hooks", oldHost, newHost)
}

// UpdateRepoWebhook is the repository-scoped explicit hostname transition.
func (r *Reconciler) UpdateRepoWebhook(ctx context.Context, repository, oldHost, newHost string) (SetupResult, error) {
	owner, name, err := SplitRepo(repository)
	if err != nil {
		return SetupResult{}, err
	}
	return r.updateScope(ctx, "repos/"+owner+"/"+name+"/hooks", oldHost, newHost)
}

// SubscribeRepo registers a repository webhook and records the subscription.
// A repository with an existing record is rejected so its event list and
// session override are never silently overwritten.
func (r *Reconciler) SubscribeRepo(ctx context.Context, repository string, opts SubscribeOptions) (SetupResult, error) {
	repository = strings.TrimSpace(repository)
	owner, name, err := SplitRepo(repository)
	if err != nil {
		return SetupResult{}, err
	}
	if _, exists := r.store.Get(repository); exists {
		return SetupResult{}, fmt.Errorf("%w: %s, unsubscribe first", ErrAlreadySubscribed, repository)
	}

	events := opts.EventTypes
	if len(events) == 0 {
		events = append([]string(nil), repoDefaultEvents...)
	}

	result, err := r.reconcileScope(ctx, "repos/"+owner+"/"+name+"/hooks", events)
	if err != nil {
		return SetupResult{}, err
	}

	r.store.Put(subscriptions.RepoSubscription{
		Repository:      repository,
		RegistrationID:  result.RegistrationID,
		EventTypes:      events,
		SessionOverride: strings.TrimSpace(opts.Session),
		CreatedAt:       time.Now().UTC(),
	})
	return result, nil
}

// UnsubscribeRepo deletes the remote registration and removes the local
// record. A registration already gone on the remote side counts as success.
func (r *Reconciler) UnsubscribeRepo(ctx context.Context, repository string) error {
	repository = strings.TrimSpace(repository)
	owner, name, err := SplitRepo(repository)
	if err != nil {
		return err
	}
	sub, ok := r.store.Get(repository)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotSubscribed, repository)
	}
	if !r.gh.CheckAuth(ctx) {
		return fmt.Errorf("%w: run `gh auth login`", ErrNotAuthenticated)
	}

	path := fmt.Sprintf("repos/%s/%s/hooks/%d", owner, name, sub.RegistrationID)
	if _, err := r.gh.Run(ctx, "api", "-X", "DELETE", path); err != nil {
		if !isNotFound(err) {
			return fmt.Errorf("%w: %v", ErrRemoteCallFailed, err)
		}
		r.log.Info("remote registration already absent", "repository", repository, "hook_id", sub.RegistrationID)
	}
	r.store.Remove(repository)
	return nil
}

// reconcileScope runs the setup algorithm against one hooks collection.
// Preference order: exact URL match, stale registration updated in place,
// fresh registration. The ordering is what keeps repeated hostname changes
// from accumulating duplicates.
func (r *Reconciler) reconcileScope(ctx context.Context, hooksPath string, events []string) (SetupResult, error) {
	if !r.gh.CheckAuth(ctx) {
		return SetupResult{}, fmt.Errorf("%w: run `gh auth login`", ErrNotAuthenticated)
	}

	desired, cfg, err := r.desiredTarget(ctx)
	if err != nil {
		return SetupResult{}, err
	}
	if strings.TrimSpace(cfg.Secret) == "" {
		return SetupResult{}, fmt.Errorf("%w for %s", ErrNoTokenConfigured, hooksPath)
	}

	hooks, err := r.listHooks(ctx, hooksPath)
	if err != nil {
		return SetupResult{}, err
	}

	if hook, ok := findByURL(hooks, desired); ok {
		return SetupResult{URL: desired, RegistrationID: hook.ID}, nil
	}

	if hook, ok := findStale(hooks, cfg.BasePath+deliveryPathSuffix); ok {
		if err := r.patchHookURL(ctx, hooksPath, hook.ID, desired); err != nil {
			// The stale registration may survive next to the new one; a
			// later reconciliation that finds the exact match leaves it
			// alone, so surface this loudly in the log.
			r.log.Warn("stale registration update failed, creating a new one", "path", hooksPath, "hook_id", hook.ID, "error", err)
		} else {
			r.log.Info("updated stale registration", "path", hooksPath, "hook_id", hook.ID, "url", desired)
			return SetupResult{URL: desired, RegistrationID: hook.ID}, nil
		}
	}

	id, err := r.createHook(ctx, hooksPath, desired, cfg.Secret, events)
	if err != nil {
		return SetupResult{}, err
	}
	r.log.Info("created registration", "path", hooksPath, "hook_id", id, "url", desired)
	return SetupResult{URL: desired, RegistrationID: id}, nil
}

// updateScope handles an explicit old-hostname to new-hostname transition.
// Unlike reconcileScope it reports a missing old registration as an error:
// the signal claimed a registration exists, and silently ignoring the
// mismatch would hide a wrong local belief about the scope.
func (r *Reconciler) updateScope(ctx context.Context, hooksPath, oldHost, newHost string) (SetupResult, error) {
	if !r.gh.CheckAuth(ctx) {
		return SetupResult{}, fmt.Errorf("%w: run `gh auth login`", ErrNotAuthenticated)
	}

	oldHost = strings.TrimSpace(oldHost)
	newHost = strings.TrimSpace(newHost)
	if oldHost == "" || newHost == "" {
		return SetupResult{}, fmt.Errorf("%w: both old and new hostnames are required", ErrNoURLAvailable)
	}
	cfg, ok := r.delivery.DeliveryConfig(ctx)
	if !ok {
		return SetupResult{}, fmt.Errorf("%w: delivery configuration absent", ErrNoURLAvailable)
	}

	oldURL := buildURL(oldHost, cfg.BasePath)
	newURL := buildURL(newHost, cfg.BasePath)

	hooks, err := r.listHooks(ctx, hooksPath)
	if err != nil {
		return SetupResult{}, err
	}

	// The same hostname-change signal can be delivered more than once.
	if hook, ok := findByURL(hooks, newURL); ok {
		return SetupResult{URL: newURL, RegistrationID: hook.ID}, nil
	}

	hook, ok := findByURL(hooks, oldURL)
	if !ok {
		return SetupResult{}, fmt.Errorf("%w: nothing under %s points at %s", ErrNoExistingRegistration, hooksPath, oldURL)
	}
	if err := r.patchHookURL(ctx, hooksPath, hook.ID, newURL); err != nil {
		return SetupResult{}, err
	}
	return SetupResult{URL: newURL, RegistrationID: hook.ID}, nil
}

// desiredTarget builds https://{hostname}{basePath}/github from the current
// tunnel hostname and delivery configuration.
func (r *Reconciler) desiredTarget(ctx context.Context) (string, tunnel.DeliveryConfig, error) {
	host, err := r.hostname.Hostname(ctx)
	if err != nil || strings.TrimSpace(host) == "" {
		return "", tunnel.DeliveryConfig{}, fmt.Errorf("%w: tunnel hostname unknown", ErrNoURLAvailable)
	}
	cfg, ok := r.delivery.DeliveryConfig(ctx)
	if !ok {
		return "", tunnel.DeliveryConfig{}, fmt.Errorf("%w: delivery configuration absent", ErrNoURLAvailable)
	}
	return buildURL(strings.TrimSpace(host), cfg.BasePath), cfg, nil
}

func buildURL(host, basePath string) string {
	return "https://" + host + basePath + deliveryPathSuffix
}

func (r *Reconciler) listHooks(ctx context.Context, hooksPath string) ([]registration, error) {
	out, err := r.gh.Run(ctx, "api", hooksPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteCallFailed, err)
	}
	var hooks []registration
	if err := json.Unmarshal([]byte(out), &hooks); err != nil {
		return nil, fmt.Errorf("%w: listing %s: %v", ErrInvalidResponseFormat, hooksPath, err)
	}
	return hooks, nil
}

func (r *Reconciler) createHook(ctx context.Context, hooksPath, url, secret string, events []string) (int64, error) {
	args := []string{"api", "-X", "POST", hooksPath, "-f", "name=web", "-F", "active=true"}
	for _, event := range events {
		args = append(args, "-f", "events[]="+event)
	}
	args = append(args,
		"-f", "config[url]="+url,
		"-f", "config[content_type]=json",
		"-f", "config[secret]="+secret,
	)
	out, err := r.gh.Run(ctx, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRemoteCallFailed, err)
	}
	var created registration
	if err := json.Unmarshal([]byte(out), &created); err != nil || created.ID == 0 {
		return 0, fmt.Errorf("%w: create on %s returned no id", ErrInvalidResponseFormat, hooksPath)
	}
	return created.ID, nil
}

func (r *Reconciler) patchHookURL(ctx context.Context, hooksPath string, id int64, url string) error {
	_, err := r.gh.Run(ctx, "api", "-X", "PATCH", fmt.Sprintf("%s/%d", hooksPath, id),
		"-f", "config[url]="+url,
		"-f", "config[content_type]=json",
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteCallFailed, err)
	}
	return nil
}

func findByURL(hooks []registration, url string) (registration, bool) {
	for _, hook := range hooks {
		if hook.Config.URL == url {
			return hook, true
		}
	}
	return registration{}, false
}

// findStale returns a registration that ends in the delivery path suffix
// but is hosted somewhere else. Exact matches are resolved before this is
// consulted, so any suffix match here has a stale host.
func findStale(hooks []registration, suffix string) (registration, bool) {
	for _, hook := range hooks {
		if strings.HasSuffix(hook.Config.URL, suffix) {
			return hook, true
		}
	}
	return registration{}, false
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "404") || strings.Contains(strings.ToLower(msg), "not found")
}
