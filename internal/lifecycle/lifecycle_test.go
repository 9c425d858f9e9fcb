package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/hookpilot/hookpilot/internal/hooks"
	"github.com/hookpilot/hookpilot/internal/subscriptions"
	"github.com/hookpilot/hookpilot/internal/tunnel"
)

// fakeRemote tracks one registration per hooks collection and applies the
// PATCH calls the reconciler issues during a hostname transition.
type fakeRemote struct {
	urls   map[string]string
	nextID int64
	ids    map[string]int64
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{urls: make(map[string]string), nextID: 10, ids: make(map[string]int64)}
}

func (f *fakeRemote) register(path, url string) {
	f.nextID++
	f.urls[path] = url
	f.ids[path] = f.nextID
}

func (f *fakeRemote) CheckAuth(ctx context.Context) bool { return true }

func (f *fakeRemote) Run(ctx context.Context, args ...string) (string, error) {
	if len(args) == 2 && args[0] == "api" {
		url, ok := f.urls[args[1]]
		if !ok {
			return "[]", nil
		}
		raw, err := json.Marshal([]map[string]any{{"id": f.ids[args[1]], "config": map[string]any{"url": url}}})
		return string(raw), err
	}
	if len(args) > 3 && args[1] == "-X" && args[2] == "PATCH" {
		path := args[3]
		for collection, id := range f.ids {
			if path != fmt.Sprintf("%s/%d", collection, id) {
				continue
			}
			for _, arg := range args {
				if strings.HasPrefix(arg, "config[url]=") {
					f.urls[collection] = strings.TrimPrefix(arg, "config[url]=")
				}
			}
			return "{}", nil
		}
		return "", fmt.Errorf("HTTP 404: Not Found")
	}
	return "", fmt.Errorf("unexpected invocation: %v", args)
}

func TestHostnameChangedMovesEveryTrackedScope(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := subscriptions.Open(subscriptions.Options{Log: log})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	store.Put(subscriptions.RepoSubscription{Repository: "acme/widgets", RegistrationID: 11})

	remote := newFakeRemote()
	remote.register("orgs/acme/hooks", "https://old.example.com/webhooks/github")
	remote.register("repos/acme/widgets/hooks", "https://old.example.com/webhooks/github")

	tracker := tunnel.NewTracker("old.example.com")
	delivery := tunnel.StaticConfig{Config: tunnel.DeliveryConfig{BasePath: "/webhooks", Secret: "s3cret"}}
	reconciler := hooks.NewReconciler(remote, store, tracker, delivery, log)
	orchestrator := New(reconciler, store, tracker, []string{"acme"}, log)

	orchestrator.HostnameChanged(context.Background(), "old.example.com", "new.example.com")

	want := "https://new.example.com/webhooks/github"
	if got := remote.urls["orgs/acme/hooks"]; got != want {
		t.Fatalf("org registration not moved: %s", got)
	}
	if got := remote.urls["repos/acme/widgets/hooks"]; got != want {
		t.Fatalf("repo registration not moved: %s", got)
	}
	host, err := tracker.Hostname(context.Background())
	if err != nil || host != "new.example.com" {
		t.Fatalf("tracker not updated: %q, %v", host, err)
	}

	// The same signal delivered again finds every scope already on the new
	// URL and changes nothing.
	orchestrator.HostnameChanged(context.Background(), "old.example.com", "new.example.com")
	if got := remote.urls["orgs/acme/hooks"]; got != want {
		t.Fatalf("repeat signal must be a no-op, got %s", got)
	}
}

func TestInfrastructureReadyContinuesPastFailingOrg(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := subscriptions.Open(subscriptions.Options{Log: log})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	remote := newFakeRemote()
	remote.register("orgs/initech/hooks", "https://current.example.com/webhooks/github")

	tracker := tunnel.NewTracker("current.example.com")
	delivery := tunnel.StaticConfig{Config: tunnel.DeliveryConfig{BasePath: "/webhooks", Secret: "s3cret"}}
	reconciler := hooks.NewReconciler(remote, store, tracker, delivery, log)

	// "bad name" fails validation; the orchestrator must still reconcile
	// the org after it.
	orchestrator := New(reconciler, store, tracker, []string{"bad name", "initech"}, log)
	orchestrator.InfrastructureReady(context.Background())

	if got := remote.urls["orgs/initech/hooks"]; got != "https://current.example.com/webhooks/github" {
		t.Fatalf("healthy org must still be reconciled: %s", got)
	}
}
