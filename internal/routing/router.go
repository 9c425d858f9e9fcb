// Package routing resolves which downstream session an inbound webhook
// event belongs to. Resolution is layered: a per-repository override from
// the subscription store wins over the routing table, an exact table key
// wins over the wildcard, and the legacy session fields are the last
// fallback before "no route".
package routing

import (
	"errors"
	"strings"

	"github.com/hookpilot/hookpilot/internal/subscriptions"
)

// WildcardKey matches any event type without an exact table entry.
const WildcardKey = "*"

// ErrMissingEventType distinguishes a malformed event from a valid but
// unconfigured one.
var ErrMissingEventType = errors.New("missing event type")

// Table is the static routing configuration.
type Table struct {
	Routes map[string]string
	// PRReviewSession and ReleaseSession predate the table and are only
	// consulted when neither an exact nor a wildcard entry matches.
	PRReviewSession string
	ReleaseSession  string
}

type Router struct {
	store *subscriptions.Store
	table Table
}

func NewRouter(store *subscriptions.Store, table Table) *Router {
	return &Router{store: store, table: table}
}

// ResolveSession returns the session for an event type, optionally scoped
// to an originating repository. An empty session with a nil error means no
// route is configured.
func (r *Router) ResolveSession(eventType, repository string) (string, error) {
	if strings.TrimSpace(eventType) == "" {
		return "", ErrMissingEventType
	}

	if repository != "" && r.store != nil {
		if sub, ok := r.store.Get(repository); ok {
			if override := strings.TrimSpace(sub.SessionOverride); override != "" {
				return override, nil
			}
		}
	}

	if session := strings.TrimSpace(r.table.Routes[eventType]); session != "" {
		return session, nil
	}
	if session := strings.TrimSpace(r.table.Routes[WildcardKey]); session != "" {
		return session, nil
	}

	switch eventType {
	case "pull_request", "pull_request_review":
		if r.table.PRReviewSession != "" {
			return r.table.PRReviewSession, nil
		}
	case "release", "push":
		if r.table.ReleaseSession != "" {
			return r.table.ReleaseSession, nil
		}
	}
	return "", nil
}

// WebhookEvent is one inbound delivery from the remote platform.
type WebhookEvent struct {
	EventType  string
	DeliveryID string
	Payload    map[string]any
}

// Decision is the routing outcome for an inbound event.
type Decision struct {
	Routed  bool   `json:"routed"`
	Session string `json:"session,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// HandleWebhook resolves an inbound event to a routing decision. A payload
// without a repository field simply gets no per-repository override.
func (r *Router) HandleWebhook(event WebhookEvent) Decision {
	session, err := r.ResolveSession(event.EventType, repositoryFromPayload(event.Payload))
	if err != nil {
		return Decision{Reason: "Missing event type"}
	}
	if session == "" {
		return Decision{Reason: "No session configured for event type: " + event.EventType}
	}
	return Decision{Routed: true, Session: session}
}

func repositoryFromPayload(payload map[string]any) string {
	repo, ok := payload["repository"].(map[string]any)
	if !ok {
		return ""
	}
	fullName, _ := repo["full_name"].(string)
	return fullName
}
