// Package subscriptions is the authoritative record of repository webhook
// subscriptions. State lives in memory for the lifetime of the process and
// every mutation is persisted to SQLite. On startup the store migrates from
// whichever storage generation is present: a legacy JSON snapshot, the
// SQLite store, or subscriptions embedded in configuration.
package subscriptions

import "time"

// RepoSubscription records one repository's webhook registration and
// routing intent.
type RepoSubscription struct {
	Repository      string    `json:"repository"`
	RegistrationID  int64     `json:"registration_id"`
	EventTypes      []string  `json:"event_types"`
	SessionOverride string    `json:"session,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
