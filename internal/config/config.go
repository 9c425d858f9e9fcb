package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment   string
	Server        ServerConfig
	Store         StoreConfig
	Webhook       WebhookConfig
	Routing       RoutingConfig
	Organizations []string
}

type ServerConfig struct {
	Port int
}

type StoreConfig struct {
	Path       string
	LegacyPath string
	// Seed holds subscriptions embedded in configuration, used only when
	// neither the legacy snapshot nor the structured store has any rows.
	Seed []SeedSubscription
}

type SeedSubscription struct {
	Repository     string   `json:"repository"`
	RegistrationID int64    `json:"registration_id"`
	EventTypes     []string `json:"event_types"`
	Session        string   `json:"session"`
}

type WebhookConfig struct {
	BasePath      string
	Secret        string
	Hostname      string
	RemoteTimeout time.Duration
}

type RoutingConfig struct {
	// Table maps an event type to a session name; the "*" key is the
	// wildcard fallback.
	Table map[string]string
	// PRReviewSession and ReleaseSession are the pre-table routing fields
	// kept for configurations that predate the table.
	PRReviewSession string
	ReleaseSession  string
	// SessionEndpoints maps a session name to the HTTP endpoint routed
	// events are delivered to.
	SessionEndpoints map[string]string
	DispatchSecret   string
	DispatchToken    string
}

func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("hookpilot_env", "")
	v.SetDefault("app_env", "")
	v.SetDefault("go_env", "")
	v.SetDefault("hookpilot_port", 8090)
	v.SetDefault("hookpilot_db_path", "data/subscriptions")
	v.SetDefault("hookpilot_legacy_subscriptions_path", "data/subscriptions.json")
	v.SetDefault("hookpilot_seed_subscriptions", "")
	v.SetDefault("hookpilot_webhook_base_path", "/webhooks")
	v.SetDefault("hookpilot_webhook_secret", "")
	v.SetDefault("hookpilot_tunnel_hostname", "")
	v.SetDefault("hookpilot_remote_timeout_ms", 15000)
	v.SetDefault("hookpilot_orgs", "")
	v.SetDefault("hookpilot_routes", "")
	v.SetDefault("hookpilot_pr_review_session", "")
	v.SetDefault("hookpilot_release_session", "")
	v.SetDefault("hookpilot_session_endpoints", "")
	v.SetDefault("hookpilot_dispatch_secret", "")
	v.SetDefault("hookpilot_dispatch_token", "")

	env := resolveEnvironment(v)
	port := v.GetInt("hookpilot_port")
	if port <= 0 || port > 65535 {
		return Config{}, fmt.Errorf("invalid HOOKPILOT_PORT: %d", port)
	}

	remoteTimeout := v.GetInt("hookpilot_remote_timeout_ms")
	if remoteTimeout <= 0 {
		remoteTimeout = 15000
	}
	if remoteTimeout > 120000 {
		remoteTimeout = 120000
	}

	basePath := strings.TrimSpace(v.GetString("hookpilot_webhook_base_path"))
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	basePath = strings.TrimRight(basePath, "/")

	seed, err := parseSeedSubscriptions(v.GetString("hookpilot_seed_subscriptions"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid HOOKPILOT_SEED_SUBSCRIPTIONS: %w", err)
	}

	cfg := Config{
		Environment: env,
		Server:      ServerConfig{Port: port},
		Store: StoreConfig{
			Path:       strings.TrimSpace(v.GetString("hookpilot_db_path")),
			LegacyPath: strings.TrimSpace(v.GetString("hookpilot_legacy_subscriptions_path")),
			Seed:       seed,
		},
		Webhook: WebhookConfig{
			BasePath:      basePath,
			Secret:        strings.TrimSpace(v.GetString("hookpilot_webhook_secret")),
			Hostname:      strings.TrimSpace(v.GetString("hookpilot_tunnel_hostname")),
			RemoteTimeout: time.Duration(remoteTimeout) * time.Millisecond,
		},
		Routing: RoutingConfig{
			Table:            parsePairList(v.GetString("hookpilot_routes")),
			PRReviewSession:  strings.TrimSpace(v.GetString("hookpilot_pr_review_session")),
			ReleaseSession:   strings.TrimSpace(v.GetString("hookpilot_release_session")),
			SessionEndpoints: parsePairList(v.GetString("hookpilot_session_endpoints")),
			DispatchSecret:   strings.TrimSpace(v.GetString("hookpilot_dispatch_secret")),
			DispatchToken:    strings.TrimSpace(v.GetString("hookpilot_dispatch_token")),
		},
		Organizations: parseList(v.GetString("hookpilot_orgs")),
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = "data/subscriptions"
	}

	return cfg, nil
}

// parsePairList parses "key=value,key=value" env lists into a map.
func parsePairList(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pair := strings.SplitN(part, "=", 2)
		if len(pair) != 2 {
			continue
		}
		key := strings.TrimSpace(pair[0])
		value := strings.TrimSpace(pair[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := make([]string, 0, 4)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseSeedSubscriptions(raw string) ([]SeedSubscription, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var seed []SeedSubscription
	if err := json.Unmarshal([]byte(raw), &seed); err != nil {
		return nil, err
	}
	out := seed[:0]
	for _, entry := range seed {
		entry.Repository = strings.TrimSpace(entry.Repository)
		if entry.Repository == "" {
			continue
		}
		out = append(out, entry)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func (c Config) IsLocalDevelopment() bool {
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "", "local", "dev", "development", "test":
		return true
	default:
		return false
	}
}

func resolveEnvironment(v *viper.Viper) string {
	for _, key := range []string{"hookpilot_env", "app_env", "go_env"} {
		value := strings.TrimSpace(v.GetString(key))
		if value != "" {
			return strings.ToLower(value)
		}
	}
	return ""
}
