// Package tunnel supplies the current public hostname and the webhook
// delivery configuration. The hostname comes from a dynamic tunnel and can
// change while the process runs.
package tunnel

import (
	"context"
	"strings"
	"sync"
)

// HostnameProvider yields the current public hostname, empty when unknown.
type HostnameProvider interface {
	Hostname(ctx context.Context) (string, error)
}

// DeliveryConfig carries the base path and registration secret used when
// creating or updating webhook registrations.
type DeliveryConfig struct {
	BasePath string
	Secret   string
}

// ConfigProvider yields the delivery configuration, ok=false when absent.
type ConfigProvider interface {
	DeliveryConfig(ctx context.Context) (DeliveryConfig, bool)
}

// Tracker holds the last known tunnel hostname. It is seeded from
// configuration and updated by hostname-change signals.
type Tracker struct {
	mu       sync.RWMutex
	hostname string
}

func NewTracker(initial string) *Tracker {
	return &Tracker{hostname: strings.TrimSpace(initial)}
}

func (t *Tracker) Hostname(ctx context.Context) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.hostname, nil
}

func (t *Tracker) Set(hostname string) {
	t.mu.Lock()
	t.hostname = strings.TrimSpace(hostname)
	t.mu.Unlock()
}

// StaticConfig is a ConfigProvider backed by fixed values.
type StaticConfig struct {
	Config DeliveryConfig
}

func (s StaticConfig) DeliveryConfig(ctx context.Context) (DeliveryConfig, bool) {
	if strings.TrimSpace(s.Config.BasePath) == "" {
		return DeliveryConfig{}, false
	}
	return s.Config, true
}
