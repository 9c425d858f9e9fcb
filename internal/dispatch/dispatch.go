// Package dispatch delivers routed webhook events to session endpoints as
// structured-mode CloudEvents over HTTP, with an HMAC-SHA256 signature over
// the body so receivers can verify origin.
package dispatch

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	ceevent "github.com/cloudevents/sdk-go/v2/event"
	"github.com/google/uuid"

	"github.com/hookpilot/hookpilot/internal/routing"
)

const (
	// SignatureHeader carries the hex HMAC of the request body.
	SignatureHeader = "X-Webhook-Signature"

	eventTypePrefix = "com.github."
	eventSource     = "hookpilot/github"
)

// ErrNoEndpoint indicates the routed session has no configured endpoint.
var ErrNoEndpoint = errors.New("no endpoint configured for session")

// Dispatcher posts events to the endpoint registered for each session.
type Dispatcher struct {
	Endpoints  map[string]string
	Token      string
	Secret     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Dispatch forwards one inbound event to the named session.
func (d Dispatcher) Dispatch(ctx context.Context, session string, evt routing.WebhookEvent) error {
	endpoint := strings.TrimSpace(d.Endpoints[session])
	if endpoint == "" {
		return fmt.Errorf("%w: %s", ErrNoEndpoint, session)
	}

	event := ceevent.New()
	deliveryID := strings.TrimSpace(evt.DeliveryID)
	if deliveryID == "" {
		deliveryID = uuid.NewString()
	}
	event.SetID(deliveryID)
	event.SetType(eventTypePrefix + evt.EventType)
	event.SetSource(eventSource)
	event.SetTime(time.Now().UTC())
	if err := event.SetData(ceevent.ApplicationJSON, evt.Payload); err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	httpClient := d.HTTPClient
	if httpClient == nil {
		timeout := d.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/cloudevents+json")
	if token := strings.TrimSpace(d.Token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if strings.TrimSpace(d.Secret) != "" {
		req.Header.Set(SignatureHeader, sign(body, d.Secret))
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("session rejected event: status=%s body=%s", resp.Status, strings.TrimSpace(string(payload)))
	}
	return nil
}

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
