package routes

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hookpilot/hookpilot/internal/hooks"
	"github.com/hookpilot/hookpilot/internal/observability"
	"github.com/hookpilot/hookpilot/internal/routing"
)

const (
	githubEventHeader    = "X-GitHub-Event"
	githubDeliveryHeader = "X-GitHub-Delivery"
	maxPayloadBytes      = 1 << 20
)

func (a *API) handleGitHubWebhook(c echo.Context) error {
	eventType := strings.TrimSpace(c.Request().Header.Get(githubEventHeader))
	deliveryID := strings.TrimSpace(c.Request().Header.Get(githubDeliveryHeader))
	ctx := observability.WithRequestMetadata(c.Request().Context(), c.Response().Header().Get(echo.HeaderXRequestID), deliveryID)

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxPayloadBytes))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid payload", hooks.ErrorUnknown))
	}

	// A missing or malformed payload only costs the per-repository
	// override; the event can still route through the table.
	var payload map[string]any
	if len(body) > 0 {
		_ = json.Unmarshal(body, &payload)
	}

	event := routing.WebhookEvent{EventType: eventType, DeliveryID: deliveryID, Payload: payload}
	decision := a.router.HandleWebhook(event)
	if !decision.Routed {
		status := http.StatusOK
		if eventType == "" {
			status = http.StatusBadRequest
		}
		a.log.InfoContext(ctx, "webhook not routed", "event_type", eventType, "reason", decision.Reason)
		return c.JSON(status, decision)
	}

	if err := a.dispatcher.Dispatch(ctx, decision.Session, event); err != nil {
		a.log.WarnContext(ctx, "event dispatch failed", "session", decision.Session, "event_type", eventType, "error", err)
	} else {
		a.log.InfoContext(ctx, "event routed", "session", decision.Session, "event_type", eventType)
	}
	return c.JSON(http.StatusAccepted, decision)
}
