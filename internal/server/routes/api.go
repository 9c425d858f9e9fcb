// Package routes exposes the reconciler, subscription store, and lifecycle
// signals over HTTP.
package routes

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hookpilot/hookpilot/internal/dispatch"
	"github.com/hookpilot/hookpilot/internal/hooks"
	"github.com/hookpilot/hookpilot/internal/lifecycle"
	"github.com/hookpilot/hookpilot/internal/routing"
	"github.com/hookpilot/hookpilot/internal/subscriptions"
)

type API struct {
	reconciler   *hooks.Reconciler
	store        *subscriptions.Store
	router       *routing.Router
	orchestrator *lifecycle.Orchestrator
	dispatcher   dispatch.Dispatcher
	log          *slog.Logger
}

func NewAPI(reconciler *hooks.Reconciler, store *subscriptions.Store, router *routing.Router, orchestrator *lifecycle.Orchestrator, dispatcher dispatch.Dispatcher, log *slog.Logger) *API {
	if log == nil {
		log = slog.Default()
	}
	return &API{
		reconciler:   reconciler,
		store:        store,
		router:       router,
		orchestrator: orchestrator,
		dispatcher:   dispatcher,
		log:          log,
	}
}

func (a *API) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", a.handleHealth)

	e.POST("/api/orgs/:org/webhook", a.handleOrgSetup)
	e.POST("/api/orgs/:org/webhook/update", a.handleOrgUpdate)

	e.POST("/api/subscriptions", a.handleSubscribe)
	e.DELETE("/api/subscriptions/:owner/:repo", a.handleUnsubscribe)
	e.GET("/api/subscriptions", a.handleListSubscriptions)

	e.POST("/api/signals/ready", a.handleInfrastructureReady)
	e.POST("/api/signals/hostname", a.handleHostnameChanged)

	e.POST("/webhooks/github", a.handleGitHubWebhook)
}

func (a *API) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleOrgSetup(c echo.Context) error {
	result, err := a.reconciler.SetupOrgWebhook(c.Request().Context(), c.Param("org"))
	if err != nil {
		return reconcileError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

type updateRequest struct {
	OldHost string `json:"old_host"`
	NewHost string `json:"new_host"`
}

func (a *API) handleOrgUpdate(c echo.Context) error {
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body", hooks.ErrorUnknown))
	}
	result, err := a.reconciler.UpdateOrgWebhook(c.Request().Context(), c.Param("org"), req.OldHost, req.NewHost)
	if err != nil {
		return reconcileError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

type subscribeRequest struct {
	Repository string   `json:"repository"`
	EventTypes []string `json:"event_types"`
	Session    string   `json:"session"`
}

type subscribeResponse struct {
	Repository     string `json:"repository"`
	URL            string `json:"url"`
	RegistrationID int64  `json:"registration_id"`
}

func (a *API) handleSubscribe(c echo.Context) error {
	var req subscribeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body", hooks.ErrorUnknown))
	}
	result, err := a.reconciler.SubscribeRepo(c.Request().Context(), req.Repository, hooks.SubscribeOptions{
		EventTypes: req.EventTypes,
		Session:    req.Session,
	})
	if err != nil {
		return reconcileError(c, err)
	}
	return c.JSON(http.StatusCreated, subscribeResponse{
		Repository:     strings.TrimSpace(req.Repository),
		URL:            result.URL,
		RegistrationID: result.RegistrationID,
	})
}

func (a *API) handleUnsubscribe(c echo.Context) error {
	repository := c.Param("owner") + "/" + c.Param("repo")
	if err := a.reconciler.UnsubscribeRepo(c.Request().Context(), repository); err != nil {
		return reconcileError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *API) handleListSubscriptions(c echo.Context) error {
	return c.JSON(http.StatusOK, a.store.List())
}

func (a *API) handleInfrastructureReady(c echo.Context) error {
	a.orchestrator.InfrastructureReady(c.Request().Context())
	return c.NoContent(http.StatusAccepted)
}

type hostnameChangedRequest struct {
	OldHost string `json:"old_host"`
	NewHost string `json:"new_host"`
}

func (a *API) handleHostnameChanged(c echo.Context) error {
	var req hostnameChangedRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body", hooks.ErrorUnknown))
	}
	if strings.TrimSpace(req.NewHost) == "" {
		return c.JSON(http.StatusBadRequest, errorBody("new_host is required", hooks.ErrorUnknown))
	}
	a.orchestrator.HostnameChanged(c.Request().Context(), req.OldHost, req.NewHost)
	return c.NoContent(http.StatusAccepted)
}

func errorBody(message string, kind hooks.ErrorKind) map[string]string {
	return map[string]string{"error": message, "kind": string(kind)}
}

// reconcileError maps a reconciler error kind onto an HTTP status. The
// error text is the one-line human-readable message the reconciler built.
func reconcileError(c echo.Context, err error) error {
	kind := hooks.ClassifyError(err)
	status := http.StatusBadGateway
	switch kind {
	case hooks.ErrorInvalidIdentifier:
		status = http.StatusBadRequest
	case hooks.ErrorNotAuthenticated:
		status = http.StatusUnauthorized
	case hooks.ErrorAlreadySubscribed:
		status = http.StatusConflict
	case hooks.ErrorNotSubscribed, hooks.ErrorNoExistingRegistration:
		status = http.StatusNotFound
	case hooks.ErrorNoURLAvailable, hooks.ErrorNoTokenConfigured:
		status = http.StatusConflict
	}
	return c.JSON(status, errorBody(err.Error(), kind))
}
