package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/synergysphere/server/internal/apperrors"
	"github.com/synergysphere/server/internal/integrations/github"
	"github.com/synergysphere/server/internal/services"
	"github.com/synergysphere/server/pkg/logger"
)

type GitHubHandler struct {
	Service       *services.GitHubService
	WebhookSecret string
}

func NewGitHubHandler(service *services.GitHubService, webhookSecret string) *GitHubHandler {
	return &GitHubHandler{Service: service, WebhookSecret: webhookSecret}
}

// POST /api/github/webhook. Authenticated by the payload signature, not a bearer token.
func (h *GitHubHandler) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	event, err := github.ParseWebhook(r, h.WebhookSecret)
	if err != nil {
		logger.Log.WithError(err).Warn("Rejected GitHub webhook")
		apperrors.WriteError(w, err)
		return
	}
	if event == nil {
		apperrors.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "ignored"})
		return
	}

	task, err := h.Service.HandleIssueEvent(r.Context(), event)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	logger.Log.WithFields(logrus.Fields{
		"repository": event.Repo,
		"action":     event.Action,
		"tracked":    task != nil,
	}).Info("GitHub webhook processed")

	resp := map[string]interface{}{"status": "processed"}
	if task != nil {
		resp["taskId"] = task.ID.Hex()
	}
	apperrors.WriteJSON(w, http.StatusOK, resp)
}

// POST /api/github/import-issues
func (h *GitHubHandler) ImportIssuesHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	var input services.ImportIssuesInput
	if err := decodeJSON(w, r, &input); err != nil {
		apperrors.WriteError(w, err)
		return
	}

	result, err := h.Service.ImportIssues(r.Context(), actor, input)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, result)
}

// PUT /api/github/token
func (h *GitHubHandler) SaveTokenHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	var input services.GitHubTokenInput
	if err := decodeJSON(w, r, &input); err != nil {
		apperrors.WriteError(w, err)
		return
	}

	status, err := h.Service.SaveToken(r.Context(), actor, input)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, status)
}

// DELETE /api/github/token
func (h *GitHubHandler) DisconnectHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	if err := h.Service.Disconnect(r.Context(), actor); err != nil {
		apperrors.WriteError(w, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, message("GitHub disconnected"))
}

// GET /api/github/status
func (h *GitHubHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	status, err := h.Service.Status(r.Context(), actor)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, status)
}
