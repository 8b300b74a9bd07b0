package handlers

import (
	"net/http"
	"strconv"

	"github.com/synergysphere/server/internal/apperrors"
	"github.com/synergysphere/server/internal/models"
	"github.com/synergysphere/server/internal/services"
	"github.com/synergysphere/server/pkg/logger"
)

type NotificationHandler struct {
	Service *services.NotificationService
}

func NewNotificationHandler(service *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{Service: service}
}

// GET /api/notifications?read=&type=&page=&limit=
func (h *NotificationHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	q := r.URL.Query()
	filter := models.NotificationFilter{
		Type:  models.NotificationType(q.Get("type")),
		Page:  queryInt(r, "page"),
		Limit: queryInt(r, "limit"),
	}
	if raw := q.Get("read"); raw != "" {
		read, err := strconv.ParseBool(raw)
		if err != nil {
			apperrors.WriteError(w, apperrors.NewValidationError("invalid filter").WithField("read", "must be true or false"))
			return
		}
		filter.Read = &read
	}

	page, err := h.Service.List(r.Context(), actor.ID, filter)
	if err != nil {
		logger.Log.Errorf("Failed to fetch notifications: %v", err)
		apperrors.WriteError(w, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, page)
}

// GET /api/notifications/unread-count
func (h *NotificationHandler) UnreadCountHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	count, err := h.Service.UnreadCount(r.Context(), actor.ID)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, map[string]int64{"unreadCount": count})
}

// GET /api/notifications/types
func (h *NotificationHandler) TypesHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	types, err := h.Service.Types(r.Context(), actor.ID)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, types)
}

// GET /api/notifications/stats
func (h *NotificationHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	stats, err := h.Service.Stats(r.Context(), actor.ID)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, stats)
}

// PUT /api/notifications/read-all
func (h *NotificationHandler) MarkAllReadHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	n, err := h.Service.MarkAllRead(r.Context(), actor.ID)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "All notifications marked as read",
		"updated": n,
	})
}

// DELETE /api/notifications/clear-read
func (h *NotificationHandler) ClearReadHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	n, err := h.Service.ClearRead(r.Context(), actor.ID)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Read notifications cleared",
		"deleted": n,
	})
}

// GET /api/notifications/{id}
func (h *NotificationHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	notif, err := h.Service.Get(r.Context(), id, actor.ID)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, notif)
}

// PUT /api/notifications/{id}/read
func (h *NotificationHandler) MarkReadHandler(w http.ResponseWriter, r *http.Request) {
	h.setRead(w, r, true)
}

// PUT /api/notifications/{id}/unread
func (h *NotificationHandler) MarkUnreadHandler(w http.ResponseWriter, r *http.Request) {
	h.setRead(w, r, false)
}

func (h *NotificationHandler) setRead(w http.ResponseWriter, r *http.Request, read bool) {
	actor, err := actorFrom(r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	var notif *models.Notification
	if read {
		notif, err = h.Service.MarkRead(r.Context(), id, actor.ID)
	} else {
		notif, err = h.Service.MarkUnread(r.Context(), id, actor.ID)
	}
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, notif)
}

// DELETE /api/notifications/{id}
func (h *NotificationHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	if err := h.Service.Delete(r.Context(), id, actor.ID); err != nil {
		apperrors.WriteError(w, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, message("Notification deleted"))
}
