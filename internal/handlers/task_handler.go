package handlers

import (
	"net/http"
	"strings"

	"github.com/synergysphere/server/internal/apperrors"
	"github.com/synergysphere/server/internal/models"
	"github.com/synergysphere/server/internal/services"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TaskHandler struct {
	Service *services.TaskService
}

func NewTaskHandler(service *services.TaskService) *TaskHandler {
	return &TaskHandler{Service: service}
}

// GET /api/tasks?status=&priority=&assignee=&search=&page=&limit=
func (h *TaskHandler) ListTasksHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.TaskFilter{
		Status:   models.TaskStatus(q.Get("status")),
		Priority: models.Priority(q.Get("priority")),
		Search:   strings.TrimSpace(q.Get("search")),
		Page:     queryInt(r, "page"),
		Limit:    queryInt(r, "limit"),
	}
	if raw := q.Get("assignee"); raw != "" {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			apperrors.WriteError(w, apperrors.NewValidationError("invalid filter").WithField("assignee", "must be a valid id"))
			return
		}
		filter.Assignee = &id
	}

	page, err := h.Service.List(r.Context(), filter)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, page)
}

// POST /api/tasks
func (h *TaskHandler) CreateTaskHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	var input services.CreateTaskInput
	if err := decodeJSON(w, r, &input); err != nil {
		apperrors.WriteError(w, err)
		return
	}

	task, err := h.Service.Create(r.Context(), actor, input)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusCreated, task)
}

// GET /api/tasks/{id}
func (h *TaskHandler) GetTaskHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	task, err := h.Service.Get(r.Context(), id)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, task)
}

// PUT /api/tasks/{id}
func (h *TaskHandler) UpdateTaskHandler(w http.ResponseWriter, r *http.Request) {
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
	var input services.UpdateTaskInput
	if err := decodeJSON(w, r, &input); err != nil {
		apperrors.WriteError(w, err)
		return
	}

	task, err := h.Service.Update(r.Context(), actor, id, input)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, task)
}

// DELETE /api/tasks/{id}
func (h *TaskHandler) DeleteTaskHandler(w http.ResponseWriter, r *http.Request) {
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

	if err := h.Service.Delete(r.Context(), actor, id); err != nil {
		apperrors.WriteError(w, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, message("Task deleted"))
}

// POST /api/tasks/{id}/feedback
func (h *TaskHandler) AddFeedbackHandler(w http.ResponseWriter, r *http.Request) {
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
	var input services.FeedbackInput
	if err := decodeJSON(w, r, &input); err != nil {
		apperrors.WriteError(w, err)
		return
	}

	task, err := h.Service.AddFeedback(r.Context(), actor, id, input)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusCreated, task)
}
