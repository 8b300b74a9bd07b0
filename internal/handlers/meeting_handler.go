package handlers

import (
	"net/http"

	"github.com/synergysphere/server/internal/apperrors"
	"github.com/synergysphere/server/internal/models"
	"github.com/synergysphere/server/internal/services"
)

type MeetingHandler struct {
	Service *services.MeetingService
}

func NewMeetingHandler(service *services.MeetingService) *MeetingHandler {
	return &MeetingHandler{Service: service}
}

// GET /api/meetings
func (h *MeetingHandler) ListMeetingsHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	meetings, err := h.Service.List(r.Context(), actor)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, meetings)
}

// POST /api/meetings
func (h *MeetingHandler) CreateMeetingHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	var input services.CreateMeetingInput
	if err := decodeJSON(w, r, &input); err != nil {
		apperrors.WriteError(w, err)
		return
	}

	meeting, err := h.Service.Create(r.Context(), actor, input)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusCreated, meeting)
}

// GET /api/meetings/{id}
func (h *MeetingHandler) GetMeetingHandler(w http.ResponseWriter, r *http.Request) {
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
	meeting, err := h.Service.Get(r.Context(), actor, id)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, meeting)
}

// PUT /api/meetings/{id}
func (h *MeetingHandler) UpdateMeetingHandler(w http.ResponseWriter, r *http.Request) {
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
	var input services.UpdateMeetingInput
	if err := decodeJSON(w, r, &input); err != nil {
		apperrors.WriteError(w, err)
		return
	}

	meeting, err := h.Service.Update(r.Context(), actor, id, input)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, meeting)
}

// DELETE /api/meetings/{id}
func (h *MeetingHandler) DeleteMeetingHandler(w http.ResponseWriter, r *http.Request) {
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
	apperrors.WriteJSON(w, http.StatusOK, message("Meeting deleted"))
}

// POST /api/meetings/{id}/respond {"status": "accepted"|"declined"}
func (h *MeetingHandler) RespondHandler(w http.ResponseWriter, r *http.Request) {
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
	var body struct {
		Status models.AttendeeStatus `json:"status"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		apperrors.WriteError(w, err)
		return
	}

	meeting, err := h.Service.Respond(r.Context(), actor, id, body.Status)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, meeting)
}
