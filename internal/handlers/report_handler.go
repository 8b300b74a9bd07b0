package handlers

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/synergysphere/server/internal/apperrors"
	"github.com/synergysphere/server/internal/services"
	"github.com/synergysphere/server/pkg/logger"
)

type ReportHandler struct {
	Service *services.ReportService
}

func NewReportHandler(service *services.ReportService) *ReportHandler {
	return &ReportHandler{Service: service}
}

// POST /api/reports/generate runs the weekly report on demand. It is not tied
// to the scheduler window, so every call produces a new document.
func (h *ReportHandler) GenerateHandler(w http.ResponseWriter, r *http.Request) {
	result, err := h.Service.Generate(r.Context(), time.Now())
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"message":     "Weekly report generated",
		"filename":    result.Artifact.Name,
		"downloadUrl": result.Artifact.DownloadURL,
		"notified":    result.Notified,
		"emailed":     result.Emailed,
	})
}

// GET /api/reports
func (h *ReportHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	artifacts, err := h.Service.List(r.Context())
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, artifacts)
}

// GET /api/reports/download/{filename}
func (h *ReportHandler) DownloadHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["filename"]
	body, artifact, err := h.Service.Open(r.Context(), name)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+artifact.Name+`"`)
	if artifact.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(artifact.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		logger.Log.WithError(err).WithField("filename", name).Warn("Report download interrupted")
	}
}

// DELETE /api/reports/{filename}
func (h *ReportHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	if err := h.Service.Delete(r.Context(), actor, mux.Vars(r)["filename"]); err != nil {
		apperrors.WriteError(w, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, message("Report deleted"))
}
