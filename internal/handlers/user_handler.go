package handlers

import (
	"net/http"

	"github.com/synergysphere/server/internal/apperrors"
	"github.com/synergysphere/server/internal/config"
	"github.com/synergysphere/server/internal/models"
	"github.com/synergysphere/server/internal/services"
	jwtutil "github.com/synergysphere/server/pkg/jwt"
	log "github.com/sirupsen/logrus"
)

// UserHandler handles registration, login and profile requests.
type UserHandler struct {
	Service *services.UserService
	Config  *config.Config
}

func NewUserHandler(service *services.UserService, cfg *config.Config) *UserHandler {
	return &UserHandler{
		Service: service,
		Config:  cfg,
	}
}

type authResponse struct {
	Token string            `json:"token"`
	User  models.PublicUser `json:"user"`
}

func (h *UserHandler) issueToken(w http.ResponseWriter, status int, user *models.User) {
	token, err := jwtutil.GenerateToken(user.ID.Hex(), user.Email, user.Role, h.Config.JWTSecret, h.Config.TokenExpiry)
	if err != nil {
		log.WithError(err).Error("Failed to generate JWT token")
		apperrors.WriteError(w, err)
		return
	}
	apperrors.WriteJSON(w, status, authResponse{Token: token, User: user.Public()})
}

// POST /api/auth/register
func (h *UserHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var input services.RegisterInput
	if err := decodeJSON(w, r, &input); err != nil {
		apperrors.WriteError(w, err)
		return
	}

	user, err := h.Service.Register(r.Context(), input)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	h.issueToken(w, http.StatusCreated, user)
}

// POST /api/auth/login
func (h *UserHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var credentials struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &credentials); err != nil {
		apperrors.WriteError(w, err)
		return
	}

	user, err := h.Service.Authenticate(r.Context(), credentials.Email, credentials.Password)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	log.WithField("userID", user.ID.Hex()).Info("User logged in successfully")
	h.issueToken(w, http.StatusOK, user)
}

// GET /api/auth/me
func (h *UserHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	user, err := h.Service.GetUser(r.Context(), actor.ID)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, user.Public())
}

// GET /api/users
func (h *UserHandler) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := h.Service.ListUsers(r.Context())
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, users)
}

// PUT /api/users/me/preferences
func (h *UserHandler) UpdatePreferencesHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	var prefs models.NotificationPrefs
	if err := decodeJSON(w, r, &prefs); err != nil {
		apperrors.WriteError(w, err)
		return
	}

	user, err := h.Service.UpdatePreferences(r.Context(), actor.ID, prefs)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, user.Public())
}
