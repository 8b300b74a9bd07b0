package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/synergysphere/server/internal/apperrors"
	"github.com/synergysphere/server/internal/realtime"
	jwtutil "github.com/synergysphere/server/pkg/jwt"
	"github.com/synergysphere/server/pkg/logger"
	"github.com/synergysphere/server/pkg/middleware"
)

// WSHandler upgrades authenticated requests to a realtime connection. The user room
// is derived from the token, never from client input.
type WSHandler struct {
	Hub       *realtime.Hub
	JWTSecret string
	upgrader  websocket.Upgrader
}

func NewWSHandler(hub *realtime.Hub, jwtSecret string, allowedOrigins []string) *WSHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &WSHandler{
		Hub:       hub,
		JWTSecret: jwtSecret,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

// GET /ws?token=<jwt> (or Authorization: Bearer)
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = middleware.BearerToken(r)
	}
	if token == "" {
		apperrors.WriteError(w, apperrors.NewUnauthorizedError("token required"))
		return
	}
	claims, err := jwtutil.ValidateToken(token, h.JWTSecret)
	if err != nil {
		logger.Log.WithError(err).Warn("Rejected websocket with invalid token")
		apperrors.WriteError(w, apperrors.NewUnauthorizedError("invalid token"))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	realtime.NewClient(h.Hub, conn, claims.UserID).Serve()
}
