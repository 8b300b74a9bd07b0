package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/synergysphere/server/internal/apperrors"
	"github.com/synergysphere/server/internal/services"
	"github.com/synergysphere/server/pkg/middleware"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.NewValidationError("invalid request payload")
	}
	return nil
}

// actorFrom returns the authenticated caller. Routes using it sit behind AuthMiddleware.
func actorFrom(r *http.Request) (services.Actor, error) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		return services.Actor{}, apperrors.NewUnauthorizedError("authentication required")
	}
	id, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return services.Actor{}, apperrors.NewUnauthorizedError("invalid token subject")
	}
	return services.Actor{ID: id, Role: claims.Role}, nil
}

func pathID(r *http.Request, name string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)[name])
	if err != nil {
		return primitive.NilObjectID, apperrors.NewValidationError("invalid %s", name).WithField(name, "must be a valid id")
	}
	return id, nil
}

func queryInt(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return n
}

func message(text string) map[string]string {
	return map[string]string{"message": text}
}
