package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/coachcredits-backend/api/middleware"
	"github.com/angelmondragon/coachcredits-backend/api/responses"
	pkgerrors "github.com/angelmondragon/coachcredits-backend/pkg/errors"
	"github.com/angelmondragon/coachcredits-backend/pkg/logger"
)

func callerID(r *http.Request) (uuid.UUID, error) {
	userID, ok := middleware.UserUUIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return userID, nil
}

// forCaller resolves the authenticated user, runs fn and writes its result
// as a 200 envelope.
func forCaller(logg *logger.Logger, fn func(r *http.Request, userID uuid.UUID) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		body, err := fn(r, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, body)
	}
}
