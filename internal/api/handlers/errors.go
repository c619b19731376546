package handlers

import (
	"errors"
	"net/http"

	"github.com/Togather-Foundation/rsvp/internal/api/problem"
	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/domain/users"
	"github.com/Togather-Foundation/rsvp/internal/domain/validation"
)

// writeError maps a service error onto its problem response.
func writeError(w http.ResponseWriter, r *http.Request, err error, env string) {
	var (
		filterErr events.FilterError
		fieldErrs validation.Errors
		maxErr    *http.MaxBytesError
	)

	switch {
	case errors.As(err, &maxErr):
		problem.Write(w, r, http.StatusRequestEntityTooLarge, problem.TypeTooLarge, "Request body too large", err, env)
	case errors.As(err, &fieldErrs):
		fields := make(map[string]interface{}, len(fieldErrs))
		for k, v := range fieldErrs.Fields() {
			fields[k] = v
		}
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, env, problem.WithErrors(fields))
	case validation.IsValidation(err), errors.As(err, &filterErr), errors.Is(err, errMalformedBody):
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, env)
	case errors.Is(err, events.ErrNotFound):
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Event not found", err, env)
	case errors.Is(err, events.ErrUserNotFound), errors.Is(err, users.ErrUserNotFound):
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "User not found", err, env)
	case errors.Is(err, events.ErrNotRegistered):
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotRegistered, "Not registered", err, env)
	case errors.Is(err, events.ErrForbidden):
		problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Forbidden", err, env)
	case events.IsConflict(err):
		problem.Write(w, r, http.StatusBadRequest, problem.TypeConflict, "Conflict", err, env)
	case events.IsCapacity(err):
		problem.Write(w, r, http.StatusBadRequest, problem.TypeCapacity, "Capacity exceeded", err, env)
	case errors.Is(err, users.ErrEmailTaken):
		problem.Write(w, r, http.StatusConflict, problem.TypeEmailTaken, "Email already registered", err, env)
	case errors.Is(err, users.ErrInvalidCredentials),
		errors.Is(err, users.ErrSessionExpired),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrMissingToken):
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", err, env)
	default:
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, env)
	}
}
