package handlers

import (
	"net/http"

	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/domain/ids"
)

// eventIDParam reads the {id} path value as a canonical ULID. Malformed ids
// cannot name an event, so they report events.ErrNotFound.
func eventIDParam(r *http.Request) (string, error) {
	id, err := ids.Normalize(r.PathValue("id"))
	if err != nil {
		return "", events.ErrNotFound
	}
	return id, nil
}
