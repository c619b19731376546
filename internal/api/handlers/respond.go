package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const statusSuccess = "success"

// messageResponse is the body for operations that return nothing else.
type messageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// errMalformedBody marks request bodies that are not a single JSON object.
var errMalformedBody = errors.New("malformed request body")

// decodeJSON reads exactly one JSON object into dst, rejecting unknown
// fields. Oversized bodies surface as *http.MaxBytesError.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return maxErr
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: body is empty", errMalformedBody)
		}
		return fmt.Errorf("%w: %s", errMalformedBody, err.Error())
	}
	if dec.More() {
		return fmt.Errorf("%w: body must contain a single JSON object", errMalformedBody)
	}
	return nil
}
