// Package api provides HTTP handlers for the table-core control plane.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/farkleio/tablecore/internal/apperr"
)

// envelope is the {status, payload} response shape used for every
// HTTP response.
type envelope struct {
	Status string `json:"status"`
	Payload interface{} `json:"payload,omitempty"`
}

// JSON writes a successful {status:"ok", payload} response.
func JSON(w http.ResponseWriter, code int, payload interface{}) {
	writeEnvelope(w, code, envelope{Status: "ok", Payload: payload})
}

// Error writes a {status:"error", payload:{reason}} response built from
// a known apperr sentinel (or any wrapped error, via apperr.Reason).
func Error(w http.ResponseWriter, code int, err error) {
	writeEnvelope(w, code, envelope{Status: "error", Payload: map[string]string{"reason": apperr.Reason(err)}})
}

// ErrorReason writes a {status:"error", payload:{reason}} response from
// a literal reason string rather than a package-level apperr sentinel.
// No handler in this package calls it.
func ErrorReason(w http.ResponseWriter, code int, reason string) {
	writeEnvelope(w, code, envelope{Status: "error", Payload: map[string]string{"reason": reason}})
}

func writeEnvelope(w http.ResponseWriter, code int, e envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(e); err != nil {
		http.Error(w, `{"status":"error","payload":{"reason":"internal_error"}}`, http.StatusInternalServerError)
	}
}

// decodeJSON parses the request body into v, returning invalid_payload on
// any decode failure.
func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil && err.Error() != "EOF" {
		return apperr.ErrInvalidPayload
	}
	return nil
}
