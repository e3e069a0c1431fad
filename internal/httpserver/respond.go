package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Respond writes a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// ErrorBody is the nested error object in the gateway's error envelope.
type ErrorBody struct {
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope is the standard JSON error envelope: {ok:false, error:{message, details?}}.
type ErrorEnvelope struct {
	OK    bool      `json:"ok"`
	Error ErrorBody `json:"error"`
}

// RespondError writes the standard {ok:false, error:{message}} envelope.
func RespondError(w http.ResponseWriter, status int, message string) {
	Respond(w, status, ErrorEnvelope{OK: false, Error: ErrorBody{Message: message}})
}

// RespondErrorDetails writes the standard error envelope with a details payload,
// used for validation failures that enumerate multiple problems.
func RespondErrorDetails(w http.ResponseWriter, status int, message string, details any) {
	Respond(w, status, ErrorEnvelope{OK: false, Error: ErrorBody{Message: message, Details: details}})
}

// OK writes a 200 response with ok:true merged into the given fields.
func OK(w http.ResponseWriter, fields map[string]any) {
	body := map[string]any{"ok": true}
	for k, v := range fields {
		body[k] = v
	}
	Respond(w, http.StatusOK, body)
}
