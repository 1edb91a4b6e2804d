package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// envelope is the uniform response shape. Success responses carry data,
// failures carry error and, for validation failures, the itemized errors.
type envelope struct {
	Success bool     `json:"success"`
	Data    any      `json:"data,omitempty"`
	Error   string   `json:"error,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Success: true, Data: data}); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Success: false, Error: message}); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func writeValidationError(w http.ResponseWriter, errs []string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	env := envelope{Success: false, Error: "validation failed", Errors: errs}
	if err := json.NewEncoder(w).Encode(env); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
