package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// envelope is the wire shape of every JSON response. Success responses carry
// data and an optional count; failures carry a message and optional
// field-level errors.
type envelope struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Count   *int         `json:"count,omitempty"`
	Data    any          `json:"data,omitempty"`
	Errors  []fieldError `json:"errors,omitempty"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func respondData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func respondMessage(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

// respondList includes the record count alongside the payload.
func respondList(w http.ResponseWriter, count int, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Count: &count, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message})
}

func respondValidation(w http.ResponseWriter, errs []fieldError) {
	writeJSON(w, http.StatusBadRequest, envelope{
		Success: false,
		Message: "Validation failed",
		Errors:  errs,
	})
}
