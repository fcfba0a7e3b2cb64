package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Page is the JSON payload a page component is rendered from.
type Page struct {
	Page   string            `json:"page"`
	Props  any               `json:"props,omitempty"`
	Errors map[string]string `json:"errors,omitempty"`
}

// Redirect sends HTMX requests an HX-Redirect header and everyone else a
// 303 See Other.
func Redirect(w http.ResponseWriter, r *http.Request, path string) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "source", "http", "error", err.Error())
	}
}

// WriteErrors writes {"errors": {field: message}}.
func WriteErrors(w http.ResponseWriter, status int, errs map[string]string) {
	WriteJSON(w, status, map[string]any{"errors": errs})
}
