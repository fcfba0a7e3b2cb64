package handlers

import (
	"log/slog"
	"net/http"
)

// TwoFactorStats reports how many accounts have 2FA enabled.
func (h *Handler) TwoFactorStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.users.TwoFactorStats(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to count 2fa adoption", "source", "admin", "error", err.Error())
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}
