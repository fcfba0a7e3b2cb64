package handlers

import (
	"net/http"

	"github.com/PhilHem/gamepanel/backend/auth"
	"github.com/PhilHem/gamepanel/backend/session"
)

// ChallengePage shows the code form while a challenge is pending.
func (h *Handler) ChallengePage(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	if _, pending := session.StateOf(sess).(session.PendingChallenge); !pending {
		Redirect(w, r, auth.LoginPath)
		return
	}
	WriteJSON(w, http.StatusOK, Page{Page: "auth/two-factor-challenge"})
}

// Challenge submits the code for the pending login.
func (h *Handler) Challenge(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	out, err := h.flow.SubmitChallenge(r.Context(), sess, r.FormValue("code"))
	if err != nil {
		h.fail(w, r, sess, err)
		return
	}
	if h.saveSession(w, r, sess) {
		Redirect(w, r, out.Redirect)
	}
}

// TwoFactorSetup returns the enrollment QR code and manual key for the
// logged-in user. It never takes a user id from the request.
func (h *Handler) TwoFactorSetup(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	enrollment, err := h.flow.Enrollment(r.Context(), sess)
	if err != nil {
		h.fail(w, r, sess, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, enrollment)
}

func (h *Handler) TwoFactorEnable(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	err := h.flow.EnableTwoFactor(r.Context(), sess, r.FormValue("password"), r.FormValue("code"))
	if err != nil {
		h.fail(w, r, sess, err)
		return
	}
	if h.saveSession(w, r, sess) {
		WriteJSON(w, http.StatusOK, map[string]any{"status": "two-factor-enabled", "two_factor_enabled": true})
	}
}

func (h *Handler) TwoFactorDisable(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	if err := h.flow.DisableTwoFactor(r.Context(), sess, r.FormValue("password")); err != nil {
		h.fail(w, r, sess, err)
		return
	}
	if h.saveSession(w, r, sess) {
		WriteJSON(w, http.StatusOK, map[string]any{"status": "two-factor-disabled", "two_factor_enabled": false})
	}
}
