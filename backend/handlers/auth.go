package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/PhilHem/gamepanel/backend/auth"
	"github.com/PhilHem/gamepanel/backend/database"
	"github.com/PhilHem/gamepanel/backend/models"
	"github.com/PhilHem/gamepanel/backend/password"
	"github.com/PhilHem/gamepanel/backend/session"
	"github.com/PhilHem/gamepanel/backend/validation"
)

func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	if _, loggedIn := session.StateOf(sess).(session.Authenticated); loggedIn {
		Redirect(w, r, "/dashboard")
		return
	}
	errs := sess.Flashes()
	if !h.saveSession(w, r, sess) {
		return
	}
	WriteJSON(w, http.StatusOK, Page{Page: "auth/login", Errors: errs})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	out, err := h.flow.Login(r.Context(), sess, r.FormValue("email"), r.FormValue("password"))
	if err != nil {
		h.fail(w, r, sess, err)
		return
	}
	if h.saveSession(w, r, sess) {
		Redirect(w, r, out.Redirect)
	}
}

func (h *Handler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, Page{Page: "auth/register"})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	pw := r.FormValue("password")

	if errs := validateRegistration(email, pw, r.FormValue("password_confirmation")); len(errs) > 0 {
		slog.WarnContext(r.Context(), "registration failed: validation", "source", "auth", "email", email)
		WriteErrors(w, http.StatusUnprocessableEntity, errs)
		return
	}

	hashed, err := h.hasher.Hash(pw)
	if err != nil {
		slog.ErrorContext(r.Context(), "registration failed: hash error", "source", "auth", "error", err.Error())
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	user := &models.User{Email: email, Password: hashed}
	if err := h.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, database.ErrEmailTaken) {
			slog.WarnContext(r.Context(), "registration failed: email exists", "source", "auth", "email", email)
			WriteErrors(w, http.StatusUnprocessableEntity, map[string]string{"email": "The email has already been taken."})
			return
		}
		slog.ErrorContext(r.Context(), "registration failed: db error", "source", "auth", "error", err.Error())
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	slog.InfoContext(r.Context(), "user registered", "source", "auth", "user_id", user.ID)

	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	out := h.flow.SignIn(sess, user)
	if h.saveSession(w, r, sess) {
		Redirect(w, r, out.Redirect)
	}
}

type registrationForm struct {
	Email        string `form:"email" validate:"required,email,max=255"`
	Password     string `form:"password" validate:"required,min=8,eqfield=Confirmation"`
	Confirmation string `form:"password_confirmation"`
}

func validateRegistration(email, pw, confirmation string) map[string]string {
	errs := validation.Map(registrationForm{Email: email, Password: pw, Confirmation: confirmation})
	if _, bad := errs["password"]; !bad {
		if err := password.Validate(pw); err != nil {
			errs["password"] = err.Error()
		}
	}
	return errs
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	h.flow.Logout(sess)
	sess.Invalidate()
	if h.saveSession(w, r, sess) {
		Redirect(w, r, auth.LoginPath)
	}
}

// Dashboard expects RequireTwoFactor to have run.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	WriteJSON(w, http.StatusOK, Page{Page: "dashboard", Props: map[string]any{"user": user}})
}
