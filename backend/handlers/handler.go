package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/PhilHem/gamepanel/backend/auth"
	"github.com/PhilHem/gamepanel/backend/database"
	"github.com/PhilHem/gamepanel/backend/models"
	"github.com/PhilHem/gamepanel/backend/session"

	"gorm.io/gorm"
)

type PasswordHasher interface {
	Hash(plaintext string) (string, error)
}

// UserStore is the subset of *database.Users the handlers use.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	TwoFactorStats(ctx context.Context) (database.TwoFactorStats, error)
}

type Deps struct {
	Sessions *session.Store
	Flow     *auth.Flow
	Users    UserStore
	Hasher   PasswordHasher
	DB       *gorm.DB
}

type Handler struct {
	sessions *session.Store
	flow     *auth.Flow
	users    UserStore
	hasher   PasswordHasher
	db       *gorm.DB
}

func New(d Deps) *Handler {
	return &Handler{
		sessions: d.Sessions,
		flow:     d.Flow,
		users:    d.Users,
		hasher:   d.Hasher,
		db:       d.DB,
	}
}

// User-facing messages for hard failures.
const (
	msgChallengeExpired  = "Your login session expired. Please log in again."
	msgSecretUnavailable = "Two-factor authentication is not available for this account. Please contact support."
)

func (h *Handler) loadSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := h.sessions.Load(r)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to load session", "source", "session", "error", err.Error())
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return nil, false
	}
	return sess, true
}

func (h *Handler) saveSession(w http.ResponseWriter, r *http.Request, sess *session.Session) bool {
	if err := sess.Save(r, w); err != nil {
		slog.ErrorContext(r.Context(), "failed to save session", "source", "session", "error", err.Error())
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return false
	}
	return true
}

// fail maps an auth error to a response. The session is saved first since
// most failures changed it.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, sess *session.Session, err error) {
	var fe *auth.FieldError
	switch {
	case errors.As(err, &fe):
		if h.saveSession(w, r, sess) {
			WriteErrors(w, http.StatusUnprocessableEntity, map[string]string{fe.Field: fe.Message})
		}

	case errors.Is(err, auth.ErrNoPendingChallenge):
		sess.Flash("email", msgChallengeExpired)
		if h.saveSession(w, r, sess) {
			Redirect(w, r, auth.LoginPath)
		}

	case errors.Is(err, auth.ErrSecretUnavailable):
		if _, loggedIn := session.StateOf(sess).(session.Authenticated); loggedIn {
			if h.saveSession(w, r, sess) {
				WriteErrors(w, http.StatusConflict, map[string]string{"two_factor": msgSecretUnavailable})
			}
			return
		}
		sess.Flash("email", msgSecretUnavailable)
		if h.saveSession(w, r, sess) {
			Redirect(w, r, auth.LoginPath)
		}

	case errors.Is(err, auth.ErrNotAuthenticated):
		if h.saveSession(w, r, sess) {
			Redirect(w, r, auth.LoginPath)
		}

	case errors.Is(err, auth.ErrAlreadyEnabled),
		errors.Is(err, auth.ErrNotEnabled),
		errors.Is(err, auth.ErrEnrollmentNotStarted):
		WriteErrors(w, http.StatusConflict, map[string]string{"two_factor": conflictMessage(err)})

	default:
		slog.ErrorContext(r.Context(), "request failed", "source", "http", "path", r.URL.Path, "error", err.Error())
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrAlreadyEnabled):
		return "Two-factor authentication is already enabled."
	case errors.Is(err, auth.ErrNotEnabled):
		return "Two-factor authentication is not enabled."
	default:
		return "Open the two-factor setup page before confirming a code."
	}
}

// Health reports whether the database answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(r.Context())
	}
	if err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
