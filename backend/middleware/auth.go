package middleware

import (
	"log/slog"
	"net/http"

	"github.com/PhilHem/gamepanel/backend/auth"
	"github.com/PhilHem/gamepanel/backend/handlers"
	"github.com/PhilHem/gamepanel/backend/session"
)

// SessionLoader is satisfied by *session.Store.
type SessionLoader interface {
	Load(r *http.Request) (*session.Session, error)
}

// Guard protects authenticated-only routes.
type Guard struct {
	sessions SessionLoader
	flow     *auth.Flow
}

func NewGuard(sessions SessionLoader, flow *auth.Flow) *Guard {
	return &Guard{sessions: sessions, flow: flow}
}

// RequireAuth requires a logged-in visitor. Anonymous visitors are sent to
// the login page and come back afterwards; a pending challenge is resumed.
func (g *Guard) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := g.sessions.Load(r)
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		switch session.StateOf(sess).(type) {
		case session.PendingChallenge:
			handlers.Redirect(w, r, auth.ChallengePath)
			return
		case session.Unauthenticated:
			if r.Method == http.MethodGet {
				session.SetIntended(sess, r.URL.RequestURI())
				_ = sess.Save(r, w)
			}
			handlers.Redirect(w, r, auth.LoginPath)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireTwoFactor forces a code check on sessions of 2FA users that were
// never verified, and puts the current user in the request context.
func (g *Guard) RequireTwoFactor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := g.sessions.Load(r)
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		decision, user, err := g.flow.Guard(r.Context(), sess)
		if err != nil {
			slog.ErrorContext(r.Context(), "route guard failed", "source", "2fa", "error", err.Error())
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		switch decision {
		case auth.RequireChallenge:
			if err := sess.Save(r, w); err != nil {
				slog.ErrorContext(r.Context(), "failed to save session", "source", "session", "error", err.Error())
			}
			handlers.Redirect(w, r, auth.ChallengePath)
			return
		case auth.RequireLogin:
			_ = sess.Save(r, w)
			handlers.Redirect(w, r, auth.LoginPath)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
	})
}

// RequireAdmin must run after RequireTwoFactor.
func (g *Guard) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := auth.UserFrom(r.Context())
		if !user.IsAdmin() {
			if user != nil {
				slog.WarnContext(r.Context(), "admin access denied", "source", "auth", "user_id", user.ID, "path", r.URL.Path)
			}
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
