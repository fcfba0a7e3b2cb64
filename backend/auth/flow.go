// Package auth implements the login and two-factor challenge state machine.
//
// A visitor moves from Unauthenticated to Authenticated directly when 2FA is
// off, or through PendingChallenge when it is on. The state lives in the
// visitor's session.Values, passed explicitly to every operation.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PhilHem/gamepanel/backend/database"
	"github.com/PhilHem/gamepanel/backend/models"
	"github.com/PhilHem/gamepanel/backend/password"
	"github.com/PhilHem/gamepanel/backend/session"
	"github.com/PhilHem/gamepanel/backend/twofactor"
)

const (
	LoginPath     = "/login"
	ChallengePath = "/two-factor-challenge"
)

type UserStore interface {
	FindByID(ctx context.Context, id uint) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	SaveTwoFactor(ctx context.Context, user *models.User) error
}

type PasswordVerifier interface {
	Verify(plaintext, hash string) bool
}

// SecretManager is satisfied by *twofactor.Manager.
type SecretManager interface {
	EnsureSecret(ctx context.Context, user *models.User) (string, error)
	Secret(user *models.User) (string, error)
	BuildEnrollmentPayload(user *models.User, secret string) (*twofactor.Enrollment, error)
	VerifyCode(secret, code string, tolerance uint) bool
	DisableFor(ctx context.Context, user *models.User) error
}

type Notifier interface {
	TwoFactorChanged(ctx context.Context, user *models.User, enabled bool)
}

// Outcome is the state a visitor ended in and where to send them next.
type Outcome struct {
	State    session.State
	Redirect string
}

type Flow struct {
	users     UserStore
	passwords PasswordVerifier
	secrets   SecretManager
	notifier  Notifier
	log       *slog.Logger
	landing   string
	tolerance uint
}

type Option func(*Flow)

func WithLogger(l *slog.Logger) Option {
	return func(f *Flow) {
		if l != nil {
			f.log = l
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(f *Flow) { f.notifier = n }
}

// WithDefaultRedirect sets the landing path used when no intended
// destination was recorded.
func WithDefaultRedirect(path string) Option {
	return func(f *Flow) {
		if path != "" {
			f.landing = path
		}
	}
}

func WithTolerance(steps uint) Option {
	return func(f *Flow) { f.tolerance = steps }
}

func NewFlow(users UserStore, passwords PasswordVerifier, secrets SecretManager, opts ...Option) *Flow {
	f := &Flow{
		users:     users,
		passwords: passwords,
		secrets:   secrets,
		log:       slog.Default(),
		landing:   "/dashboard",
		tolerance: twofactor.DefaultTolerance,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Login checks email and password. A 2FA user is left in PendingChallenge
// and is not logged in until SubmitChallenge succeeds.
func (f *Flow) Login(ctx context.Context, v session.Values, email, password string) (Outcome, error) {
	email = strings.TrimSpace(email)
	if err := checkForm(loginForm{Email: email, Password: password}); err != nil {
		return f.stay(v), err
	}

	user, err := f.users.FindByEmail(ctx, email)
	if errors.Is(err, database.ErrUserNotFound) {
		f.verifyMissing(password)
		f.log.WarnContext(ctx, "login failed: user not found", "source", "auth", "email", email)
		return f.stay(v), fieldErr("email", msgInvalidCredentials, ErrInvalidCredentials)
	}
	if err != nil {
		return f.stay(v), fmt.Errorf("find user: %w", err)
	}
	if !f.passwords.Verify(password, user.Password) {
		f.log.WarnContext(ctx, "login failed: invalid password", "source", "auth", "user_id", user.ID)
		return f.stay(v), fieldErr("email", msgInvalidCredentials, ErrInvalidCredentials)
	}

	return f.SignIn(v, user), nil
}

// SignIn moves a visitor whose credentials were already established (for
// example right after registration) into the right post-login state.
func (f *Flow) SignIn(v session.Values, user *models.User) Outcome {
	if user.TwoFactorEnabled {
		state := session.PendingChallenge{UserID: user.ID}
		session.SetState(v, state)
		f.log.Info("password accepted, 2fa challenge pending", "source", "auth", "user_id", user.ID)
		return Outcome{State: state, Redirect: ChallengePath}
	}

	state := session.Authenticated{UserID: user.ID}
	session.SetState(v, state)
	f.log.Info("user logged in", "source", "auth", "user_id", user.ID)
	return Outcome{State: state, Redirect: session.PopIntended(v, f.landing)}
}

// SubmitChallenge verifies a code for the pending user. A wrong code keeps
// the challenge open. A missing challenge or unusable secret ends it and
// sends the visitor back to the login screen.
func (f *Flow) SubmitChallenge(ctx context.Context, v session.Values, code string) (Outcome, error) {
	code = strings.TrimSpace(code)
	current := session.StateOf(v)

	var user *models.User
	switch s := current.(type) {
	case session.PendingChallenge:
		u, err := f.users.FindByID(ctx, s.UserID)
		if errors.Is(err, database.ErrUserNotFound) {
			session.SetState(v, session.Unauthenticated{})
			f.log.WarnContext(ctx, "2fa challenge for unknown user", "source", "2fa", "user_id", s.UserID)
			return f.toLogin(), ErrNoPendingChallenge
		}
		if err != nil {
			return Outcome{State: current, Redirect: ChallengePath}, fmt.Errorf("find pending user: %w", err)
		}
		user = u

	case session.Authenticated:
		// Re-submission after the challenge already completed, or a login
		// that never needed one.
		u, err := f.users.FindByID(ctx, s.UserID)
		if err != nil {
			if errors.Is(err, database.ErrUserNotFound) {
				session.SetState(v, session.Unauthenticated{})
				return f.toLogin(), ErrNoPendingChallenge
			}
			return Outcome{State: current, Redirect: ChallengePath}, fmt.Errorf("find user: %w", err)
		}
		if s.TwoFactorVerified || !u.TwoFactorEnabled {
			return Outcome{State: current, Redirect: session.PopIntended(v, f.landing)}, nil
		}
		user = u

	default:
		f.log.WarnContext(ctx, "2fa challenge without pending login", "source", "2fa")
		return f.toLogin(), ErrNoPendingChallenge
	}

	if err := checkForm(challengeForm{Code: code}); err != nil {
		return Outcome{State: current, Redirect: ChallengePath}, err
	}

	secret, err := f.secrets.Secret(user)
	if err != nil || !user.TwoFactorEnabled {
		f.log.ErrorContext(ctx, "2fa secret unavailable", "source", "2fa", "user_id", user.ID, "alert", true, "enabled", user.TwoFactorEnabled, "error", errString(err))
		session.SetState(v, session.Unauthenticated{})
		return f.toLogin(), ErrSecretUnavailable
	}

	if !f.secrets.VerifyCode(secret, code, f.tolerance) {
		f.log.WarnContext(ctx, "2fa challenge failed: invalid code", "source", "2fa", "user_id", user.ID)
		return Outcome{State: current, Redirect: ChallengePath}, fieldErr("code", msgInvalidCode, ErrInvalidCode)
	}

	state := session.Authenticated{UserID: user.ID, TwoFactorVerified: true}
	session.SetState(v, state)
	f.log.InfoContext(ctx, "2fa challenge passed", "source", "2fa", "user_id", user.ID)
	return Outcome{State: state, Redirect: session.PopIntended(v, f.landing)}, nil
}

// CurrentUser returns the logged-in user. Pending and anonymous visitors get
// ErrNotAuthenticated.
func (f *Flow) CurrentUser(ctx context.Context, v session.Values) (*models.User, error) {
	s, ok := session.StateOf(v).(session.Authenticated)
	if !ok {
		return nil, ErrNotAuthenticated
	}
	user, err := f.users.FindByID(ctx, s.UserID)
	if errors.Is(err, database.ErrUserNotFound) {
		session.SetState(v, session.Unauthenticated{})
		return nil, ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("find current user: %w", err)
	}
	return user, nil
}

// Logout drops every auth key from the session.
func (f *Flow) Logout(v session.Values) {
	if s, ok := session.StateOf(v).(session.Authenticated); ok {
		f.log.Info("user logged out", "source", "auth", "user_id", s.UserID)
	}
	session.SetState(v, session.Unauthenticated{})
	v.Forget(session.KeyIntended)
}

// verifyMissing spends the work of one password comparison so an unknown
// email answers as slowly as a wrong password.
func (f *Flow) verifyMissing(plaintext string) {
	f.passwords.Verify(plaintext, password.DummyHash())
}

func (f *Flow) stay(v session.Values) Outcome {
	return Outcome{State: session.StateOf(v), Redirect: LoginPath}
}

func (f *Flow) toLogin() Outcome {
	return Outcome{State: session.Unauthenticated{}, Redirect: LoginPath}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
