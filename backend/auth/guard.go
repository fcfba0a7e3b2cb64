package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/PhilHem/gamepanel/backend/database"
	"github.com/PhilHem/gamepanel/backend/models"
	"github.com/PhilHem/gamepanel/backend/session"
)

// Decision is what a route guard should do with a request.
type Decision int

const (
	Allow Decision = iota
	RequireLogin
	RequireChallenge
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RequireLogin:
		return "require_login"
	case RequireChallenge:
		return "require_challenge"
	}
	return fmt.Sprintf("decision(%d)", int(d))
}

// Guard decides access to an authenticated-only resource. A 2FA user whose
// session was never verified is logged out and put back in PendingChallenge.
func (f *Flow) Guard(ctx context.Context, v session.Values) (Decision, *models.User, error) {
	var current session.Authenticated
	switch s := session.StateOf(v).(type) {
	case session.Unauthenticated:
		return RequireLogin, nil, nil
	case session.PendingChallenge:
		return RequireChallenge, nil, nil
	case session.Authenticated:
		current = s
	}

	user, err := f.users.FindByID(ctx, current.UserID)
	if errors.Is(err, database.ErrUserNotFound) {
		session.SetState(v, session.Unauthenticated{})
		return RequireLogin, nil, nil
	}
	if err != nil {
		return RequireLogin, nil, fmt.Errorf("find session user: %w", err)
	}

	if user.TwoFactorEnabled && !current.TwoFactorVerified {
		session.SetState(v, session.PendingChallenge{UserID: user.ID})
		f.log.InfoContext(ctx, "unverified session re-challenged", "source", "2fa", "user_id", user.ID)
		return RequireChallenge, nil, nil
	}
	return Allow, user, nil
}
