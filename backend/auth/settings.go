package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/PhilHem/gamepanel/backend/models"
	"github.com/PhilHem/gamepanel/backend/session"
	"github.com/PhilHem/gamepanel/backend/twofactor"
)

// Enrollment returns the QR code and manual key for the session's own user,
// generating the secret on first use. The same payload is returned until
// enrollment is confirmed.
func (f *Flow) Enrollment(ctx context.Context, v session.Values) (*twofactor.Enrollment, error) {
	user, err := f.CurrentUser(ctx, v)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled {
		return nil, ErrAlreadyEnabled
	}

	secret, err := f.secrets.EnsureSecret(ctx, user)
	if errors.Is(err, ErrSecretUnavailable) {
		f.alertSecret(ctx, user, err)
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return f.secrets.BuildEnrollmentPayload(user, secret)
}

// EnableTwoFactor confirms enrollment. The password is checked before the
// code, and the user row is untouched unless both are correct.
func (f *Flow) EnableTwoFactor(ctx context.Context, v session.Values, password, code string) error {
	user, err := f.CurrentUser(ctx, v)
	if err != nil {
		return err
	}
	if user.TwoFactorEnabled {
		return ErrAlreadyEnabled
	}
	if err := checkForm(enableForm{Password: password, Code: code}); err != nil {
		return err
	}

	if !f.passwords.Verify(password, user.Password) {
		f.log.WarnContext(ctx, "2fa enable failed: invalid password", "source", "2fa", "user_id", user.ID)
		return fieldErr("password", msgInvalidPassword, ErrInvalidPassword)
	}

	if !user.HasTwoFactorSecret() {
		return ErrEnrollmentNotStarted
	}
	secret, err := f.secrets.Secret(user)
	if err != nil {
		f.alertSecret(ctx, user, err)
		return err
	}
	if !f.secrets.VerifyCode(secret, code, f.tolerance) {
		f.log.WarnContext(ctx, "2fa enable failed: invalid code", "source", "2fa", "user_id", user.ID)
		return fieldErr("code", msgInvalidCode, ErrInvalidCode)
	}

	user.TwoFactorEnabled = true
	if err := f.users.SaveTwoFactor(ctx, user); err != nil {
		user.TwoFactorEnabled = false
		return fmt.Errorf("enable two-factor: %w", err)
	}
	// The code was just proven in this session.
	session.SetState(v, session.Authenticated{UserID: user.ID, TwoFactorVerified: true})

	f.log.InfoContext(ctx, "2fa enabled", "source", "2fa", "user_id", user.ID)
	f.notify(ctx, user, true)
	return nil
}

// DisableTwoFactor turns 2FA off after the password is re-entered.
func (f *Flow) DisableTwoFactor(ctx context.Context, v session.Values, password string) error {
	user, err := f.CurrentUser(ctx, v)
	if err != nil {
		return err
	}
	if !user.TwoFactorEnabled {
		return ErrNotEnabled
	}
	if err := checkForm(disableForm{Password: password}); err != nil {
		return err
	}
	if !f.passwords.Verify(password, user.Password) {
		f.log.WarnContext(ctx, "2fa disable failed: invalid password", "source", "2fa", "user_id", user.ID)
		return fieldErr("password", msgInvalidPassword, ErrInvalidPassword)
	}

	if err := f.secrets.DisableFor(ctx, user); err != nil {
		return err
	}
	session.SetState(v, session.Authenticated{UserID: user.ID})

	f.log.InfoContext(ctx, "2fa disabled", "source", "2fa", "user_id", user.ID)
	f.notify(ctx, user, false)
	return nil
}

func (f *Flow) notify(ctx context.Context, user *models.User, enabled bool) {
	if f.notifier != nil {
		f.notifier.TwoFactorChanged(ctx, user, enabled)
	}
}

func (f *Flow) alertSecret(ctx context.Context, user *models.User, err error) {
	f.log.ErrorContext(ctx, "2fa secret unavailable", "source", "2fa", "user_id", user.ID, "alert", true, "error", errString(err))
}
