// Package twofactor owns each user's TOTP shared secret: generation,
// encryption at rest, decryption for verification and the enrollment
// artifacts shown to the user (QR code and manual key).
package twofactor

import (
	"context"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PhilHem/gamepanel/backend/models"
	"github.com/PhilHem/gamepanel/backend/validation"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	// DefaultTolerance accepts the current step and one step on either side.
	DefaultTolerance uint = 1

	CodeDigits  = 6
	StepSeconds = 30
	secretBytes = 20 // 160-bit shared secret

	defaultQRSize = 200
)

var (
	// ErrSecretUnavailable means the stored secret is missing or cannot be
	// decrypted. Verification must fail closed when it is returned.
	ErrSecretUnavailable = errors.New("two-factor secret unavailable")
	ErrMissingEmail      = errors.New("two-factor enrollment requires an email")

	b32NoPad = base32.StdEncoding.WithPadding(base32.NoPadding)
)

// Encrypter is the application-wide symmetric encryption utility.
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// UserSaver persists the two-factor columns of a user row.
type UserSaver interface {
	SaveTwoFactor(ctx context.Context, user *models.User) error
}

// Enrollment is what the setup screen needs to register an authenticator.
type Enrollment struct {
	QRImage   string `json:"qr"`         // data URI, inlineable in <img src>
	ManualKey string `json:"manual_key"` // base32 secret for manual entry
	URI       string `json:"-"`
}

type Manager struct {
	issuer    string
	encrypter Encrypter
	users     UserSaver
	now       func() time.Time
	qrSize    int
}

type Option func(*Manager)

// WithClock overrides the time source used for code verification.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithQRSize(size int) Option {
	return func(m *Manager) {
		if size > 0 {
			m.qrSize = size
		}
	}
}

// NewManager creates a secret manager. issuer is the application name shown
// in authenticator apps.
func NewManager(issuer string, encrypter Encrypter, users UserSaver, opts ...Option) *Manager {
	m := &Manager{
		issuer:    issuer,
		encrypter: encrypter,
		users:     users,
		now:       time.Now,
		qrSize:    defaultQRSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EnsureSecret returns the user's plaintext secret, generating, encrypting and
// persisting one first if the user has none. Once a secret exists repeated
// calls return it unchanged.
func (m *Manager) EnsureSecret(ctx context.Context, user *models.User) (string, error) {
	if user.HasTwoFactorSecret() {
		return m.Secret(user)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.issuer,
		AccountName: accountName(user),
		Period:      StepSeconds,
		SecretSize:  secretBytes,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("generate two-factor secret: %w", err)
	}
	secret := key.Secret()

	encrypted, err := m.encrypter.Encrypt(secret)
	if err != nil {
		return "", fmt.Errorf("encrypt two-factor secret: %w", err)
	}
	user.TwoFactorSecret = &encrypted
	if err := m.users.SaveTwoFactor(ctx, user); err != nil {
		user.TwoFactorSecret = nil
		return "", fmt.Errorf("store two-factor secret: %w", err)
	}
	return secret, nil
}

// Secret decrypts the stored secret without generating one.
func (m *Manager) Secret(user *models.User) (string, error) {
	if !user.HasTwoFactorSecret() {
		return "", ErrSecretUnavailable
	}
	secret, err := m.encrypter.Decrypt(*user.TwoFactorSecret)
	if err != nil {
		return "", errors.Join(ErrSecretUnavailable, err)
	}
	if _, err := b32NoPad.DecodeString(normalizeSecret(secret)); secret == "" || err != nil {
		return "", errors.Join(ErrSecretUnavailable, errors.New("stored secret is not base32"))
	}
	return secret, nil
}

// BuildEnrollmentPayload derives the provisioning URI for secret and renders
// it as a PNG QR code.
func (m *Manager) BuildEnrollmentPayload(user *models.User, secret string) (*Enrollment, error) {
	if strings.TrimSpace(user.Email) == "" {
		return nil, ErrMissingEmail
	}
	raw, err := b32NoPad.DecodeString(normalizeSecret(secret))
	if err != nil {
		return nil, fmt.Errorf("decode two-factor secret: %w", err)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.issuer,
		AccountName: accountName(user),
		Period:      StepSeconds,
		Secret:      raw,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("build provisioning uri: %w", err)
	}

	png, err := qrcode.Encode(key.URL(), qrcode.Medium, m.qrSize)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}

	return &Enrollment{
		QRImage:   "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		ManualKey: key.Secret(),
		URI:       key.URL(),
	}, nil
}

// VerifyCode checks a 6-digit code against secret, accepting codes from
// tolerance steps before and after the current one. Malformed input is
// rejected, never an error.
func (m *Manager) VerifyCode(secret, code string, tolerance uint) bool {
	code = strings.TrimSpace(code)
	if !ValidCodeFormat(code) || strings.TrimSpace(secret) == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, normalizeSecret(secret), m.now().UTC(), validateOpts(tolerance))
	return err == nil && ok
}

// DisableFor turns two-factor authentication off and forgets the secret.
// A later enrollment generates an unrelated secret.
func (m *Manager) DisableFor(ctx context.Context, user *models.User) error {
	prevEnabled, prevSecret := user.TwoFactorEnabled, user.TwoFactorSecret
	user.TwoFactorEnabled = false
	user.TwoFactorSecret = nil
	if err := m.users.SaveTwoFactor(ctx, user); err != nil {
		user.TwoFactorEnabled, user.TwoFactorSecret = prevEnabled, prevSecret
		return fmt.Errorf("disable two-factor: %w", err)
	}
	return nil
}

// ValidCodeFormat reports whether code is exactly six ASCII digits.
func ValidCodeFormat(code string) bool {
	return validation.Var(code, validation.CodeRule)
}

// GenerateCode returns the code for the step containing t. Used by tests and
// the operator CLI.
func GenerateCode(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(normalizeSecret(secret), t.UTC(), validateOpts(0))
}

func validateOpts(skew uint) totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    StepSeconds,
		Skew:      skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

func accountName(user *models.User) string {
	if user.Email != "" {
		return user.Email
	}
	return fmt.Sprintf("user-%d", user.ID)
}

func normalizeSecret(secret string) string {
	return strings.ToUpper(strings.TrimRight(strings.TrimSpace(secret), "="))
}
