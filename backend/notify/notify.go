// Package notify sends account security notices to users.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"text/template"
	"time"

	"github.com/PhilHem/gamepanel/backend/models"
)

// Message is a single plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

var ErrNoRecipient = errors.New("notification requires a recipient")

var twoFactorTemplate = template.Must(template.New("2fa").Parse(
	`Hello {{.Email}},

Two-factor authentication was {{if .Enabled}}enabled{{else}}disabled{{end}} on your {{.App}} account at {{.At}}.

If you did not make this change, reset your password and contact support immediately.
`))

// Notifier renders security notices and hands them to a Sender. Sending is
// best effort: failures are logged and never returned to the caller.
type Notifier struct {
	app    string
	sender Sender
	now    func() time.Time
}

func NewNotifier(app string, sender Sender) *Notifier {
	return &Notifier{app: app, sender: sender, now: time.Now}
}

func (n *Notifier) TwoFactorChanged(ctx context.Context, user *models.User, enabled bool) {
	if n == nil || n.sender == nil {
		return
	}
	msg, err := n.twoFactorMessage(user, enabled)
	if err != nil {
		slog.Error("failed to render 2fa notice", "source", "notify", "user_id", user.ID, "error", err.Error())
		return
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		slog.Warn("failed to send 2fa notice", "source", "notify", "user_id", user.ID, "error", err.Error())
		return
	}
	slog.Info("2fa notice sent", "source", "notify", "user_id", user.ID, "enabled", enabled)
}

func (n *Notifier) twoFactorMessage(user *models.User, enabled bool) (Message, error) {
	var buf bytes.Buffer
	err := twoFactorTemplate.Execute(&buf, map[string]any{
		"Email":   user.Email,
		"Enabled": enabled,
		"App":     n.app,
		"At":      n.now().UTC().Format(time.RFC1123),
	})
	if err != nil {
		return Message{}, err
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	return Message{
		To:      user.Email,
		Subject: fmt.Sprintf("[%s] Two-factor authentication %s", n.app, state),
		Body:    buf.String(),
	}, nil
}

// LogSender writes messages to the log instead of mailing them.
type LogSender struct{}

func (LogSender) Send(_ context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	slog.Info("mail not configured, notice logged", "source", "notify", "to", msg.To, "subject", msg.Subject)
	return nil
}
