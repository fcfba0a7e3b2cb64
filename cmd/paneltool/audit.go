package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/PhilHem/gamepanel/backend/config"
	"github.com/PhilHem/gamepanel/backend/crypt"
	"github.com/PhilHem/gamepanel/backend/database"
	"github.com/PhilHem/gamepanel/backend/session"
)

type severity int

const (
	pass severity = iota
	warn
	fail
)

func (s severity) String() string {
	switch s {
	case warn:
		return "WARN"
	case fail:
		return "FAIL"
	default:
		return "OK  "
	}
}

type finding struct {
	severity severity
	message  string
}

type statsSource interface {
	TwoFactorStats(ctx context.Context) (database.TwoFactorStats, error)
}

func runAudit(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("audit", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", "config.yaml", "path to the YAML config")
	envPath := flags.String("env", ".env", "path to the .env file")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return 1
	}

	var stats statsSource
	if db, err := database.Open(cfg.DatabasePath); err == nil {
		stats = database.NewUsers(db)
	} else {
		fmt.Fprintf(stderr, "failed to open database: %v\n", err)
	}

	fmt.Fprintln(stdout, "Running security audit...")
	issues := 0
	for _, f := range audit(ctx, cfg, *envPath, stats) {
		fmt.Fprintf(stdout, "%s %s\n", f.severity, f.message)
		if f.severity == fail {
			issues++
		}
	}

	if issues > 0 {
		fmt.Fprintf(stdout, "Found %d security issue(s) that need attention.\n", issues)
		return 1
	}
	fmt.Fprintln(stdout, "All basic security checks passed.")
	return 0
}

func audit(ctx context.Context, cfg config.Config, envPath string, stats statsSource) []finding {
	var out []finding
	add := func(s severity, format string, args ...any) {
		out = append(out, finding{severity: s, message: fmt.Sprintf(format, args...)})
	}

	if cfg.IsProduction() && !cfg.Session.SecureCookie {
		add(fail, "session cookies are sent over plain HTTP; set SESSION_SECURE_COOKIE=true in production")
	} else {
		add(pass, "session cookie transport is properly configured")
	}
	add(pass, "session cookies are HttpOnly with SameSite=Lax")

	if len(cfg.Session.Secret) < session.MinSecretLength {
		add(fail, "SESSION_SECRET is shorter than %d characters", session.MinSecretLength)
	} else {
		add(pass, "session secret length is acceptable")
	}

	if _, err := crypt.ParseKey(cfg.AppKey); err != nil {
		add(fail, "APP_KEY is unusable (%v); two-factor secrets cannot be encrypted", err)
	} else {
		add(pass, "APP_KEY is set")
	}

	if cfg.IsProduction() && strings.HasPrefix(cfg.PublicURL, "http://") {
		add(fail, "PUBLIC_URL %s does not use HTTPS", cfg.PublicURL)
	}

	for _, path := range []string{envPath, cfg.DatabasePath} {
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		} else if err != nil {
			add(fail, "cannot stat %s: %v", path, err)
			continue
		}
		if perm := info.Mode().Perm(); perm&0o133 != 0 {
			add(fail, "%s has too open permissions: %04o", path, perm)
		} else {
			add(pass, "%s permissions are acceptable", path)
		}
	}

	if stats == nil {
		add(fail, "two-factor adoption could not be checked: database unavailable")
		return out
	}
	s, err := stats.TwoFactorStats(ctx)
	if err != nil {
		add(fail, "error checking two-factor authentication: %v", err)
		return out
	}
	add(pass, "two-factor authentication is available: %d out of %d users (%.2f%%) have enabled it", s.Enabled, s.Total, s.Percentage)
	if s.Percentage < 50 {
		add(warn, "less than 50%% of users have enabled two-factor authentication")
	}
	return out
}
