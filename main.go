package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PhilHem/gamepanel/backend/auth"
	"github.com/PhilHem/gamepanel/backend/config"
	"github.com/PhilHem/gamepanel/backend/crypt"
	"github.com/PhilHem/gamepanel/backend/database"
	"github.com/PhilHem/gamepanel/backend/handlers"
	"github.com/PhilHem/gamepanel/backend/logger"
	"github.com/PhilHem/gamepanel/backend/middleware"
	"github.com/PhilHem/gamepanel/backend/notify"
	"github.com/PhilHem/gamepanel/backend/password"
	"github.com/PhilHem/gamepanel/backend/server"
	"github.com/PhilHem/gamepanel/backend/session"
	"github.com/PhilHem/gamepanel/backend/twofactor"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// run returns instead of exiting so deferred cleanup executes.
func run() error {
	// Load configuration
	if err := config.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := config.C
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to init database: %w", err)
	}

	// Initialize structured logging
	slog.SetDefault(slog.New(logger.NewDBHandler(db, &logger.Options{Level: logger.ParseLevel(cfg.Logs.Level)})))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go logger.CleanupOldLogs(ctx, db, cfg.Logs.Retention)

	enc, err := crypt.FromAppKey(cfg.AppKey)
	if err != nil {
		return fmt.Errorf("failed to init encryption: %w", err)
	}

	sessions, err := session.NewStore(cfg.Session.Secret, session.Options{
		Timeout: cfg.Session.Timeout,
		Secure:  cfg.Session.SecureCookie,
	})
	if err != nil {
		return fmt.Errorf("failed to init session: %w", err)
	}

	users := database.NewUsers(db)
	hasher := password.Bcrypt{}
	secrets := twofactor.NewManager(cfg.AppName, enc, users, twofactor.WithQRSize(cfg.TwoFactor.QRSize))

	var sender notify.Sender = notify.LogSender{}
	if cfg.MailConfigured() {
		smtp, err := notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			TLS:      cfg.Mail.TLS,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		})
		if err != nil {
			return fmt.Errorf("failed to init mail: %w", err)
		}
		sender = smtp
	} else {
		slog.Warn("mail not configured, security notices are only logged", "source", "main")
	}

	var limits middleware.LimitStore
	if cfg.RedisURL != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		client, err := middleware.ConnectRedis(connectCtx, cfg.RedisURL)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer client.Close()
		limits = middleware.NewRedisLimitStore(client)
	}

	flow := auth.NewFlow(users, hasher, secrets,
		auth.WithLogger(slog.Default()),
		auth.WithNotifier(notify.NewNotifier(cfg.AppName, sender)),
		auth.WithTolerance(cfg.TwoFactor.Tolerance),
	)

	handler := server.NewRouter(server.Deps{
		Handler: handlers.New(handlers.Deps{
			Sessions: sessions,
			Flow:     flow,
			Users:    users,
			Hasher:   hasher,
			DB:       db,
		}),
		Guard:      middleware.NewGuard(sessions, flow),
		CSRF:       middleware.NewCSRFProtection(cfg.Session.Secret, cfg.Session.SecureCookie),
		Limits:     limits,
		Attempts:   cfg.RateLimit.Attempts,
		Window:     cfg.RateLimit.Window,
		Production: cfg.IsProduction(),
	})

	slog.Info("server starting", "source", "main", "listen", cfg.Listen, "public_url", cfg.PublicURL, "redis", cfg.RedisURL != "")

	srv := &http.Server{Addr: cfg.Listen, Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	fmt.Printf("Server running at %s (public: %s)\n", cfg.Listen, cfg.PublicURL)
	if cfg.TLS.Enabled {
		slog.Info("starting server with TLS", "source", "main")
		err = srv.ListenAndServeTLS(cfg.TLS.Cert, cfg.TLS.Key)
	} else {
		err = srv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		slog.Info("server stopped", "source", "main")
		return nil
	}
	return err
}
