package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/PhilHem/gamepanel/backend/crypt"
)

type Config struct {
	AppName      string          `yaml:"app_name" env:"APP_NAME"`
	Env          string          `yaml:"env" env:"APP_ENV"`
	AppKey       string          `yaml:"app_key" env:"APP_KEY"`
	Listen       string          `yaml:"listen" env:"LISTEN"`
	PublicURL    string          `yaml:"public_url" env:"PUBLIC_URL"`
	DatabasePath string          `yaml:"database_path" env:"DATABASE_PATH"`
	Session      SessionConfig   `yaml:"session"`
	TwoFactor    TwoFactorConfig `yaml:"two_factor"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
	RedisURL     string          `yaml:"redis_url" env:"REDIS_URL"` // empty keeps rate limits in memory
	Mail         MailConfig      `yaml:"mail"`
	TLS          TLSConfig       `yaml:"tls"`
	Logs         LogsConfig      `yaml:"logs"`
}

type TLSConfig struct {
	Enabled bool   `yaml:"enabled" env:"TLS_ENABLED"`
	Cert    string `yaml:"cert" env:"TLS_CERT"`
	Key     string `yaml:"key" env:"TLS_KEY"`
}

type SessionConfig struct {
	Timeout      time.Duration `yaml:"timeout" env:"SESSION_TIMEOUT"`
	Secret       string        `yaml:"secret" env:"SESSION_SECRET"`
	SecureCookie bool          `yaml:"secure_cookie" env:"SESSION_SECURE_COOKIE"`
}

type TwoFactorConfig struct {
	Tolerance uint `yaml:"tolerance" env:"TWO_FACTOR_TOLERANCE"` // accepted steps either side of now
	QRSize    int  `yaml:"qr_size" env:"TWO_FACTOR_QR_SIZE"`
}

type RateLimitConfig struct {
	Attempts int           `yaml:"attempts" env:"RATE_LIMIT_ATTEMPTS"`
	Window   time.Duration `yaml:"window" env:"RATE_LIMIT_WINDOW"`
}

type MailConfig struct {
	Host     string `yaml:"host" env:"MAIL_HOST"`
	Port     int    `yaml:"port" env:"MAIL_PORT"`
	TLS      bool   `yaml:"tls" env:"MAIL_TLS"`
	Username string `yaml:"username" env:"MAIL_USERNAME"`
	Password string `yaml:"password" env:"MAIL_PASSWORD"`
	From     string `yaml:"from" env:"MAIL_FROM"`
}

type LogsConfig struct {
	Level     string        `yaml:"level" env:"LOG_LEVEL"`
	Retention time.Duration `yaml:"retention" env:"LOG_RETENTION"`
}

var C Config

var (
	ErrSessionSecret = errors.New("SESSION_SECRET must be set to at least 32 characters")
	ErrAppKey        = errors.New("APP_KEY must be a base64 encoded 32 byte key")
)

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	return Config{
		AppName:      "GamePanel",
		Env:          "production",
		Listen:       ":8080",
		PublicURL:    "http://localhost:8080",
		DatabasePath: "app.db",
		Session: SessionConfig{
			Timeout:      24 * time.Hour,
			SecureCookie: true,
		},
		TwoFactor: TwoFactorConfig{
			Tolerance: 1,
			QRSize:    200,
		},
		RateLimit: RateLimitConfig{
			Attempts: 5,
			Window:   time.Minute,
		},
		Mail: MailConfig{
			Port: 587,
			TLS:  true,
		},
		Logs: LogsConfig{
			Level:     "info",
			Retention: 30 * 24 * time.Hour,
		},
	}
}

// Load fills C from defaults, config.yaml, .env and the environment, in
// that order of increasing precedence.
func Load() error {
	cfg, err := LoadFile("config.yaml")
	if err != nil {
		return err
	}
	C = cfg
	return nil
}

// LoadFile is Load with an explicit YAML path. A missing file is not an
// error.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}

	// .env never overrides variables already set in the process.
	_ = godotenv.Load()

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) MailConfigured() bool {
	return c.Mail.Host != "" && c.Mail.From != ""
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if len(c.Session.Secret) < 32 {
		errs = append(errs, ErrSessionSecret)
	}
	if _, err := crypt.ParseKey(c.AppKey); err != nil {
		errs = append(errs, errors.Join(ErrAppKey, err))
	}
	if c.TLS.Enabled && (c.TLS.Cert == "" || c.TLS.Key == "") {
		errs = append(errs, errors.New("TLS_CERT and TLS_KEY are required when TLS is enabled"))
	}
	return errors.Join(errs...)
}
