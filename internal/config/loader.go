package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// NotifyMode selects how swap request notifications are delivered.
type NotifyMode string

const (
	NotifyLog    NotifyMode = "log"
	NotifyResend NotifyMode = "resend"
	NotifySMTP   NotifyMode = "smtp"
)

const minJWTSecretLength = 16

// Config captures environment driven configuration values for the supervision service.
type Config struct {
	HTTPPort          int
	SQLiteDSN         string
	JWTSecret         string
	Location          *time.Location
	CORSOrigins       []string
	DirectoryCacheTTL time.Duration
	LogLevel          string

	NotifyMode   NotifyMode
	NotifyFrom   string
	ResendAPIKey string
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPass     string
}

// Load reads an optional .env file from the working directory and then parses
// the process environment. Variables already set in the environment win over .env.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: read .env: %w", err)
	}
	return FromEnv()
}

// FromEnv parses configuration from the current process environment only.
//
// Defaults apply to optional fields; every missing or malformed variable is
// reported together in a single error.
func FromEnv() (Config, error) {
	cfg := Config{
		HTTPPort:          8080,
		SQLiteDSN:         "file:supervision.db",
		DirectoryCacheTTL: 5 * time.Minute,
		LogLevel:          "info",
		NotifyMode:        NotifyLog,
		SMTPPort:          587,
	}

	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 2)

	if portValue := env("SUPERVISION_HTTP_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "SUPERVISION_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if dsn := env("SUPERVISION_SQLITE_DSN"); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	switch secret := env("SUPERVISION_JWT_SECRET"); {
	case secret == "":
		missing = append(missing, "SUPERVISION_JWT_SECRET")
	case len(secret) < minJWTSecretLength:
		invalid = append(invalid, "SUPERVISION_JWT_SECRET")
	default:
		cfg.JWTSecret = secret
	}

	tz := env("SUPERVISION_TIMEZONE")
	if tz == "" {
		tz = "Europe/London"
	}
	if loc, err := time.LoadLocation(tz); err != nil {
		invalid = append(invalid, "SUPERVISION_TIMEZONE")
	} else {
		cfg.Location = loc
	}

	if origins := env("SUPERVISION_CORS_ORIGINS"); origins != "" {
		for _, origin := range strings.Split(origins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
			}
		}
	}

	if ttlValue := env("SUPERVISION_DIRECTORY_CACHE_TTL"); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "SUPERVISION_DIRECTORY_CACHE_TTL")
		} else {
			cfg.DirectoryCacheTTL = ttl
		}
	}

	if level := env("SUPERVISION_LOG_LEVEL"); level != "" {
		cfg.LogLevel = strings.ToLower(level)
	}

	cfg.NotifyFrom = env("SUPERVISION_NOTIFY_FROM")
	cfg.ResendAPIKey = env("SUPERVISION_RESEND_API_KEY")
	cfg.SMTPHost = env("SUPERVISION_SMTP_HOST")
	cfg.SMTPUser = env("SUPERVISION_SMTP_USER")
	cfg.SMTPPass = os.Getenv("SUPERVISION_SMTP_PASS")

	if portValue := env("SUPERVISION_SMTP_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "SUPERVISION_SMTP_PORT")
		} else {
			cfg.SMTPPort = port
		}
	}

	if mode := env("SUPERVISION_NOTIFY_MODE"); mode != "" {
		cfg.NotifyMode = NotifyMode(strings.ToLower(mode))
	}
	switch cfg.NotifyMode {
	case NotifyLog:
	case NotifyResend:
		if cfg.ResendAPIKey == "" {
			missing = append(missing, "SUPERVISION_RESEND_API_KEY")
		}
		if cfg.NotifyFrom == "" {
			missing = append(missing, "SUPERVISION_NOTIFY_FROM")
		}
	case NotifySMTP:
		if cfg.SMTPHost == "" {
			missing = append(missing, "SUPERVISION_SMTP_HOST")
		}
		if cfg.NotifyFrom == "" {
			missing = append(missing, "SUPERVISION_NOTIFY_FROM")
		}
	default:
		invalid = append(invalid, "SUPERVISION_NOTIFY_MODE")
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("config: required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("config: environment variables have invalid values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
