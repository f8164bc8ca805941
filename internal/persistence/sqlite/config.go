package sqlite

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds the SQLite connection settings.
type Config struct {
	// DSN is a file path or a modernc "file:" URI. Pragmas already present are kept.
	DSN               string
	BusyTimeout       time.Duration
	EnableForeignKeys bool
	JournalMode       string
	// ImmediateTx begins write transactions with BEGIN IMMEDIATE so concurrent
	// writers serialise on the lock instead of failing at upgrade time.
	ImmediateTx     bool
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns production defaults for the given database path.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:               dsn,
		BusyTimeout:       5 * time.Second,
		EnableForeignKeys: true,
		JournalMode:       "WAL",
		ImmediateTx:       true,
		MaxOpenConns:      8,
		MaxIdleConns:      4,
		ConnMaxLifetime:   30 * time.Minute,
	}
}

// Validate checks the configuration for obviously broken values.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DSN) == "" {
		return errors.New("sqlite: DSN cannot be empty")
	}
	if c.BusyTimeout < 0 {
		return errors.New("sqlite: busy timeout cannot be negative")
	}
	switch strings.ToUpper(c.JournalMode) {
	case "", "DELETE", "TRUNCATE", "PERSIST", "MEMORY", "WAL", "OFF":
	default:
		return fmt.Errorf("sqlite: invalid journal mode %q", c.JournalMode)
	}
	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 || c.ConnMaxLifetime < 0 {
		return errors.New("sqlite: pool settings cannot be negative")
	}
	return nil
}

// ConnectionString renders the DSN with the modernc _pragma and _txlock parameters applied.
func (c Config) ConnectionString() string {
	base, rawQuery, _ := strings.Cut(c.DSN, "?")
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		values = url.Values{}
	}

	present := make(map[string]bool)
	for _, pragma := range values["_pragma"] {
		name, _, _ := strings.Cut(pragma, "(")
		present[strings.ToLower(strings.TrimSpace(name))] = true
	}
	addPragma := func(name, value string) {
		if !present[name] {
			values.Add("_pragma", fmt.Sprintf("%s(%s)", name, value))
		}
	}

	if c.EnableForeignKeys {
		addPragma("foreign_keys", "on")
	}
	if c.BusyTimeout > 0 {
		addPragma("busy_timeout", fmt.Sprintf("%d", c.BusyTimeout.Milliseconds()))
	}
	if c.JournalMode != "" {
		addPragma("journal_mode", strings.ToLower(c.JournalMode))
	}
	if c.ImmediateTx && values.Get("_txlock") == "" {
		values.Set("_txlock", "immediate")
	}

	if len(values) == 0 {
		return base
	}
	return base + "?" + values.Encode()
}
