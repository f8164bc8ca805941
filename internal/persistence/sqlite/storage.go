package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/supervision-scheduler/internal/persistence/sqlite/migration"
)

// Storage bundles the SQLite-backed repositories over one connection pool.
type Storage struct {
	pool   *ConnectionPool
	logger *slog.Logger
	now    func() time.Time

	Users        *UserRepository
	Availability *AvailabilityRepository
	Sessions     *SessionRepository
	Enrollments  *EnrollmentRepository
	SwapRequests *SwapRequestRepository
}

// Option customises Storage.
type Option func(*Storage)

// WithLogger sets the logger used for migrations.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Storage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the clock used for created/updated timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Storage) {
		if now != nil {
			s.now = now
		}
	}
}

// Open connects to the database described by cfg.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Storage, error) {
	pool, err := NewConnectionPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s := &Storage{pool: pool, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	s.Users = NewUserRepository(pool, s.now)
	s.Availability = NewAvailabilityRepository(pool)
	s.Sessions = NewSessionRepository(pool, s.now)
	s.Enrollments = NewEnrollmentRepository(pool)
	s.SwapRequests = NewSwapRequestRepository(pool)
	return s, nil
}

// Migrate applies the embedded schema migrations.
func (s *Storage) Migrate(ctx context.Context) error {
	manager := migration.NewManager(
		migration.NewFileScanner(Migrations()),
		migration.NewSQLiteExecutor(s.pool.DB()),
		s.logger,
	)
	if err := manager.RunMigrations(ctx); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// Pool exposes the connection pool for tests and health checks.
func (s *Storage) Pool() *ConnectionPool {
	return s.pool
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	return s.pool.Close()
}
