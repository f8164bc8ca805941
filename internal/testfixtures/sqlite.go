package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/example/supervision-scheduler/internal/persistence/sqlite"
)

// SQLiteHarness exposes migrated SQLite storage backed by a temporary file for
// integration-style tests.
type SQLiteHarness struct {
	Storage *sqlite.Storage
	Clock   *Clock

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness opens and migrates a fresh database under tb.TempDir. The
// storage clock is the harness Clock. Close is registered with tb.Cleanup.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	clock := NewClock(ReferenceTime())
	path := filepath.Join(tb.TempDir(), "scheduler.db")
	ctx := context.Background()

	storage, err := sqlite.Open(ctx, sqlite.DefaultConfig(path),
		sqlite.WithClock(clock.NowFunc()),
		sqlite.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	if err := storage.Migrate(ctx); err != nil {
		_ = storage.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Storage: storage,
		Clock:   clock,
		cleanup: func() {
			_ = storage.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}

// SeedUsers inserts the users or fails the test.
func (h *SQLiteHarness) SeedUsers(tb testing.TB, users ...UserFixture) {
	tb.Helper()
	for _, user := range users {
		if err := h.Storage.Users.UpsertUser(context.Background(), user.Persistence()); err != nil {
			tb.Fatalf("seed user %s: %v", user.ID, err)
		}
	}
}

// SeedSessions inserts the sessions and their rosters in one batch or fails the test.
func (h *SQLiteHarness) SeedSessions(tb testing.TB, sessions ...SessionFixture) {
	tb.Helper()
	if err := h.Storage.Sessions.CreateSessions(context.Background(), SessionsPersistence(sessions)); err != nil {
		tb.Fatalf("seed sessions: %v", err)
	}
}

// SeedBlocks inserts the availability blocks or fails the test.
func (h *SQLiteHarness) SeedBlocks(tb testing.TB, blocks ...BlockFixture) {
	tb.Helper()
	for _, block := range blocks {
		if err := h.Storage.Availability.CreateBlock(context.Background(), block.Persistence()); err != nil {
			tb.Fatalf("seed block %s: %v", block.ID, err)
		}
	}
}

// SeedSwapRequests inserts the swap requests or fails the test.
func (h *SQLiteHarness) SeedSwapRequests(tb testing.TB, requests ...SwapRequestFixture) {
	tb.Helper()
	for _, request := range requests {
		if err := h.Storage.SwapRequests.CreateSwapRequest(context.Background(), request.Persistence()); err != nil {
			tb.Fatalf("seed swap request %s: %v", request.ID, err)
		}
	}
}
