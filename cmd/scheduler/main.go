package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/example/supervision-scheduler/internal/application"
	"github.com/example/supervision-scheduler/internal/config"
	httptransport "github.com/example/supervision-scheduler/internal/http"
	"github.com/example/supervision-scheduler/internal/logging"
	"github.com/example/supervision-scheduler/internal/notify"
	"github.com/example/supervision-scheduler/internal/persistence/sqlite"
	"github.com/example/supervision-scheduler/internal/recurrence"
)

const (
	shutdownTimeout     = 10 * time.Second
	notifierHTTPTimeout = 10 * time.Second
	defaultTokenTTL     = 24 * time.Hour
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "scheduler: %v\n", err)
		os.Exit(1)
	}
}

// run loads configuration and either serves the API or, for the token
// subcommand, prints a signed bearer token to out.
func run(ctx context.Context, args []string, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if len(args) > 0 && args[0] == "token" {
		return issueToken(cfg, args[1:], out, time.Now)
	}

	logger := logging.New(out, cfg.LogLevel)
	srv, err := newApp(ctx, cfg, logger, time.Now)
	if err != nil {
		logger.Error("failed to start scheduler", "error", err)
		return err
	}
	defer srv.close()

	return srv.serve(ctx)
}

type app struct {
	cfg        config.Config
	logger     *slog.Logger
	storage    *sqlite.Storage
	dispatcher *notify.Dispatcher
	handler    http.Handler
	server     *http.Server
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, now func() time.Time) (*app, error) {
	storage, err := sqlite.Open(ctx, sqlite.DefaultConfig(cfg.SQLiteDSN),
		sqlite.WithLogger(logger),
		sqlite.WithClock(now),
	)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if err := storage.Migrate(ctx); err != nil {
		_ = storage.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	notifier, err := buildNotifier(cfg, logger)
	if err != nil {
		_ = storage.Close()
		return nil, err
	}
	dispatcher := notify.NewDispatcher(notifier, logger)

	idGenerator := uuid.NewString
	engine := recurrence.NewEngine(cfg.Location)

	conflictService := application.NewConflictService(storage.Sessions, storage.Availability, logger)
	supervisionService := application.NewSupervisionService(storage.Sessions, storage.Users, conflictService, engine, idGenerator, now, logger)
	swapService := application.NewSwapService(storage.Sessions, storage.Availability, storage.Users, storage.SwapRequests, dispatcher, idGenerator, now, logger)
	availabilityService := application.NewAvailabilityService(storage.Availability, engine, idGenerator, now, logger)
	userService := application.NewUserService(storage.Users, cfg.DirectoryCacheTTL, now, logger)

	handler := httptransport.NewRouter(httptransport.RouterConfig{
		Supervisions: httptransport.NewSupervisionHandler(supervisionService, logger),
		Conflicts:    httptransport.NewConflictHandler(conflictService, logger),
		Swaps:        httptransport.NewSwapHandler(swapService, now, logger),
		Availability: httptransport.NewAvailabilityHandler(availabilityService, cfg.Location, logger),
		Users:        httptransport.NewUserHandler(userService, logger),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.RequireBearer([]byte(cfg.JWTSecret), logger),
		},
		CORSOrigins: cfg.CORSOrigins,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &app{
		cfg:        cfg,
		logger:     logger,
		storage:    storage,
		dispatcher: dispatcher,
		handler:    handler,
		server:     server,
	}, nil
}

// serve blocks until ctx is cancelled or the listener fails, then drains
// in-flight requests and pending notifications.
func (a *app) serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("scheduler API listening", "addr", a.server.Addr, "timezone", a.cfg.Location.String())
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := a.server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("failed to shutdown server", "error", err)
		}
		if err := a.dispatcher.Wait(shutdownCtx); err != nil {
			a.logger.Warn("pending notifications abandoned", "error", err)
		}
		a.logger.Info("scheduler API stopped")
		return nil
	})

	return g.Wait()
}

func (a *app) close() {
	if err := a.storage.Close(); err != nil {
		a.logger.Error("failed to close storage", "error", err)
	}
}

func buildNotifier(cfg config.Config, logger *slog.Logger) (notify.Notifier, error) {
	switch cfg.NotifyMode {
	case config.NotifyResend, config.NotifySMTP:
		transport := notify.TransportResend
		if cfg.NotifyMode == config.NotifySMTP {
			transport = notify.TransportSMTP
		}
		notifier, err := notify.NewEmailNotifier(notify.EmailConfig{
			Transport:    transport,
			From:         cfg.NotifyFrom,
			ResendAPIKey: cfg.ResendAPIKey,
			SMTPHost:     cfg.SMTPHost,
			SMTPPort:     cfg.SMTPPort,
			SMTPUser:     cfg.SMTPUser,
			SMTPPass:     cfg.SMTPPass,
		}, &http.Client{Timeout: notifierHTTPTimeout})
		if err != nil {
			return nil, fmt.Errorf("configure notifier: %w", err)
		}
		return notifier, nil
	default:
		return notify.NewLogNotifier(logger), nil
	}
}

// issueToken signs a bearer token for local use against the API.
func issueToken(cfg config.Config, args []string, out io.Writer, now func() time.Time) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(out)
	subject := fs.String("sub", "", "user id placed in the sub claim")
	role := fs.String("role", string(application.RoleStudent), "STUDENT or ADMIN")
	ttl := fs.Duration("ttl", defaultTokenTTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *subject == "" {
		return errors.New("token: -sub is required")
	}
	if *ttl <= 0 {
		return errors.New("token: -ttl must be positive")
	}

	parsedRole := application.Role(strings.ToUpper(*role))
	switch parsedRole {
	case application.RoleStudent, application.RoleAdmin:
	default:
		return fmt.Errorf("token: unknown role %q", *role)
	}

	token, err := httptransport.SignToken([]byte(cfg.JWTSecret), *subject, parsedRole, now().Add(*ttl))
	if err != nil {
		return fmt.Errorf("token: %w", err)
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
