package testfixtures

import (
	"io"
	"log/slog"
	"time"

	"github.com/example/supervision-scheduler/internal/application"
	"github.com/example/supervision-scheduler/internal/notify"
	"github.com/example/supervision-scheduler/internal/recurrence"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers, clocks and a fixed recurrence zone.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Engine      *recurrence.Engine
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with UUID identifiers, a clock
// at ReferenceTime, a UTC recurrence engine and a discarding logger.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewUUIDGenerator("id")
	}
	if factory.Engine == nil {
		factory.Engine = recurrence.NewEngine(time.UTC)
	}
	if factory.Logger == nil {
		factory.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithLocation sets the zone used for weekly expansion and day bounds.
func WithLocation(loc *time.Location) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Engine = recurrence.NewEngine(loc)
	}
}

// WithLogger overrides the logger handed to services.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// ConflictServiceDeps captures dependencies for constructing a conflict service.
type ConflictServiceDeps struct {
	Sessions application.SessionReader
	Blocks   application.BlockReader
}

// NewConflictService builds a conflict service.
func (f *ServiceFactory) NewConflictService(deps ConflictServiceDeps) *application.ConflictService {
	return application.NewConflictService(deps.Sessions, deps.Blocks, f.Logger)
}

// SupervisionServiceDeps captures dependencies for constructing a supervision service.
type SupervisionServiceDeps struct {
	Sessions application.SessionStore
	Users    application.UserDirectory
	Blocks   application.BlockReader
}

// NewSupervisionService builds a supervision service with its own conflict
// service over the same session store.
func (f *ServiceFactory) NewSupervisionService(deps SupervisionServiceDeps) *application.SupervisionService {
	conflicts := f.NewConflictService(ConflictServiceDeps{Sessions: deps.Sessions, Blocks: deps.Blocks})
	return application.NewSupervisionService(
		deps.Sessions,
		deps.Users,
		conflicts,
		f.Engine,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		f.Logger,
	)
}

// SwapServiceDeps captures dependencies for constructing a swap service.
type SwapServiceDeps struct {
	Sessions application.SessionReader
	Blocks   application.BlockReader
	Users    application.UserReader
	Swaps    application.SwapStore
	Notifier notify.Notifier
}

// NewSwapService builds a swap service using the supplied dependencies.
func (f *ServiceFactory) NewSwapService(deps SwapServiceDeps) *application.SwapService {
	return application.NewSwapService(
		deps.Sessions,
		deps.Blocks,
		deps.Users,
		deps.Swaps,
		deps.Notifier,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		f.Logger,
	)
}

// NewAvailabilityService builds an availability service over blocks.
func (f *ServiceFactory) NewAvailabilityService(blocks application.BlockStore) *application.AvailabilityService {
	return application.NewAvailabilityService(blocks, f.Engine, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), f.Logger)
}

// NewUserService builds a user service over users with the default cache TTL.
func (f *ServiceFactory) NewUserService(users application.UserRepository) *application.UserService {
	return application.NewUserService(users, 0, f.Clock.NowFunc(), f.Logger)
}

// Services bundles every application service wired to one storage.
type Services struct {
	Conflicts    *application.ConflictService
	Supervisions *application.SupervisionService
	Swaps        *application.SwapService
	Availability *application.AvailabilityService
	Users        *application.UserService
}

// NewSQLiteServices wires every service over the harness storage. The
// factory clock is replaced by the harness clock so stored timestamps and
// service decisions agree.
func (f *ServiceFactory) NewSQLiteServices(h *SQLiteHarness, notifier notify.Notifier) Services {
	f.Clock = h.Clock
	storage := h.Storage
	return Services{
		Conflicts: f.NewConflictService(ConflictServiceDeps{Sessions: storage.Sessions, Blocks: storage.Availability}),
		Supervisions: f.NewSupervisionService(SupervisionServiceDeps{
			Sessions: storage.Sessions,
			Users:    storage.Users,
			Blocks:   storage.Availability,
		}),
		Swaps: f.NewSwapService(SwapServiceDeps{
			Sessions: storage.Sessions,
			Blocks:   storage.Availability,
			Users:    storage.Users,
			Swaps:    storage.SwapRequests,
			Notifier: notifier,
		}),
		Availability: f.NewAvailabilityService(storage.Availability),
		Users:        f.NewUserService(storage.Users),
	}
}
