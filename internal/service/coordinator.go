package service

import (
	"context"
	"fmt"

	"bengkelku/internal/clock"
	"bengkelku/internal/config"
	"bengkelku/internal/domain"
	"bengkelku/internal/events"
	"bengkelku/internal/ids"
	"bengkelku/internal/logging"
	"bengkelku/internal/models"
	"bengkelku/internal/repository"
	"bengkelku/internal/seed"
	"bengkelku/internal/simulation"
	"bengkelku/internal/worker"

	"github.com/rs/zerolog"
)

var (
	_ domain.UserService    = (*UserService)(nil)
	_ domain.VehicleService = (*VehicleService)(nil)
	_ domain.BookingService = (*BookingService)(nil)
)

// Deps collects what the coordinator needs. Nil fields get working defaults.
type Deps struct {
	Store   domain.Store
	Network domain.Network
	Events  domain.EventPublisher
	Clock   clock.Clock
	IDs     ids.Generator
	Seed    seed.Provider
	Config  *config.Config
	Logger  *zerolog.Logger
}

// Coordinator wires the catalog, user, vehicle and booking stores over one storage backend
// and owns the app-level lifecycle: first launch, demo data and clearing everything.
type Coordinator struct {
	Catalog  *CatalogService
	Users    *UserService
	Vehicles *VehicleService
	Bookings *BookingService

	store    domain.Store
	eventBus domain.EventPublisher
	seed     seed.Provider
	config   *config.Config
	logger   *zerolog.Logger
}

func NewCoordinator(deps Deps) *Coordinator {
	if deps.Store == nil {
		deps.Store = repository.NewMemoryStore()
	}
	if deps.Network == nil {
		deps.Network = simulation.Nop{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.IDs == nil {
		deps.IDs = ids.NewUUIDGenerator(deps.Clock)
	}
	if deps.Config == nil {
		deps.Config = &config.Config{}
	}
	if deps.Seed == nil {
		deps.Seed = seed.NewDemo(deps.Clock, deps.Config.Services)
	}
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}

	cfg := deps.Config
	catalog := NewCatalogService(deps.Store, deps.Logger)
	users := NewUserService(deps.Store, deps.Network, deps.Events, deps.Clock, deps.IDs, deps.Seed, cfg.Auth, deps.Logger)
	vehicles := NewVehicleService(deps.Store, deps.Network, deps.Events, users, deps.Clock, deps.IDs, cfg.Vehicle, deps.Logger)
	bookings := NewBookingService(deps.Store, deps.Network, deps.Events, users, catalog, vehicles, users, deps.Clock, deps.IDs, cfg.Booking, deps.Logger)

	return &Coordinator{
		Catalog:  catalog,
		Users:    users,
		Vehicles: vehicles,
		Bookings: bookings,
		store:    deps.Store,
		eventBus: deps.Events,
		seed:     deps.Seed,
		config:   cfg,
		logger:   deps.Logger,
	}
}

// Load seeds the catalog if storage has none, reads every collection and makes sure the
// demo account can log in.
func (c *Coordinator) Load(ctx context.Context) error {
	if err := c.Catalog.Seed(ctx, c.seed.ServiceCatalog()); err != nil {
		return err
	}
	c.RefreshAll(ctx)
	if err := c.Users.EnsureDefaultAccount(ctx); err != nil {
		return fmt.Errorf("ensure default account: %w", err)
	}
	return nil
}

// RefreshAll reloads every store from storage.
func (c *Coordinator) RefreshAll(ctx context.Context) {
	c.Catalog.Refresh(ctx)
	c.Users.Refresh(ctx)
	c.Vehicles.Refresh(ctx)
	c.Bookings.Refresh(ctx)
}

// IsDataInitialized reports whether a session user exists and vehicles are registered.
func (c *Coordinator) IsDataInitialized(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	return c.Users.IsLoggedIn() && c.Vehicles.HasVehicles()
}

// IsFirstLaunch is true until demo data has been installed once.
func (c *Coordinator) IsFirstLaunch(ctx context.Context) bool {
	done := repository.ReadSingleton[bool](ctx, c.store, repository.KeyFirstLaunch, c.logger)
	return done == nil || !*done
}

func (c *Coordinator) markLaunched(ctx context.Context) error {
	done := true
	return repository.WriteSingleton(ctx, c.store, repository.KeyFirstLaunch, &done)
}

// ClearAll logs out and wipes storage, including the first-launch flag.
func (c *Coordinator) ClearAll(ctx context.Context) error {
	if err := c.Users.Logout(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Logout before clear failed")
	}
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear storage: %w", err)
	}
	c.RefreshAll(ctx)

	c.logger.Info().Msg("All data cleared")
	if c.eventBus != nil {
		if err := c.eventBus.PublishJSON(events.EventDataCleared, struct{}{}); err != nil {
			c.logger.Error().Err(err).Msg("publish event error")
		}
	}
	return nil
}

// EnsureDemoData restores whatever the demo needs: a session user, a catalog and, on first
// launch, the demo vehicles and history.
func (c *Coordinator) EnsureDemoData(ctx context.Context) error {
	if !c.Users.IsLoggedIn() {
		if err := c.Users.ResetToDefaultUser(ctx); err != nil {
			return fmt.Errorf("install default user: %w", err)
		}
	}
	if len(c.Catalog.ListActive()) == 0 {
		if err := c.Catalog.Seed(ctx, c.seed.ServiceCatalog()); err != nil {
			return err
		}
	}
	if c.IsFirstLaunch(ctx) {
		return c.InitializeDemoData(ctx)
	}
	return nil
}

// InitializeDemoData installs the demo catalog, vehicles and bookings. The demo user's
// balance is set to the points of the completed demo bookings.
func (c *Coordinator) InitializeDemoData(ctx context.Context) error {
	if err := c.Catalog.Seed(ctx, c.seed.ServiceCatalog()); err != nil {
		return err
	}
	if err := c.Vehicles.Seed(ctx, c.seed.DemoVehicles()); err != nil {
		return fmt.Errorf("seed vehicles: %w", err)
	}
	bookings := c.seed.DemoBookings()
	if err := c.Bookings.Seed(ctx, bookings); err != nil {
		return fmt.Errorf("seed bookings: %w", err)
	}
	if err := c.Users.InstallDefaultUser(ctx, seed.EarnedPoints(bookings)); err != nil {
		return fmt.Errorf("install default user: %w", err)
	}
	if err := c.markLaunched(ctx); err != nil {
		return fmt.Errorf("mark first launch: %w", err)
	}

	c.logger.Info().Int("vehicles", c.Vehicles.Count()).Int("bookings", len(bookings)).Msg("Demo data initialized")
	return nil
}

// CreateBookingWithRetry retries CreateBooking on transient network failures.
func (c *Coordinator) CreateBookingWithRetry(ctx context.Context, draft models.Booking, policy worker.RetryPolicy) (string, error) {
	var id string
	err := worker.Do(ctx, policy, func(ctx context.Context) error {
		var err error
		id, err = c.Bookings.CreateBooking(ctx, draft)
		if domain.IsTransient(err) {
			c.logger.Warn().Err(err).Msg("Create booking failed, retrying")
		}
		return err
	})
	return id, err
}

// RetryPolicy builds the retry policy from the booking config.
func (c *Coordinator) RetryPolicy() worker.RetryPolicy {
	return worker.DefaultRetryPolicy(c.config.Booking.RetryAttempts)
}
