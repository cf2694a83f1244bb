package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bengkelku/internal/clock"
	"bengkelku/internal/config"
	"bengkelku/internal/database"
	"bengkelku/internal/domain"
	"bengkelku/internal/events"
	"bengkelku/internal/export"
	"bengkelku/internal/ids"
	"bengkelku/internal/logging"
	"bengkelku/internal/metrics"
	"bengkelku/internal/repository"
	"bengkelku/internal/seed"
	"bengkelku/internal/service"
	"bengkelku/internal/simulation"
	"bengkelku/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	var (
		exportUser = flag.String("export", "", "write the booking history of a user id to xlsx and exit (\"me\" for the session user)")
		clearData  = flag.Bool("clear", false, "wipe all stored data and exit")
	)
	flag.Parse()

	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := initStore(ctx, cfg, &logger)
	if err != nil {
		return err
	}
	defer cleanup()

	eventBus := events.NewEventBus()
	subscribeEvents(eventBus, &logger)

	clk := clock.Real{}
	coord := service.NewCoordinator(service.Deps{
		Store:   store,
		Network: simulation.New(cfg.Simulation, &logger),
		Events:  eventBus,
		Clock:   clk,
		IDs:     ids.NewUUIDGenerator(clk),
		Seed:    seed.NewDemo(clk, cfg.Services),
		Config:  cfg,
		Logger:  &logger,
	})
	if err := coord.Load(ctx); err != nil {
		return fmt.Errorf("load data: %w", err)
	}

	switch {
	case *clearData:
		return coord.ClearAll(ctx)
	case *exportUser != "":
		return exportHistory(ctx, cfg, coord, *exportUser, &logger)
	}

	if cfg.App.SeedDemo {
		if err := coord.EnsureDemoData(ctx); err != nil {
			return fmt.Errorf("ensure demo data: %w", err)
		}
	}

	startMetrics(ctx, cfg, &logger)

	reminder := worker.NewServiceReminder(coord.Vehicles, eventBus, clk, cfg.Reminder, &logger)
	reminder.Start(ctx)

	stats := coord.Bookings.BookingStats("")
	logger.Info().
		Bool("data_initialized", coord.IsDataInitialized(ctx)).
		Int("vehicles", coord.Vehicles.Count()).
		Int("bookings", stats.TotalBookings).
		Int("points", coord.Users.CurrentPoints()).
		Msg("BengkelKu core started")

	<-ctx.Done()
	logger.Info().Msg("Shutdown complete.")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "bengkelku-main").Logger()

	servicesPath := os.Getenv("SERVICES_PATH")
	if servicesPath == "" {
		servicesPath = "configs/services.yaml"
	}
	services, err := seed.LoadServices(servicesPath)
	switch {
	case err == nil:
		cfg.Services = services
	case errors.Is(err, os.ErrNotExist):
		logger.Info().Str("services_path", servicesPath).Msg("services file not found, using built-in catalog")
	default:
		logger.Error().Err(err).Str("services_path", servicesPath).Msg("load services")
		return nil, zerolog.Logger{}, closer, err
	}

	return cfg, logger, closer, nil
}

// initStore opens the configured backend. The returned cleanup is always safe to call.
func initStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (domain.Store, func(), error) {
	switch cfg.Storage.Driver {
	case config.StorageSQLite:
		db, err := database.NewDB(cfg.Storage.Path, logger)
		if err != nil {
			logger.Error().Err(err).Str("db_path", cfg.Storage.Path).Msg("init database")
			return nil, nil, err
		}
		if cfg.Backup.Enabled {
			backupService := database.NewBackupService(db, cfg.Backup, logger)
			go backupService.Start(ctx)
		}
		return db, func() { _ = db.Close() }, nil

	case config.StorageRedis:
		client := repository.NewRedisClient(cfg.Redis)
		primary := repository.NewRedisStore(client, cfg.Redis.KeyPrefix)
		cleanup := func() { _ = repository.Close(client) }

		if err := repository.Ping(ctx, client); err != nil {
			if !cfg.Storage.Failover {
				cleanup()
				return nil, nil, fmt.Errorf("redis unavailable: %w", err)
			}
			logger.Warn().Err(err).Msg("Redis unavailable, serving from memory until it recovers")
		} else {
			logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
		}

		if cfg.Storage.Failover {
			return repository.NewFailoverStore(primary, repository.NewMemoryStore(), logger), cleanup, nil
		}
		return primary, cleanup, nil

	default:
		logger.Warn().Msg("Using in-memory storage, data is lost on exit")
		return repository.NewMemoryStore(), func() {}, nil
	}
}

func subscribeEvents(bus *events.EventBus, logger *zerolog.Logger) {
	bus.Subscribe(events.AllEvents, func(ev *events.Event) error {
		logger.Debug().Str("event", ev.Type).RawJSON("payload", ev.Payload).Msg("event")
		return nil
	})

	bus.Subscribe(events.EventSideEffectFailed, func(ev *events.Event) error {
		var payload events.SideEffectPayload
		if err := ev.Decode(&payload); err != nil {
			logger.Error().Err(err).Str("event", ev.Type).Msg("event bus: decode payload")
			return nil
		}
		logger.Warn().
			Str("booking_id", payload.BookingID).
			Str("effect", payload.Effect).
			Str("error", payload.Error).
			Msg("Booking completed with a failed side effect")
		return nil
	})

	bus.Subscribe(events.EventServiceDue, func(ev *events.Event) error {
		var payload events.VehicleEventPayload
		if err := ev.Decode(&payload); err != nil {
			logger.Error().Err(err).Str("event", ev.Type).Msg("event bus: decode payload")
			return nil
		}
		logger.Info().
			Str("vehicle_id", payload.VehicleID).
			Str("vehicle", payload.DisplayName).
			Int("days_since_service", payload.DaysSince).
			Msg("Vehicle due for service")
		return nil
	})
}

func exportHistory(ctx context.Context, cfg *config.Config, coord *service.Coordinator, userID string, logger *zerolog.Logger) error {
	if userID == "me" {
		userID = ""
	}
	exporter := export.NewExporter(coord.Bookings, cfg.Exports, clock.Real{}, logger)
	path, err := exporter.ExportHistory(ctx, userID)
	if err != nil {
		return fmt.Errorf("export history: %w", err)
	}
	fmt.Println(path)
	return nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
