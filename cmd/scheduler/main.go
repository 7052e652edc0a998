package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/example/worship-scheduler/internal/application"
	"github.com/example/worship-scheduler/internal/calendar"
	"github.com/example/worship-scheduler/internal/config"
	httptransport "github.com/example/worship-scheduler/internal/http"
	"github.com/example/worship-scheduler/internal/logging"
	"github.com/example/worship-scheduler/internal/persistence"
	"github.com/example/worship-scheduler/internal/persistence/redis"
	"github.com/example/worship-scheduler/internal/persistence/sqlite"
	"github.com/example/worship-scheduler/internal/remote"
	"github.com/example/worship-scheduler/internal/remote/postgres"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("scheduler stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	store, closeStore, err := openStateStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeStore(); cerr != nil {
			logger.Error("failed to close state store", "error", cerr)
		}
	}()

	client, closeRemote, err := openRemote(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeRemote(); cerr != nil {
			logger.Error("failed to close remote client", "error", cerr)
		}
	}()

	app := newServices(store, client, cfg, logger)

	seed, err := config.LoadServiceTypeSeed(cfg.ServiceTypesFile)
	if err != nil {
		return err
	}
	if err := seedServiceTypes(ctx, app.registry, seed); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           newHandler(app, cfg, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("scheduler API listening", "addr", server.Addr, "state_backend", cfg.StateBackend)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// openStateStore returns the configured backend and its close function.
func openStateStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (persistence.StateStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.StateBackend {
	case config.BackendMemory:
		return persistence.NewMemoryStore(), noop, nil
	case config.BackendRedis:
		store, err := redis.NewStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open redis state store: %w", err)
		}
		return store, store.Close, nil
	case config.BackendSQLite, "":
		store, err := sqlite.Open(cfg.SQLiteDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite state store: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("migrate sqlite state store: %w", err)
		}
		logger.Info("sqlite state store ready", "dsn", cfg.SQLiteDSN)
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
	}
}

// openRemote connects the remote service list. Without a database URL the
// in-process list is used.
func openRemote(ctx context.Context, cfg config.Config) (remote.Client, func() error, error) {
	var (
		client    remote.Client
		closeFunc = func() error { return nil }
	)

	if cfg.RemoteDatabaseURL == "" {
		client = remote.NewMemory(remote.WithIDGenerator(uuid.NewString))
	} else {
		db, err := postgres.Open(ctx, cfg.RemoteDatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open remote database: %w", err)
		}
		pg := postgres.NewClient(db)
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, fmt.Errorf("migrate remote database: %w", err)
		}
		client, closeFunc = pg, pg.Close
	}

	if cfg.RemoteRate > 0 {
		client = remote.NewThrottle(client, cfg.RemoteRate)
	}
	return client, closeFunc, nil
}

type services struct {
	registry     *application.ServiceTypeRegistry
	schedules    *application.ScheduleStore
	conflicts    *application.ConflictLog
	availability *application.AvailabilitySynchronizer
	reconciler   *application.SelectionReconciler
	publisher    *application.SchedulePublisher
}

func newServices(store persistence.StateStore, client remote.Client, cfg config.Config, logger *slog.Logger) services {
	now := time.Now
	adhocTime := cfg.AdhocDefaultTime
	if adhocTime == "" {
		adhocTime = application.DefaultAdhocTime
	}

	registry := application.NewServiceTypeRegistryWithLogger(store, uuid.NewString, logger)
	schedules := application.NewScheduleStoreWithLogger(store, registry, adhocTime, now, logger)
	conflicts := application.NewConflictLogWithLogger(store, uuid.NewString, now, logger)

	return services{
		registry:     registry,
		schedules:    schedules,
		conflicts:    conflicts,
		availability: application.NewAvailabilitySynchronizerWithLogger(store, registry, schedules, conflicts, now, logger),
		reconciler:   application.NewSelectionReconcilerWithLogger(registry, schedules, client, adhocTime, logger),
		publisher:    application.NewSchedulePublisherWithLogger(schedules, registry, client, application.DefaultInstruments, logger),
	}
}

func newHandler(app services, cfg config.Config, logger *slog.Logger) http.Handler {
	return httptransport.NewRouter(httptransport.RouterConfig{
		ServiceTypes: httptransport.NewServiceTypeHandler(app.registry, logger),
		Selection:    httptransport.NewSelectionHandler(app.schedules, app.reconciler, logger),
		Availability: httptransport.NewAvailabilityHandler(app.availability, app.schedules, logger),
		Schedules:    httptransport.NewScheduleHandler(app.schedules, app.publisher, logger),
		Conflicts:    httptransport.NewConflictHandler(app.conflicts, logger),
		Calendar: httptransport.NewCalendarHandler(app.schedules, app.registry, calendar.Options{
			Location:  cfg.Location,
			AdhocTime: cfg.AdhocDefaultTime,
		}, logger),
		Leaders:    httptransport.NewStaticLeaders(cfg.LeaderIDs...),
		Logger:     logger,
		Middleware: []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	})
}

// seedServiceTypes populates teams that have no service types yet.
func seedServiceTypes(ctx context.Context, registry *application.ServiceTypeRegistry, seed config.ServiceTypeSeed) error {
	for _, team := range seed.Teams {
		inputs := make([]application.ServiceTypeInput, 0, len(team.ServiceTypes))
		for _, st := range team.ServiceTypes {
			inputs = append(inputs, application.ServiceTypeInput{
				ID:             st.ID,
				Name:           st.Name,
				ScheduleType:   application.ScheduleType(st.ScheduleType),
				DefaultWeekday: st.DefaultWeekday.Time(),
				ServiceTime:    st.ServiceTime,
				RehearsalType:  application.RehearsalType(st.RehearsalType),
				RehearsalTime:  st.RehearsalTime,
				Order:          st.Order,
				IsPrimary:      st.Primary,
			})
		}
		if _, err := registry.Seed(ctx, team.TeamID, inputs); err != nil {
			return fmt.Errorf("seed service types for team %s: %w", team.TeamID, err)
		}
	}
	return nil
}
