// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "makino-adapter/docs"
	"makino-adapter/internal/config"
	"makino-adapter/internal/controller"
	"makino-adapter/internal/database"
	"makino-adapter/internal/handler"
	"makino-adapter/internal/repository"
	"makino-adapter/internal/routes"
	"makino-adapter/internal/service"
	"makino-adapter/internal/session"
	"makino-adapter/internal/utils"
)

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	database *database.DB
	redis    *redis.Client

	// Repositories
	snapshotRepo  repository.SnapshotRepository
	snapshotCache repository.SnapshotCache

	// Controller access
	linkRegistry *controller.Registry
	backend      *controller.Backend
	negotiator   *session.Negotiator

	// Services
	registry       *prometheus.Registry
	metrics        *service.Metrics
	eventBus       *handler.EventBus
	adapterService *service.AdapterService
	wsHandler      *handler.WebSocketHandler

	cancel context.CancelFunc
}

// @title Makino Tool Data Adapter API
// @version 1.0.0
// @description Tool life data acquisition from Makino ProX controllers
// @termsOfService http://swagger.io/terms/

// @contact.name Makino Adapter API Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8085
// @BasePath /api/v1
func main() {
	// Initialize application
	app, err := NewApplication()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	// Start the application
	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication() (*Application, error) {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Create service logger
	serviceLogger := utils.NewServiceLogger(logger, "makino-adapter")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	// Initialize components
	if err := app.initializeDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initializeRepositories(); err != nil {
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	if err := app.initializeLinkRegistry(); err != nil {
		return nil, fmt.Errorf("failed to initialize link registry: %w", err)
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initializeServer(); err != nil {
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}

	return app, nil
}

// initializeDatabase sets up the database connection and runs migrations
func (app *Application) initializeDatabase() error {
	if !app.config.Database.Enabled {
		app.logger.Info("Database disabled, snapshot history is not kept")
		return nil
	}

	db, err := database.NewConnection(&app.config.Database, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	app.database = db

	migrator := database.NewMigrator(app.logger, &app.config.Database)
	if err := migrator.Up(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	app.logger.Info("Database initialized successfully")
	return nil
}

// initializeRepositories creates repository instances
func (app *Application) initializeRepositories() error {
	if app.database != nil {
		app.snapshotRepo = repository.NewSnapshotRepository(app.database, app.logger)
	}

	if app.config.Redis.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		client, err := repository.NewRedisClient(ctx, &app.config.Redis, app.logger)
		if err != nil {
			return err
		}
		app.redis = client
		app.snapshotCache = repository.NewSnapshotCache(client, app.config.Redis.KeyTTL, app.logger)
	}

	app.logger.Info("Repositories initialized successfully",
		zap.Bool("history", app.snapshotRepo != nil),
		zap.Bool("cache", app.snapshotCache != nil),
	)
	return nil
}

// initializeLinkRegistry registers the controller links and builds the session negotiator
func (app *Application) initializeLinkRegistry() error {
	app.linkRegistry = controller.NewRegistry(app.logger)

	backend, err := controller.RegisterDefaultLinks(app.linkRegistry, &app.config.Controller, app.logger)
	if err != nil {
		return err
	}
	app.backend = backend

	opts, err := controller.SessionOptions(&app.config.Controller)
	if err != nil {
		return err
	}
	throttle := session.NewThrottle(app.config.Controller.ConnectionDelay)
	app.negotiator = session.NewNegotiator(app.linkRegistry, throttle, opts, app.logger)

	app.logger.Info("Link registry initialized successfully",
		zap.String("backend", backend.Name()),
		zap.Int("registered_links", len(app.linkRegistry.ListLinks())),
	)
	return nil
}

// initializeServices creates service instances
func (app *Application) initializeServices() error {
	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.metrics = service.NewMetrics(app.registry)

	app.eventBus = handler.NewEventBus(app.logger)

	opts := []service.Option{
		service.WithBackend(app.backend.Name()),
		service.WithPublisher(app.eventBus),
	}
	if app.snapshotRepo != nil {
		opts = append(opts, service.WithRepository(app.snapshotRepo))
	}
	if app.snapshotCache != nil {
		opts = append(opts, service.WithCache(app.snapshotCache))
	}

	app.adapterService = service.NewAdapterService(app.negotiator, app.metrics, app.config, app.logger, opts...)
	app.negotiator.SetObserver(app.adapterService)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.adapterService.Restore(ctx); err != nil {
		// A missing restore only delays the first snapshot until the first poll
		app.logger.Warn("Failed to restore the last snapshot", zap.Error(err))
	}

	app.wsHandler = handler.NewWebSocketHandler(app.adapterService, app.eventBus, app.logger)

	app.logger.Info("Services initialized successfully")
	return nil
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() error {
	var rdb redis.UniversalClient
	if app.redis != nil {
		rdb = app.redis
	}

	routerManager := routes.NewRouter(
		app.config,
		app.logger,
		app.database,
		rdb,
		app.adapterService,
		app.wsHandler,
		app.registry,
	)

	router := routerManager.SetupRouter()

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
	)

	return nil
}

// startBackgroundServices starts background services
func (app *Application) startBackgroundServices() {
	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel

	go app.eventBus.Start(ctx)
	go app.wsHandler.Run(ctx)

	if app.config.Polling.Enabled {
		go app.adapterService.StartPolling(ctx)
	} else {
		app.logger.Info("Polling disabled, snapshots are refreshed on request")
	}

	app.logger.Info("Background services started")
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (app *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	app.shutdown()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "makino-adapter")
	serviceLogger.LogServiceStop("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	// Stop polling before the handles are freed
	if app.cancel != nil {
		app.cancel()
	}

	if err := app.adapterService.Close(ctx); err != nil {
		app.logger.Error("Controller session close error", zap.Error(err))
	} else {
		app.logger.Info("Controller sessions closed")
	}

	if err := app.backend.Close(); err != nil {
		app.logger.Error("Controller backend close error", zap.Error(err))
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("Redis close error", zap.Error(err))
		}
	}

	if app.database != nil {
		if err := app.database.Close(); err != nil {
			app.logger.Error("Database close error", zap.Error(err))
		} else {
			app.logger.Info("Database connection closed")
		}
	}

	app.logger.Info("Application shutdown completed")

	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}

// Start runs the server and the background services until a shutdown signal
func (app *Application) Start() error {
	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	app.startBackgroundServices()

	app.waitForShutdown()

	return nil
}
