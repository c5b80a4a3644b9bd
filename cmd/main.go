package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"docregistry/internal/adapter"
	"docregistry/internal/config"
	"docregistry/internal/handler"
	"docregistry/internal/query"
	"docregistry/internal/remote"
	"docregistry/internal/repository"
	"docregistry/internal/storage"
	"docregistry/migrations"
)

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zcfg.Level = level
	return zcfg.Build()
}

// connectWithRetry creates the database when it is missing and then waits
// for it to accept connections.
func connectWithRetry(cfg config.DatabaseConfig, maxAttempts int, delay time.Duration, logger *zap.SugaredLogger) (*sqlx.DB, error) {
	dsn := cfg.GetDSN()

	pgDSN := strings.Replace(dsn, "dbname="+cfg.Name, "dbname=postgres", 1)
	if pgDB, err := sqlx.Connect("postgres", pgDSN); err != nil {
		logger.Warnf("[DB] Cannot reach maintenance database, skipping create check: %v", err)
	} else {
		var exists bool
		err = pgDB.Get(&exists, "SELECT EXISTS(SELECT datname FROM pg_catalog.pg_database WHERE datname = $1)", cfg.Name)
		if err == nil && !exists {
			logger.Infof("[DB] Database %s does not exist, creating", cfg.Name)
			_, err = pgDB.Exec("CREATE DATABASE " + pq.QuoteIdentifier(cfg.Name))
		}
		pgDB.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to prepare database %s: %w", cfg.Name, err)
		}
	}

	var (
		db  *sqlx.DB
		err error
	)
	for i := 0; i < maxAttempts; i++ {
		db, err = sqlx.Connect("postgres", dsn)
		if err == nil {
			return db, nil
		}

		logger.Warnf("[DB] Failed to connect (attempt %d/%d): %v", i+1, maxAttempts, err)
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", maxAttempts, err)
}

func runMigrations(cfg config.DatabaseConfig, logger *zap.SugaredLogger) error {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	var m *migrate.Migrate
	for i := 0; i < 5; i++ {
		m, err = migrate.NewWithSourceInstance("iofs", source, cfg.GetURL())
		if err == nil {
			break
		}
		logger.Warnf("[Migrate] Failed to create migrate instance (attempt %d/5): %v", i+1, err)
		time.Sleep(5 * time.Second)
	}
	if err != nil {
		return fmt.Errorf("failed to create migrate instance after retries: %w", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if dirty {
		logger.Warnf("[Migrate] Found dirty database state at version %d, forcing version", version)
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	appConfig, err := config.NewConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := newLogger(appConfig.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()
	zap.ReplaceGlobals(zl)
	logger := zl.Sugar()

	ctx := context.Background()

	db, err := connectWithRetry(appConfig.Database, 5, 5*time.Second, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database after retries: %v", err)
	}
	defer db.Close()

	if err := runMigrations(appConfig.Database, logger); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	content, err := storage.NewClient(ctx, &appConfig.S3, logger)
	if err != nil {
		logger.Fatalf("Failed to create S3 client: %v", err)
	}

	resolver := query.URLResolver{HostURL: appConfig.Server.HostURL}
	relational := repository.NewBackend(db, content, repository.Options{
		Resolver: resolver,
		Logger:   logger,
	})

	var (
		remoteBackend query.Backend
		rpc           *remote.RPCClient
	)
	if appConfig.Remote.Enabled {
		rpc, err = remote.Dial(ctx, appConfig.Remote.URL, appConfig.Remote.Timeout, logger)
		if err != nil {
			logger.Fatalf("Failed to connect to remote repository: %v", err)
		}
		remoteBackend = adapter.NewBackend(rpc, adapter.Options{
			DeleteIsObliterate: appConfig.Remote.DeleteIsObliterate,
			Resolver:           resolver,
			Logger:             logger,
		})
	}

	registry := query.NewDispatcher(appConfig.Remote.Enabled, relational, remoteBackend)
	logger.Infof("Serving documents from the %s backend", registry.Backend())

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/documenten/api/v1", handler.NewRegistry(registry, content, logger).Mount)

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", appConfig.Server.Port),
		Handler: r,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%s", appConfig.Server.GRPCPort))
		if err != nil {
			logger.Fatalf("Failed to listen for gRPC: %v", err)
		}
		logger.Infof("Starting gRPC server on port %s", appConfig.Server.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Fatalf("Failed to serve gRPC: %v", err)
		}
	}()

	go func() {
		logger.Infof("Starting HTTP server on port %s", appConfig.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	<-quit
	logger.Info("Shutting down servers...")
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("HTTP server forced to shutdown: %v", err)
	}

	grpcServer.GracefulStop()

	if rpc != nil {
		if err := rpc.Close(); err != nil {
			logger.Warnf("Error closing remote repository connection: %v", err)
		}
	}

	if err := db.Close(); err != nil {
		logger.Warnf("Error closing database connection: %v", err)
	}

	logger.Info("Server exited properly")
}
