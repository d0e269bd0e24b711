// Package main is the entry point for the TaskForge token service. It
// wires configuration, storage, the OAuth2 engine and the HTTP surface,
// and runs the server with graceful shutdown.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/taskforge-app/token-service/internal/auth"
	"github.com/taskforge-app/token-service/internal/clock"
	"github.com/taskforge-app/token-service/internal/config"
	"github.com/taskforge-app/token-service/internal/database/postgres"
	"github.com/taskforge-app/token-service/internal/handlers"
	"github.com/taskforge-app/token-service/internal/middleware"
	"github.com/taskforge-app/token-service/internal/redis"
	"github.com/taskforge-app/token-service/internal/repository"
	"github.com/taskforge-app/token-service/internal/startup"
	"github.com/taskforge-app/token-service/internal/token"
	"github.com/taskforge-app/token-service/pkg/logger"
)

func main() {
	// .env.local is a development convenience only.
	goEnv := os.Getenv("GO_ENV")
	if goEnv == "" || goEnv == "development" {
		if err := godotenv.Load(".env.local"); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: Error loading .env.local file: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	log.WithFields(logrus.Fields{
		"port": cfg.Server.Port,
		"host": cfg.Server.Host,
		"tls":  cfg.IsTLSEnabled(),
	}).Info("Starting TaskForge token service")

	store, redisClient, dbMgr, authService := initializeServices(cfg, log)
	defer closeStore(store, log)
	defer closeDatabase(dbMgr, log)

	seeder := startup.NewClientSeeder(cfg, authService, log)
	if seedErr := seeder.Seed(context.Background()); seedErr != nil {
		log.WithError(seedErr).Error("Failed to seed clients during startup")
	}

	server := setupServer(cfg, store, redisClient, dbMgr, authService, log)

	runServer(server, cfg, log)
}

// initializeServices builds the storage, database and engine layers.
// Redis is preferred; when unreachable the service falls back to the
// in-memory store so local development works without infrastructure.
func initializeServices(
	cfg *config.Config,
	log *logrus.Logger,
) (redis.Store, *goredis.Client, *postgres.Manager, auth.Service) {
	dbMgr := postgres.NewManager(cfg, log)

	var store redis.Store
	var redisClient *goredis.Client

	client, err := redis.NewClient(&cfg.Redis, log)
	if err != nil {
		log.WithError(err).Warn("Failed to connect to Redis, falling back to in-memory store")
		log.Warn("In-memory store will not persist tokens between restarts")
		store = redis.NewMemoryStore(log)
	} else {
		log.Info("Connected to Redis store")
		store = client
		redisClient = client.Underlying()
	}

	var authenticator auth.Authenticator
	if cfg.IsPostgresConfigured() {
		users := repository.NewPostgresUserRepository(dbMgr.Pool)
		authenticator = auth.NewRepositoryAuthenticator(users, log)
	} else {
		authenticator = auth.NewStoreAuthenticator(store, log)
	}

	authService := auth.NewOAuth2Service(cfg, store, token.NewGenerator(), clock.System(), authenticator, log)

	return store, redisClient, dbMgr, authService
}

func closeStore(store redis.Store, log *logrus.Logger) {
	if err := store.Close(); err != nil {
		log.WithError(err).Error("Failed to close store connection")
	}
}

func closeDatabase(dbMgr *postgres.Manager, log *logrus.Logger) {
	if dbMgr != nil {
		dbMgr.Close()
		log.Info("Database connections closed")
	}
}

func setupServer(
	cfg *config.Config,
	store redis.Store,
	redisClient *goredis.Client,
	dbMgr *postgres.Manager,
	authService auth.Service,
	log *logrus.Logger,
) *http.Server {
	oauth2Handler := handlers.NewOAuth2Handler(authService, cfg, log)
	healthHandler := handlers.NewHealthHandler(cfg, store, dbMgr, log)

	middlewareStack := middleware.NewStack(cfg, redisClient, log)

	router := mux.NewRouter()

	router.HandleFunc("/health", healthHandler.Health).Methods("GET")
	router.HandleFunc("/health/live", healthHandler.Liveness).Methods("GET")
	router.HandleFunc("/health/ready", healthHandler.Readiness).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	oauth2Handler.RegisterRoutes(router)

	finalHandler := middlewareStack.Chain(
		router,
		middlewareStack.Recovery,
		middlewareStack.RequestLogger,
		middlewareStack.SecurityHeaders,
		middlewareStack.CORS,
		middlewareStack.RateLimit,
		middlewareStack.ContentType,
	)

	return &http.Server{
		Addr:         cfg.ServerAddr(),
		Handler:      finalHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func runServer(server *http.Server, cfg *config.Config, log *logrus.Logger) {
	go startServer(server, cfg, log)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	} else {
		log.Info("Server exited gracefully")
	}
}

func startServer(server *http.Server, cfg *config.Config, log *logrus.Logger) {
	log.WithFields(logrus.Fields{
		"addr": server.Addr,
		"tls":  cfg.IsTLSEnabled(),
	}).Info("Starting HTTP server")

	var err error
	if cfg.IsTLSEnabled() {
		err = server.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
	} else {
		err = server.ListenAndServe()
	}

	if err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("Failed to start server")
	}
}
