package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	trmsql "github.com/avito-tech/go-transaction-manager/drivers/sql/v2"
	"github.com/avito-tech/go-transaction-manager/trm/v2/manager"
	h "github.com/gorilla/handlers"
	"github.com/rs/zerolog"

	"github.com/ctfhub/team-api/internal/auth"
	"github.com/ctfhub/team-api/internal/config"
	"github.com/ctfhub/team-api/internal/handlers"
	"github.com/ctfhub/team-api/internal/middleware"
	"github.com/ctfhub/team-api/internal/migration"
	"github.com/ctfhub/team-api/internal/repository"
	"github.com/ctfhub/team-api/internal/routes"
	"github.com/ctfhub/team-api/internal/service"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type application struct {
	config *config.Config
	db     *sql.DB
	logger zerolog.Logger
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load configuration.
	cfg := config.Load()

	// Initialize database connection.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ping database")
	}

	// Run database migrations.
	migration.RunMigrations(db, logger)

	app := &application{
		config: cfg,
		db:     db,
		logger: logger,
	}

	// Initialize the HTTP router and middleware.
	router, err := app.initRouter(logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize router")
	}
	loggedRouter := middleware.LoggingMiddleware(logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins(cfg.CORS.AllowedOrigins),
		h.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		h.AllowCredentials(),
	)(loggedRouter)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler, logger)

	logger.Info().Msg("Application terminated.")
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter(logger zerolog.Logger) (http.Handler, error) {
	// Transaction manager: service-level operations that touch multiple
	// records run inside a single transaction.
	txManager, err := manager.New(trmsql.NewDefaultFactory(app.db))
	if err != nil {
		return nil, err
	}

	// Repositories
	dbWrapper := repository.NewDB(app.db)
	userRepo := repository.NewUserRepository(dbWrapper)
	teamRepo := repository.NewTeamRepository(dbWrapper)
	inviteRepo := repository.NewInviteRepository(dbWrapper)

	// Identity verification and the team service core.
	verifier := auth.NewVerifier(app.config.JWTSecret, app.config.TokenTTL())
	teamService := service.NewTeamService(teamRepo, userRepo, inviteRepo, txManager, logger)

	// Handlers
	authHandler := handlers.NewAuthHandler(userRepo, verifier, logger)
	teamHandler := handlers.NewTeamHandler(teamService, logger)
	inviteHandler := handlers.NewInviteHandler(teamService, logger)

	return routes.NewRouter(authHandler, teamHandler, inviteHandler), nil
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, logger zerolog.Logger) {
	server := &http.Server{
		Addr:    ":" + app.config.ServerPort,
		Handler: handler,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}
}
