package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anonto42/reelshelf/backend/internal/handlers"
	"github.com/anonto42/reelshelf/backend/internal/middleware"
	"github.com/anonto42/reelshelf/backend/internal/router"
	"github.com/anonto42/reelshelf/backend/internal/validators"
	"github.com/anonto42/reelshelf/backend/pkg/config"
	"github.com/anonto42/reelshelf/backend/pkg/firebase"
	"github.com/anonto42/reelshelf/backend/pkg/logger"
	"github.com/labstack/echo/v4"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log, err := logger.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", "error", err)
	}

	// Initialize database connections
	db, err := config.InitDB(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize databases", "error", err)
	}
	defer db.CloseDB()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verifier, err := newVerifier(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize identity provider", "error", err)
	}

	rt, err := router.Bootstrap(ctx, cfg, db, log)
	if err != nil {
		log.Fatal("failed to start services", "error", err)
	}
	defer rt.Close()

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.Validator = validators.NewValidator()
	e.HTTPErrorHandler = handlers.NewHTTPErrorHandler(log)

	config.SetupMiddleware(e, log)
	router.SetupRoutes(e, rt.Services, verifier, log)

	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	// Close live streams first so Shutdown is not held open by them.
	rt.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", "error", err)
	}
}

func newVerifier(ctx context.Context, cfg *config.Config, log *logger.Logger) (middleware.TokenVerifier, error) {
	if cfg.AuthMode == config.AuthModeJWT {
		log.Warn("using shared-secret JWT verification; do not use in production")
		return middleware.NewJWTVerifier(cfg.JWTSecret), nil
	}
	client, err := firebase.NewAuthClient(ctx, firebase.Options{
		CredentialsPath: cfg.FirebaseCredentialsPath,
		ProjectID:       cfg.FirebaseProjectID,
	}, log)
	if err != nil {
		return nil, err
	}
	return middleware.NewFirebaseVerifier(client), nil
}
