package router

import (
	"context"
	"fmt"

	"github.com/anonto42/reelshelf/backend/internal/catalog"
	"github.com/anonto42/reelshelf/backend/internal/handlers"
	"github.com/anonto42/reelshelf/backend/internal/middleware"
	"github.com/anonto42/reelshelf/backend/internal/migrations"
	"github.com/anonto42/reelshelf/backend/internal/models"
	"github.com/anonto42/reelshelf/backend/internal/realtime"
	"github.com/anonto42/reelshelf/backend/internal/repositories"
	"github.com/anonto42/reelshelf/backend/internal/services"
	"github.com/anonto42/reelshelf/backend/pkg/config"
	"github.com/anonto42/reelshelf/backend/pkg/logger"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// Services is everything the HTTP routes need
type Services struct {
	Reconciler *services.Reconciler
	Library    *services.LibraryService
	Profiles   *services.ProfileService
	Catalog    handlers.CatalogFetcher
	Subscriber realtime.Subscriber
	Health     map[string]handlers.Pinger
}

// Runtime holds the long-lived change notification pieces started by Bootstrap
type Runtime struct {
	Hub      *realtime.Hub
	Bus      realtime.Bus
	Listener *realtime.PGListener
	Services *Services
}

// Close stops the bus and ends every live subscription
func (r *Runtime) Close() {
	if r.Bus != nil {
		_ = r.Bus.Close()
	}
	if r.Hub != nil {
		r.Hub.Close()
	}
}

// Bootstrap migrates the schema, starts the change notification pipeline and
// builds the services. ctx bounds the background listeners.
func Bootstrap(ctx context.Context, cfg *config.Config, db *config.DB, log *logger.Logger) (*Runtime, error) {
	pg := db.Postgres
	if err := repositories.Migrate(pg); err != nil {
		return nil, err
	}
	if pg.Dialector.Name() == "postgres" {
		sqlDB, err := pg.DB()
		if err != nil {
			return nil, err
		}
		if err := migrations.Up(ctx, sqlDB); err != nil {
			return nil, fmt.Errorf("goose migrations: %w", err)
		}
		log.Info("database migrations applied")
	}

	hub := realtime.NewHub(log)
	rt := &Runtime{Hub: hub}

	var bus realtime.Bus = realtime.NewLocalBus(hub)
	if db.Redis != nil {
		redisBus, err := realtime.NewRedisBus(db.Redis, cfg.RedisChannel, hub, log)
		if err != nil {
			return nil, err
		}
		bus = redisBus
	}
	if err := bus.Start(ctx); err != nil {
		return nil, err
	}
	rt.Bus = bus

	switch cfg.NotifySource {
	case config.NotifySourcePostgres:
		// Every instance LISTENs itself, so notifications go straight to the local hub.
		rt.Listener = realtime.NewPGListener(cfg.PostgresConnStr, hub, log)
		go func() {
			_ = rt.Listener.Run(ctx)
		}()
	default:
		if err := pg.Use(realtime.NewChangeFeed(bus, log)); err != nil {
			return nil, fmt.Errorf("register change feed: %w", err)
		}
	}
	log.Info("change notifications enabled", "source", cfg.NotifySource, "redis", db.Redis != nil)

	var responses repositories.CatalogResponseRepository
	if db.Mongo != nil {
		repo := repositories.NewMongoCatalogResponseRepository(db.Mongo.Database(cfg.MongoDatabase), cfg.TMDBCacheTTL)
		if err := repo.EnsureIndexes(ctx); err != nil {
			log.Warn("catalog cache index not created", "error", err)
		}
		responses = repo
	}

	rt.Services = NewServices(pg, hub, catalog.NewClient(catalog.Options{
		BaseURL:   cfg.TMDBBaseURL,
		APIKey:    cfg.TMDBAPIKey,
		Timeout:   cfg.TMDBTimeout,
		RateLimit: cfg.TMDBRateLimit,
	}, responses, log), log)
	rt.Services.Health = healthChecks(db)
	return rt, nil
}

// NewServices wires repositories and services over one database
func NewServices(pg *gorm.DB, subscriber realtime.Subscriber, fetcher handlers.CatalogFetcher, log *logger.Logger) *Services {
	catalogRepo := repositories.NewPostgresCatalogRepository(pg)
	savedRepo := repositories.NewPostgresSavedItemRepository(pg)
	profileRepo := repositories.NewPostgresProfileRepository(pg)

	return &Services{
		Reconciler: services.NewReconciler(catalogRepo, savedRepo, log),
		Library:    services.NewLibraryService(catalogRepo, savedRepo, log),
		Profiles:   services.NewProfileService(profileRepo),
		Catalog:    fetcher,
		Subscriber: subscriber,
	}
}

// SetupRoutes registers every route
func SetupRoutes(e *echo.Echo, svc *Services, verifier middleware.TokenVerifier, log *logger.Logger) {
	health := handlers.NewHealthHandler(svc.Health)
	e.GET("/health", health.HealthCheck)

	// Catalog proxy: anonymous callers allowed, account endpoints check the user.
	public := e.Group("/api", middleware.OptionalUser(verifier))
	handlers.NewCatalogHandler(svc.Catalog).RegisterCatalogRoutes(public)

	user := e.Group("/api/user", middleware.RequireUser(verifier))
	for _, store := range models.StoreKinds {
		handlers.NewSavedItemHandler(store, svc.Reconciler, svc.Library).RegisterSavedItemRoutes(user)
	}
	handlers.NewLibraryHandler(svc.Library).RegisterLibraryRoutes(user)
	handlers.NewUserHandler(svc.Profiles).RegisterProfileRoutes(user)

	// EventSource cannot send headers, so the stream alone takes ?access_token=.
	// Its auth is route-level so it cannot leak onto the rest of /api/user.
	handlers.NewStreamHandler(svc.Subscriber, log).RegisterStreamRoutes(e.Group("/api/user"),
		middleware.RequireUser(verifier, middleware.AllowQueryToken()))

	log.Info("routes configured")
}

func healthChecks(db *config.DB) map[string]handlers.Pinger {
	checks := map[string]handlers.Pinger{
		"postgres": handlers.PingFunc(func(ctx context.Context) error {
			sqlDB, err := db.Postgres.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}),
	}
	if db.Mongo != nil {
		checks["mongo"] = handlers.PingFunc(func(ctx context.Context) error {
			return db.Mongo.Ping(ctx, nil)
		})
	}
	if db.Redis != nil {
		checks["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return db.Redis.Ping(ctx).Err()
		})
	}
	return checks
}
