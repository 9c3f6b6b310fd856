package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	httpAdapter "github.com/lorrc/service-request-analytics/internal/adapters/primary/http"
	mw "github.com/lorrc/service-request-analytics/internal/adapters/primary/http/middleware"
	"github.com/lorrc/service-request-analytics/internal/adapters/primary/websocket"
	"github.com/lorrc/service-request-analytics/internal/adapters/secondary/postgres"
	"github.com/lorrc/service-request-analytics/internal/adapters/secondary/rediscache"
	"github.com/lorrc/service-request-analytics/internal/adapters/secondary/socrata"
	"github.com/lorrc/service-request-analytics/internal/config"
	"github.com/lorrc/service-request-analytics/internal/core/ports"
	"github.com/lorrc/service-request-analytics/internal/core/services"
	"github.com/lorrc/service-request-analytics/internal/infrastructure/logging"
	"github.com/lorrc/service-request-analytics/internal/infrastructure/metrics"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})

	logger.Info("starting service",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
		"config", cfg.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Initialize Database Pool
	if cfg.Database.RunMigrations {
		if err := runMigrations(cfg.Database.MigrationsPath, cfg.Database.URL, logger); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		logger.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}

	// Apply database configuration
	poolConfig.MaxConns = int32(cfg.Database.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.Database.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	logger.Info("database connection established")

	checkers := map[string]httpAdapter.HealthChecker{"database": pool}

	// 4. Initialize the optional report cache
	var cache ports.ReportCache
	var redisCache *rediscache.ReportCache
	if cfg.Redis.Addr != "" {
		redisCache, err = rediscache.New(ctx, rediscache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.ReportTTL,
		})
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisCache.Close()
		cache = redisCache
		checkers["redis"] = redisCache
		logger.Info("report cache enabled", "addr", cfg.Redis.Addr)
	}

	// 5. Analysis configuration, with hot reload
	analysisStore, err := config.LoadAnalysisStore(cfg.Analysis.Path)
	if err != nil {
		logger.Error("failed to load analysis configuration", "path", cfg.Analysis.Path, "error", err)
		os.Exit(1)
	}
	if cfg.Analysis.Path != "" && cfg.Analysis.Watch {
		go func() {
			if err := analysisStore.Watch(ctx, cfg.Analysis.Path, logger); err != nil {
				logger.Error("analysis config watcher stopped", "error", err)
			}
		}()
	}

	// 6. Real-time and metrics components
	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	recorder := metrics.NewMetrics()

	// 7. Initialize Rate Limiters
	var generalRateLimiter, runRateLimiter *mw.RateLimiter
	if cfg.RateLimit.Enabled {
		generalRateLimiter = mw.NewRateLimiter(mw.DefaultRateLimiterConfig().
			WithLimits(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.BurstSize))
		runRateLimiter = mw.NewRateLimiter(mw.RunRateLimiterConfig().
			WithLimits(cfg.RateLimit.RunRPS, cfg.RateLimit.RunBurst))
	}

	// 8. Dependency Injection (Wiring the Hexagon)

	// Error Handler
	errorHandler := httpAdapter.NewErrorHandler(logger)

	// Secondary Adapters
	reportRepo := postgres.NewReportRepository(pool)
	source := socrata.NewClient(socrata.Config{
		BaseURL:    cfg.Socrata.BaseURL,
		AppToken:   cfg.Socrata.AppToken,
		Timeout:    cfg.Socrata.Timeout,
		PageSize:   cfg.Socrata.PageSize,
		MaxRecords: cfg.Socrata.MaxRecords,
		MaxRetries: cfg.Socrata.MaxRetries,
	}, logger)

	// Services (Core)
	analysisService := services.NewAnalysisService(analysisStore, reportRepo, cache, hub, recorder, logger)

	// Handlers (Primary Adapters)
	analysisHandler := httpAdapter.NewAnalysisHandler(analysisService, source, errorHandler, httpAdapter.DefaultMaxBodyBytes, logger)
	wsHandler := httpAdapter.NewWebSocketHandler(hub, cfg, logger)
	healthHandler := httpAdapter.NewHealthHandler(cfg.App.Version, checkers)

	// 9. Setup Router
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.RequestLogger(logger))
	r.Use(mw.RecoveryLogger(logger))
	r.Use(mw.Metrics(recorder))
	r.Use(cors.Handler(corsOptions(cfg)))

	// Probe and scrape endpoints stay outside rate limiting
	healthHandler.RegisterRoutes(r)
	r.Method(http.MethodGet, "/metrics", recorder.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		if generalRateLimiter != nil {
			r.Use(generalRateLimiter.Middleware)
		}

		r.Get("/ws", wsHandler.ServeHTTP)

		r.Route("/analyses", func(r chi.Router) {
			analysisHandler.RegisterRoutes(r)

			// Runs are expensive; apply the stricter limit
			r.Group(func(r chi.Router) {
				if runRateLimiter != nil {
					r.Use(runRateLimiter.Middleware)
				}
				analysisHandler.RegisterRunRoutes(r)
			})
		})
	})

	// 10. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	if redisCache != nil {
		logger.Info("report cache stats", "hit_rate", redisCache.HitRate())
	}

	logger.Info("server shutdown complete")
}

func runMigrations(path, databaseURL string, logger *slog.Logger) error {
	m, err := migrate.New(path, databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	version, dirty, _ := m.Version()
	logger.Info("migrations applied", "version", version, "dirty", dirty)
	return nil
}

func corsOptions(cfg *config.Config) cors.Options {
	return cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", mw.RequestIDHeader},
		ExposedHeaders: []string{"Location", mw.RequestIDHeader},
		MaxAge:         300,
	}
}
