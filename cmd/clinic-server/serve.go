package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/appointment"
	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/domain/clinicalrecord"
	"github.com/clinic/clinic/internal/domain/dashboard"
	"github.com/clinic/clinic/internal/domain/directory"
	"github.com/clinic/clinic/internal/domain/encounter"
	"github.com/clinic/clinic/internal/domain/queue"
	"github.com/clinic/clinic/internal/domain/vitals"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/events"
	"github.com/clinic/clinic/internal/platform/lock"
	"github.com/clinic/clinic/internal/platform/middleware"
	"github.com/clinic/clinic/internal/platform/websocket"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Env, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid clinic timezone")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Events fan out to websocket clients in this process and, when Redis is
	// configured, to other replicas.
	bus := events.NewBus(logger)
	hub := websocket.NewHub(logger)
	bus.Subscribe(hub)

	var checks []db.Check
	if cfg.RedisURL != "" {
		rdb, err := events.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()
		bus.Subscribe(events.NewRedisFanout(rdb, cfg.RedisChannel))
		checks = append(checks, db.Check{
			Name: "redis",
			Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
		logger.Info().Str("channel", cfg.RedisChannel).Msg("publishing events to redis")
	}

	e, api := newServer(cfg, logger)
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool, checks...))
	websocket.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(e.Group(""))

	for _, r := range buildHandlers(pool, bus, logger, loc, cfg.OperationTimeout) {
		r.RegisterRoutes(api)
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newLogger(env, level string) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if env == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return logger.Level(lvl)
}

// newServer builds the echo instance with the global middleware chain and
// returns the rate limited /api/v1 group.
func newServer(cfg *config.Config, logger zerolog.Logger) (*echo.Echo, *echo.Group) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(!cfg.IsDev()))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Staff-ID", "X-Staff-Role"},
	}))
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(jwtConfig(cfg)))
	}
	e.Use(middleware.Audit(logger))

	api := e.Group("/api/v1")
	rl := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rl.RequestsPerSecond <= 0 || rl.BurstSize <= 0 {
		rl = middleware.DefaultRateLimitConfig()
	}
	api.Use(middleware.RateLimit(rl))
	return e, api
}

type routeRegistrar interface {
	RegisterRoutes(api *echo.Group)
}

// buildHandlers wires repositories, services and handlers. Every service
// that mutates a doctor's queue shares one lock table.
func buildHandlers(pool *pgxpool.Pool, pub events.Publisher, logger zerolog.Logger,
	loc *time.Location, opTimeout time.Duration) []routeRegistrar {
	tx := db.NewTxRunner(pool)
	locks := lock.NewKeyedMutex()

	dirSvc := directory.NewService(directory.NewRepo(pool))
	vitalsSvc := vitals.NewService(vitals.NewRepo(pool), dirSvc, opTimeout)
	queueSvc := queue.NewService(queue.NewRepo(pool), dirSvc, tx, locks, pub, opTimeout)
	apptSvc := appointment.NewService(appointment.NewRepo(pool), dirSvc, queueSvc, tx)
	billSvc := billing.NewService(billing.NewRepo(pool), pub, opTimeout)
	encSvc := encounter.NewService(encounter.Deps{
		Repo:         encounter.NewRepo(pool),
		Directory:    dirSvc,
		Queue:        queueSvc,
		Appointments: apptSvc,
		Vitals:       vitalsSvc,
		Billing:      billSvc,
		Codec:        clinicalrecord.NewCodec(logger),
		Tx:           tx,
		Publisher:    pub,
	})
	dashSvc := dashboard.NewService(dashboard.NewRepo(pool), loc, opTimeout)

	return []routeRegistrar{
		directory.NewHandler(dirSvc),
		vitals.NewHandler(vitalsSvc),
		queue.NewHandler(queueSvc),
		appointment.NewHandler(apptSvc),
		encounter.NewHandler(encSvc),
		billing.NewHandler(billSvc),
		dashboard.NewHandler(dashSvc),
		clinicalrecord.NewHandler(),
	}
}
