package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"phishguard/internal/config"
	"phishguard/internal/handler"
	"phishguard/internal/service"
	"phishguard/internal/storage"
	"phishguard/internal/utils"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App holds the wired dependencies of one process.
type App struct {
	Echo      *echo.Echo
	Store     *storage.Storage
	Engine    *service.Engine
	Refresher *service.Refresher
	Scheduler *service.Scheduler
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	utils.InitLogger(cfg.LogLevel)
	defer func() {
		_ = utils.Log.Sync()
	}()

	app := NewApp(cfg)
	app.Warmup(context.Background())

	// Start server
	go func() {
		if err := app.Echo.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Log.Fatal("shutting down the server", utils.Field("error", err.Error()))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Echo.Shutdown(ctx); err != nil {
		utils.Log.Error("server shutdown failed", utils.Field("error", err.Error()))
	}
	app.Scheduler.Stop()
	_ = app.Store.Close()
}

// NewApp wires storage, feeds, aggregator, refresher, scheduler and engine.
// It performs no I/O.
func NewApp(cfg *config.Config) *App {
	store := storage.NewStorage(cfg.RedisHost, cfg.RedisPort)

	client := &http.Client{Timeout: cfg.FeedTimeout}
	feeds := []service.Feed{
		service.NewProtocolsFeed(cfg.ProtocolsURL, client),
		service.NewPhishingConfigFeed(cfg.PhishingConfigURL, client),
		service.NewDirectoryFeed(cfg.DirectoryURL, client),
	}
	agg := service.NewAggregator(feeds, service.AggregatorConfig{
		TVLThreshold: cfg.TVLThreshold,
		ExtraAllowed: cfg.ExtraAllowed,
		MaxAttempts:  cfg.FeedMaxAttempts,
		FeedTimeout:  cfg.FeedTimeout,
	}, service.SystemClock)

	refresher := service.NewRefresher(agg, service.NewHolder(), store, store, service.SystemClock, service.RefresherConfig{
		Key:             service.StorageKey(cfg.CacheVersion),
		UpdateFrequency: cfg.UpdateFrequency,
	})
	cache := service.NewResultCache(cfg.CacheResetInterval, service.SystemClock)
	engine := service.NewEngine(refresher, cache, classifierOptions(cfg))

	h := handler.NewHandler(engine, store, cfg)
	return &App{
		Echo:      NewServer(h),
		Store:     store,
		Engine:    engine,
		Refresher: refresher,
		Scheduler: service.NewScheduler(store, refresher, cfg.SchedulePeriod),
	}
}

// Warmup serves the persisted snapshot right away, then refreshes in the
// background and starts the schedule.
func (a *App) Warmup(ctx context.Context) {
	if ok, err := a.Refresher.Rehydrate(ctx); err != nil {
		utils.Log.Warn("snapshot rehydrate failed", utils.Field("error", err.Error()))
	} else if !ok {
		utils.Log.Info("no persisted snapshot, waiting for first refresh")
	}
	go func() {
		if err := a.Refresher.EnsureFresh(context.Background()); err != nil {
			utils.Log.Error("initial refresh failed", utils.Field("error", err.Error()))
		}
	}()
	a.Scheduler.Start()
}

func NewServer(h *handler.Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(20))) // 20 requests per second

	// Custom HTTP Error Handler
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
		}
		if code >= http.StatusInternalServerError {
			utils.Log.Error("request failed", utils.Field("path", c.Path()), utils.Field("error", err.Error()))
		}
		if jsonErr := c.JSON(code, map[string]interface{}{
			"code":    code,
			"message": http.StatusText(code),
		}); jsonErr != nil {
			utils.Log.Error("error response failed", utils.Field("error", jsonErr.Error()))
		}
	}

	// Routes
	e.GET("/healthz", h.Healthz)
	e.GET("/readyz", h.Readyz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	api.GET("/check", h.Check)
	api.GET("/stats", h.Stats)
	api.GET("/history", h.History)

	// Protected
	api.POST("/refresh", h.Refresh, h.AdminRequired)

	return e
}

func classifierOptions(cfg *config.Config) service.ClassifierOptions {
	opts := service.ClassifierOptions{
		Tolerance:        cfg.FuzzyTolerance,
		FuzzyAgainst:     service.MatchSeeds,
		HomoglyphAgainst: service.MatchAllowed,
	}
	if cfg.FuzzyAgainst == "allowed" {
		opts.FuzzyAgainst = service.MatchAllowed
	}
	if cfg.HomoglyphAgainst == "fuzzy" {
		opts.HomoglyphAgainst = service.MatchSeeds
	}
	return opts
}
