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

	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/api"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/cache"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/catalog"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/config"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/engine"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/logging"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/models"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/source"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/telemetry"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 10 * time.Second

func run(ctx context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Logging and metrics
	logger, err := logging.New(logging.Config{
		Level:   cfg.Log.Level,
		JSON:    cfg.Log.JSON,
		LogDir:  cfg.Log.Dir,
		Service: "coyoacan",
	})
	if err != nil {
		logger.Warn("log file unavailable, logging to stderr only", "error", err)
	}
	defer logger.Close()

	tel, err := telemetry.Init()
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer tel.Shutdown(context.Background())

	// 2. Query pipeline: source -> service -> cache
	cat := catalog.New(logger.Logger)
	csvDir := source.NewCSVDir(cfg.Source.DataDir, logger.Logger)
	var (
		backing engine.RowSource = csvDir
		mem     *source.Memory
	)
	if cfg.Source.Kind == config.SourceMemory {
		mem = source.NewMemory()
		backing = mem
	}
	src := source.WithTimeout(backing, cfg.Source.LoadTimeout)
	svc := engine.NewService(src, cat, logger.Logger)
	proxy := cache.NewProxy(svc, logger.Logger)

	// 3. Initialize Echo. The API is live at once; /readyz reports 503
	// until the background warm-up below is done.
	h := api.NewHandler(proxy, proxy, cat, logger.Logger)
	h.SetDefaultLimit(cfg.Server.DefaultPageSize)
	e := newEcho(cfg.Server, logger.Logger)
	h.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(tel.Handler()))

	// 4. Warm up in the background
	go func() {
		t0 := time.Now()
		if mem != nil {
			logger.Info("preloading tables", "data_dir", cfg.Source.DataDir)
			if err := mem.Preload(ctx, source.WithTimeout(csvDir, cfg.Source.LoadTimeout), cat.Tables()...); err != nil {
				logger.Error("preload failed", "error", err)
				return
			}
		}
		if cfg.Cache.WarmOnStart {
			keys := make([]string, 0, 3)
			for _, dt := range models.DatasetTypes() {
				keys = append(keys, dt.String())
			}
			if err := proxy.Warm(ctx, keys...); err != nil {
				logger.Warn("cache warm-up incomplete", "error", err)
			}
		}
		h.SetReady(true)
		logger.Info("warm-up complete", "elapsed", time.Since(t0).String())
	}()

	// 5. Serve until interrupted
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr, "source", cfg.Source.Kind)
		if err := e.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newEcho(cfg config.ServerConfig, logger *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			logger.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	}))
	// Recover sits inside the request logger so panics are logged as 500s.
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  cfg.AllowOrigins,
		ExposeHeaders: []string{"X-Total-Count"},
	}))
	if cfg.RateLimit > 0 {
		e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.RateLimit))))
	}
	return e
}
