package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koios/lotmap/internal/config"
	"github.com/koios/lotmap/internal/feed"
	"github.com/koios/lotmap/internal/handlers"
	"github.com/koios/lotmap/internal/metrics"
	"github.com/koios/lotmap/internal/redis"
	"github.com/koios/lotmap/internal/style"
	"github.com/koios/lotmap/internal/viewport"
	"github.com/koios/lotmap/pkg/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	opts := viewport.Options{
		Padding:           cfg.Viewport.Padding,
		MaxWidthFraction:  cfg.Viewport.MaxWidthFraction,
		MaxHeightFraction: cfg.Viewport.MaxHeightFraction,
	}
	if err := opts.Validate(); err != nil {
		logger.Fatal("Invalid viewport configuration", zap.Error(err))
	}

	theme := style.DefaultTheme()
	if err := theme.Validate(); err != nil {
		logger.Fatal("Invalid theme", zap.Error(err))
	}

	collector, err := metrics.NewCollector(nil)
	if err != nil {
		logger.Fatal("Failed to register metrics", zap.Error(err))
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher, health, closeFeed := setupFeed(ctx, cfg, logger)
	defer closeFeed()

	sessions := handlers.NewSessions(watcher, style.NewMapper(theme), opts, logger, collector)

	mux := http.NewServeMux()
	mapHandler := handlers.NewMapHandler(sessions, theme,
		viewport.DisplayArea{Width: cfg.Viewport.DeviceWidth, Height: cfg.Viewport.DeviceHeight},
		collector, health, logger)
	mapHandler.RegisterRoutes(mux)

	// Long-polled frames may be held open past the configured write timeout.
	writeTimeout := time.Duration(cfg.Server.WriteTimeout) * time.Second
	if writeTimeout < 65*time.Second {
		writeTimeout = 65 * time.Second
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: writeTimeout,
	}

	// Start HTTP server
	go func() {
		logger.Info("Starting HTTP server", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", zap.Error(err))
			cancel()
		}
	}()

	logger.Info("Server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("feed_backend", cfg.FeedBackend))

	// Wait for interrupt signal or server failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Release views first so long-polls return and listeners stop
	sessions.Close()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	cancel()
	logger.Info("Server shutdown complete")
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

// setupFeed builds the spot feed for the configured backend. The memory
// backend is seeded from the layout files so the server runs without Redis.
func setupFeed(ctx context.Context, cfg *config.Config, logger *zap.Logger) (feed.Watcher, handlers.HealthCheck, func()) {
	switch cfg.FeedBackend {
	case config.FeedBackendMemory:
		watcher := feed.NewMemoryWatcher()

		registry := models.NewLayoutRegistry()
		if err := registry.LoadLayouts(cfg.LayoutsPath); err != nil {
			logger.Warn("Failed to load layouts", zap.String("path", cfg.LayoutsPath), zap.Error(err))
		}
		for path, err := range registry.Skipped() {
			logger.Warn("Skipped layout file", zap.String("path", path), zap.Error(err))
		}
		for _, layout := range registry.GetLayoutsList() {
			watcher.PublishSpots(layout.ID, layout.SpotList())
			logger.Info("Seeded lot from layout",
				zap.String("lot_id", layout.ID),
				zap.Int("spots", len(layout.Spots)))
		}
		return watcher, nil, func() {}

	case config.FeedBackendRedis:
		client, err := redis.NewClient(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		closeFn := func() {
			if err := client.Close(); err != nil {
				logger.Error("Failed to close Redis client", zap.Error(err))
			}
		}
		return redis.NewWatcher(client, logger), client.IsHealthy, closeFn

	default:
		logger.Fatal("Unknown feed backend", zap.String("feed_backend", cfg.FeedBackend))
		return nil, nil, nil
	}
}
