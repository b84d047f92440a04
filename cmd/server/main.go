package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranacompare/backend/config"
	httpDelivery "github.com/kiranacompare/backend/internal/delivery/http"
	"github.com/kiranacompare/backend/internal/domain"
	"github.com/kiranacompare/backend/internal/infrastructure/cache"
	"github.com/kiranacompare/backend/internal/infrastructure/gemini"
	"github.com/kiranacompare/backend/internal/infrastructure/proxy"
	"github.com/kiranacompare/backend/internal/logger"
	"github.com/kiranacompare/backend/internal/usecase"
	"go.uber.org/zap"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting Kirana Compare backend",
		zap.String("version", version),
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port),
		zap.String("provider", cfg.Provider.Mode),
		zap.String("cache", cfg.Cache.Type))

	// Initialize infrastructure dependencies
	cacheRepo, closeCache, err := newCache(cfg)
	if err != nil {
		log.Fatal("Failed to initialize cache", zap.Error(err))
	}
	defer closeCache()

	provider := newProvider(cfg, log)

	// Initialize usecase layer
	analysisService := usecase.NewAnalysisService(
		cacheRepo,
		provider,
		log,
		usecase.AnalysisServiceConfig{
			CacheTTL: cfg.Cache.TTL,
		},
	)

	handler := httpDelivery.NewHandler(analysisService, log)
	router := httpDelivery.SetupRouter(cfg, handler, log)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
}

// newCache builds the configured cache. The returned func releases it.
func newCache(cfg *config.Config) (domain.CacheRepository, func(), error) {
	switch cfg.Cache.Type {
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rc, err := cache.NewRedisCache(ctx, cfg.Cache.RedisURL, "kirana:")
		if err != nil {
			return nil, nil, err
		}
		return rc, closer(rc), nil
	case "none":
		return nil, func() {}, nil
	default:
		mc := cache.NewMemoryCache(10 * time.Minute)
		return mc, closer(mc), nil
	}
}

func closer(c io.Closer) func() {
	return func() { _ = c.Close() }
}

func newProvider(cfg *config.Config, log *zap.Logger) domain.AnalysisProvider {
	if cfg.Provider.Mode == config.ProviderModeProxy {
		log.Info("Using analysis proxy", zap.String("url", cfg.Proxy.URL))
		return proxy.NewClient(cfg.Proxy.URL, cfg.Proxy.Timeout, log)
	}

	client := gemini.NewClient(gemini.Config{
		APIKey:            cfg.Gemini.APIKey,
		BaseURL:           cfg.Gemini.BaseURL,
		Model:             cfg.Gemini.Model,
		Timeout:           cfg.Gemini.Timeout,
		MaxRetries:        cfg.Gemini.MaxRetries,
		Temperature:       cfg.Gemini.Temperature,
		RequestsPerMinute: cfg.RateLimit.Gemini,
	}, log)

	// Enable debug mode in development environment
	if cfg.Server.Environment == "development" {
		client.SetDebug(true)
		log.Info("Gemini client debug mode enabled")
	}

	log.Info("Gemini API configured",
		zap.String("baseURL", cfg.Gemini.BaseURL),
		zap.String("model", cfg.Gemini.Model))
	return client
}
