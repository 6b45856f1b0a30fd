package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/wishlist/backend/config"
	"github.com/wishlist/backend/internal/app"
	httpDelivery "github.com/wishlist/backend/internal/delivery/http"
	"github.com/wishlist/backend/internal/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Server.Environment == "development",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", logger.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log logger.Logger) error {
	log.Info("starting wishlist backend",
		logger.String("version", "1.0.0"),
		logger.String("environment", cfg.Server.Environment),
		logger.String("port", cfg.Server.Port),
		logger.String("cache", cfg.Cache.Type),
		logger.Duration("cache_ttl", cfg.Cache.TTL))

	components, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	defer components.Close()

	status := components.Providers.Status()
	if !status.PriceSearchConfigured {
		log.Warn("no price search provider configured, price comparison will answer 503")
	}
	if !status.VisionConfigured {
		log.Warn("no vision provider configured, image recognition will answer 503")
	}
	log.Info("providers",
		logger.String("search", string(status.PriceSearchProvider)),
		logger.String("vision", string(status.VisionProvider)),
		logger.Float64("min_relevance", cfg.Search.MinRelevance))

	handler := httpDelivery.NewHandler(httpDelivery.Services{
		Titles: components.Titles,
		Images: components.Images,
		Prices: components.Prices,
	}, components.Providers, log)

	router := httpDelivery.SetupRouter(cfg, handler, log)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", logger.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down", logger.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
