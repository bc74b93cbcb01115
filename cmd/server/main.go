package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/folio/folio-backend/internal/api"
	"github.com/folio/folio-backend/internal/app"
	"github.com/folio/folio-backend/internal/config"
	"github.com/folio/folio-backend/internal/log"
	"github.com/folio/folio-backend/internal/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := log.NewSugar(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infow("Starting Folio server",
		"env", cfg.Env,
		"addr", cfg.HTTPAddr,
		"db", cfg.Database.Type,
		"cache", cfg.Cache.Backend,
	)

	// Setup metrics
	metricsObj, metricsHandler, err := metrics.Setup("folio")
	if err != nil {
		logger.Fatalw("Failed to setup metrics", "error", err)
	}

	initCtx, initCancel := context.WithTimeout(context.Background(), 10*time.Second)
	engine, err := app.New(initCtx, cfg, logger, metricsObj)
	initCancel()
	if err != nil {
		logger.Fatalw("Failed to initialize engine", "error", err)
	}

	// Background services
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	engine.Dispatcher.Start(bgCtx)

	schedulerDone := make(chan struct{})
	if cfg.Scheduler.Enabled {
		go func() {
			defer close(schedulerDone)
			if err := engine.Scheduler.Start(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorw("Publication scheduler error", "error", err)
			}
		}()
	} else {
		close(schedulerDone)
		logger.Infow("Publication scheduler disabled")
	}

	handler := api.NewHandler(logger,
		api.CheckFunc{Label: "database", Fn: func(ctx context.Context) error {
			if !engine.DB.IsHealthy(ctx) {
				return errors.New("unhealthy")
			}
			return nil
		}},
		api.CheckFunc{Label: "cache", Fn: engine.Cache.Ping},
	)
	router := handler.Routes(api.NewMiddleware(logger, metricsObj), metricsHandler, cfg.RateLimitRPM)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Infow("HTTP server starting", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Errorw("Server startup failed", "error", err)
	case sig := <-shutdown:
		logger.Infow("Shutdown signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Errorw("Graceful shutdown failed", "error", err)
		server.Close()
	}

	// Stop producers before the queue they feed.
	engine.Scheduler.Stop()
	bgCancel()
	<-schedulerDone
	engine.Dispatcher.Stop()
	engine.Close(ctx)

	logger.Infow("Server stopped")
}
