package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"alerthub/internal/api"
	"alerthub/internal/config"
	"alerthub/internal/fanout"
	"alerthub/internal/ingest"
	"alerthub/internal/insight"
	"alerthub/internal/logging"
	"alerthub/internal/notify"
	"alerthub/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("server starting",
		"host", cfg.Server.Host, "port", cfg.Server.Port, "namespace", cfg.App.Namespace)

	alerts, err := store.NewSQLite(cfg.DB.Path, cfg.App.Namespace)
	if err != nil {
		logging.Fatalf("Failed to initialize alert store: %v", err)
	}
	defer alerts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The relay degrades to a no-op when unconfigured; submission still works.
	if !cfg.Relay.Complete() {
		slog.Warn("relay not fully configured, escalations disabled", "missing", cfg.Relay.Missing())
	}
	dispatcher := notify.NewDispatcher(cfg.Relay, nil)

	coordinator := ingest.NewCoordinator(alerts, dispatcher, cfg.Dispatch.Workers, cfg.Dispatch.BufferSize)
	coordinator.Start(ctx)

	subscriber := fanout.NewSubscriber(alerts, 30*time.Second)
	subscriber.Start(ctx)

	// Like the relay, a missing Gemini key disables the feature only.
	var requestor *insight.Requestor
	if cfg.Insight.Enabled() {
		generator, err := insight.NewGeminiGenerator(ctx, cfg.Insight.APIKey, cfg.Insight.Model)
		if err != nil {
			logging.Fatalf("Failed to initialize insight generator: %v", err)
		}
		requestor = insight.NewRequestor(generator)
	} else {
		slog.Warn("GEMINI_API_KEY not set, insight endpoints disabled")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
	}))
	router.Use(api.RateLimitMiddleware(10, 20))

	handler := api.NewHandler(coordinator, alerts, subscriber, requestor)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	cancel()
	subscriber.Wait()
	subscriber.Close()
	coordinator.Stop()

	slog.Info("shutdown complete")
}
