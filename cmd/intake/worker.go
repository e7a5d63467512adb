package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"guild-intake/internal/common/armory"
	"guild-intake/internal/common/config"
	"guild-intake/internal/common/database"
	"guild-intake/internal/common/discord"
	"guild-intake/internal/common/observability"
	"guild-intake/internal/provisioner"
	"guild-intake/internal/relay"
	submitapplication "guild-intake/internal/workers/application/submit-application"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the Discord worker behind the relay",
	RunE:  runWorker,
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.ValidateWorker(cfg); err != nil {
		return err
	}

	zapLog, log := newLoggers(cfg, "worker")
	defer zapLog.Sync()

	zapLog.Info("Starting worker...")

	obs := observability.New("intake-worker", cfg.Tracing.Exporter, log)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Optional Redis for cross-process channel locks ---
	var locker provisioner.Locker
	if cfg.Redis.Enabled() {
		rc, err := database.NewRedis(cfg.Redis)
		if err != nil {
			return err
		}
		defer rc.Close()

		err = retryWithBackoff(ctx, func() error {
			return rc.Ping(ctx)
		}, 5, time.Second, zapLog, "Redis connection")
		if err != nil {
			return err
		}
		locker = provisioner.NewRedisLocker(rc.Cmdable(), config.GetDuration(cfg.Redis.LockTTL))
		zapLog.Info("Redis channel locks enabled", zap.String("address", rc.Address()))
	}

	// --- Discord session ---
	session, err := discord.NewSession(cfg.Discord.Token)
	if err != nil {
		return err
	}

	// --- Pipeline ---
	resolver := armory.NewResolver(armory.NewClient(armory.Config{
		ClientID:     cfg.Armory.ClientID,
		ClientSecret: cfg.Armory.ClientSecret,
		TokenURL:     cfg.Armory.TokenURL,
		APIBaseURL:   cfg.Armory.APIBaseURL,
		Timeout:      config.GetDuration(cfg.Armory.Timeout),
	}), config.GetDuration(cfg.Armory.Timeout))

	handler := submitapplication.NewHandler(
		submitapplication.LoadConfig(),
		provisioner.New(session, locker, log),
		resolver,
		session,
		obs,
		log,
	)

	auth, err := relay.NewAuthenticator(cfg.Relay.Secret, config.GetDuration(cfg.Relay.TokenTTL))
	if err != nil {
		return err
	}
	relayServer := relay.NewServer(relay.ServerConfig{
		ReadTimeout:     config.GetDuration(cfg.Relay.ReadTimeout),
		WriteTimeout:    config.GetDuration(cfg.Relay.WriteTimeout),
		HandlerTimeout:  config.GetDuration(cfg.Worker.HandlerTimeout),
		MaxRequestBytes: cfg.Relay.MaxRequestBytes,
	}, auth, log)
	relayServer.Handle(submitapplication.TaskType, handler.Handle)

	health := &http.Server{
		Addr:              cfg.Worker.MetricsAddress,
		Handler:           healthRoutes(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// The relay accepts connections immediately; submissions fail with
	// SESSION_NOT_READY until the workspace below is resolved.
	g.Go(func() error {
		return relayServer.ListenAndServe(gctx, cfg.Relay.Address)
	})

	g.Go(func() error {
		err := retryWithBackoff(gctx, session.Open, 10, 2*time.Second, zapLog, "Discord session")
		if err != nil {
			return err
		}

		var target *discord.Target
		err = retryWithBackoff(gctx, func() error {
			var err error
			target, err = discord.ResolveTarget(gctx, session, cfg.Discord.GuildID, cfg.Discord.CategoryID, cfg.Discord.CategoryName)
			return err
		}, 5, 2*time.Second, zapLog, "Workspace resolution")
		if err != nil {
			return fmt.Errorf("resolving guild %s: %w", cfg.Discord.GuildID, err)
		}

		handler.Ready(*target)
		<-gctx.Done()
		return session.Close()
	})

	g.Go(func() error {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Worker.MetricsAddress))
		if err := health.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		zapLog.Info("Shutdown signal received, draining relay...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return health.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		zapLog.Error("Worker stopped with error", zap.Error(err))
		return err
	}
	zapLog.Info("Worker stopped")
	return nil
}

func healthRoutes(handler *submitapplication.Handler) http.Handler {
	router := chi.NewRouter()
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy")
	})
	router.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if !handler.IsReady() {
			writeStatus(w, http.StatusServiceUnavailable, "starting")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	})
	router.Handle("/metrics", promhttp.Handler())
	return router
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	})
}
