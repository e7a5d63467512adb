package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"guild-intake/internal/common/config"
	"guild-intake/internal/common/validation"
	"guild-intake/internal/receiver"
	"guild-intake/internal/relay"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var receiverCmd = &cobra.Command{
	Use:   "receiver",
	Short: "Serve the public submission webhook",
	RunE:  runReceiver,
}

func runReceiver(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.ValidateReceiver(cfg); err != nil {
		return err
	}

	zapLog, log := newLoggers(cfg, "receiver")
	defer zapLog.Sync()

	auth, err := relay.NewAuthenticator(cfg.Relay.Secret, config.GetDuration(cfg.Relay.TokenTTL))
	if err != nil {
		return err
	}
	relayClient := relay.NewClient(relay.ClientConfig{
		Address:          cfg.Relay.Address,
		DialTimeout:      config.GetDuration(cfg.Relay.DialTimeout),
		MaxResponseBytes: cfg.Relay.MaxRequestBytes,
	}, auth)

	validator, err := validation.SubmissionValidator()
	if err != nil {
		return err
	}

	handler := receiver.NewHandler(&receiver.Config{
		APIKey:       cfg.Receiver.APIKey,
		RelayTimeout: config.GetDuration(cfg.Receiver.RelayTimeout),
		MaxBodyBytes: cfg.Receiver.MaxBodyBytes,
	}, relayClient, validator, log)

	server := &http.Server{
		Addr:              cfg.Receiver.Address,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zapLog.Info("Receiver listening",
			zap.String("address", cfg.Receiver.Address),
			zap.String("relay", cfg.Relay.Address),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zapLog.Info("Shutdown signal received, draining receiver...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		zapLog.Error("Receiver stopped with error", zap.Error(err))
		return err
	}
	zapLog.Info("Receiver stopped")
	return nil
}
