package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"guild-intake/internal/common/config"
	"guild-intake/internal/common/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "intake",
	Short: "Guild application intake: webhook receiver and Discord worker",
	Long: `intake runs one of the two halves of the application pipeline.

  intake receiver   public HTTP endpoint; authenticates submissions and relays them
  intake worker     holds the Discord session; provisions channels and posts applications`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: configs/config.yaml, then environment)")
	rootCmd.AddCommand(receiverCmd)
	rootCmd.AddCommand(workerCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

func newLoggers(cfg *config.Config, role string) (*zap.Logger, logger.Logger) {
	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output).
		With(zap.String("role", role), zap.String("version", cfg.App.Version))
	return zapLog, logger.NewZapAdapter(zapLog)
}

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(ctx context.Context, operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("%s aborted: %w", operationName, ctx.Err())
			}
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}
