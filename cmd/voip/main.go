package main

import (
	"context"
	"fmt"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ankogit/purevoip/internal/config"
)

const restartDelay = 5 * time.Second

func main() {
	// Setup logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetLevel(logrus.InfoLevel)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	logger.SetLevel(cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run with automatic restart on panic
	// This handles panics from the discordgo fork and audio callbacks
	runWithRecovery(ctx, cfg, logger)
}

func runWithRecovery(ctx context.Context, cfg *config.Config, logger *logrus.Logger) {
	for {
		err := runGuarded(ctx, cfg, logger)
		if ctx.Err() != nil {
			logger.Info("Stopped successfully")
			return
		}
		if err == nil {
			return
		}

		logger.Warnf("Crashed, waiting %v before restart: %v", restartDelay, err)
		select {
		case <-time.After(restartDelay):
		case <-ctx.Done():
			return
		}
	}
}

// runGuarded runs one generation of the process and turns a panic into an error
func runGuarded(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).
				WithField("stack", string(debug.Stack())).
				Error("CRITICAL: Panic caught - restarting")
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return run(ctx, cfg, logger)
}
