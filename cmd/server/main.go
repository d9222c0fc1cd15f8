package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/plantbox/plantbox-api/internal/config"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const lifecycleTimeout = 30 * time.Second

// loadEnv loads the first .env found in the working directory or its parents
func loadEnv() {
	envPaths := []string{".env", "../../.env"}
	if workDir, err := os.Getwd(); err == nil {
		parentDir := filepath.Dir(workDir)
		envPaths = append(envPaths,
			filepath.Join(workDir, ".env"),
			filepath.Join(parentDir, ".env"),
			filepath.Join(filepath.Dir(parentDir), ".env"),
		)
	}

	for _, envPath := range envPaths {
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		if err := godotenv.Load(envPath); err == nil {
			absPath, _ := filepath.Abs(envPath)
			fmt.Printf("Loaded environment from: %s\n", absPath)
			return
		}
	}
	fmt.Println("No .env file found, using system environment variables")
}

func options() fx.Option {
	return fx.Options(
		fx.Provide(
			config.Load,
			newLogger,
			ProvideMetrics,
			ProvideValidator,
			ProvideStore,
			ProvideRepository,
			ProvideTelemetryBuffer,
			ProvideNotificationBuffer,
			ProvideDeviceStore,
			ProvideStateHolder,
			ProvideMQConnection,
			ProvidePublisher,
			ProvideNotifier,
			ProvideHub,
			ProvideIngestService,
			ProvideRateLimiter,
			ProvideHandler,
			ProvideRouter,
		),
		fx.Invoke(startHTTPServer, startConsumer),
	)
}

func main() {
	loadEnv()

	app := fx.New(
		options(),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
		fx.StartTimeout(lifecycleTimeout),
		fx.StopTimeout(lifecycleTimeout),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	startCtx, startCancel := context.WithTimeout(context.Background(), lifecycleTimeout)
	defer startCancel()

	if err := app.Start(startCtx); err != nil {
		if errors.Is(startCtx.Err(), context.DeadlineExceeded) {
			fmt.Fprintln(os.Stderr, "Application did not start within 30 seconds; check store and broker connectivity")
		}
		fmt.Fprintln(os.Stderr, "Failed to start:", err)
		os.Exit(1)
	}

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), lifecycleTimeout)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		fmt.Fprintln(os.Stderr, "Error stopping app:", err)
	}
}
