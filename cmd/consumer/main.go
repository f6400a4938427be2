package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/samber/do"
	"github.com/serroba/qrlinks/internal/container"
	"github.com/serroba/qrlinks/internal/messaging"
	"github.com/serroba/qrlinks/internal/telemetry"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	opts := &container.Options{
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		LogFormat:    getEnv("LOG_FORMAT", "console"),
		OTLPEndpoint: os.Getenv("OTLP_ENDPOINT"),
	}

	injector := do.New()
	do.ProvideValue(injector, opts)
	container.LoggerPackage(injector)
	container.TracingPackage(injector)
	container.MetricsPackage(injector)
	container.RedisPackage(injector)
	container.PostgresPackage(injector)
	container.RepositoryPackage(injector)
	container.ConsumerGroupPackage(injector)

	logger := do.MustInvoke[*zap.Logger](injector)
	_ = do.MustInvoke[*telemetry.Provider](injector)

	if err := container.Migrate(context.Background(), injector); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	group, err := do.Invoke[*messaging.ConsumerGroup](injector)
	if err != nil {
		logger.Fatal("failed to build consumer group", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())

	if err := group.Start(ctx); err != nil {
		logger.Fatal("failed to start consumer group", zap.Error(err))
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	cancel()

	if err := injector.Shutdown(); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return defaultValue
}
