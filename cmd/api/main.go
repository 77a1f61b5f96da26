package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/api"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/api/handlers"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/app"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/telemetry"
)

func main() {
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := flag.String("config", getEnv("CONFIG_FILE", "configs/config.yaml"), "path to configuration file")
	flag.Parse()

	container, err := app.Build(ctx, *configPath)
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer container.Close(context.Background())

	if err := container.Err(); err != nil {
		log.Fatalf("failed to wire components: %v", err)
	}

	shutdown, err := telemetry.Setup(ctx, container.Config.Telemetry, container.Config.App, "api")
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	repos := container.Repositories()
	handlerSet := handlers.NewHandlerSet(handlers.Dependencies{
		Launcher: container.Pipeline().Runner,
		Runs:     repos.Runs,
		Archive:  repos.Archive,
		Checks:   healthChecks(container),
		Logger:   container.Logger,
	})

	server := api.NewServer(container.Config.HTTP, handlerSet)

	log.Printf("Starting server on port %d...", container.Config.HTTP.Port)
	if err := server.Start(ctx); err != nil {
		log.Fatalf("server terminated: %v", err)
	}
}

func healthChecks(c *app.Container) map[string]handlers.HealthCheck {
	checks := make(map[string]handlers.HealthCheck)
	if c.Postgres != nil {
		checks["postgres"] = c.Postgres.Ping
	}
	if c.Redis != nil {
		checks["redis"] = c.Redis.Ping
	}
	if c.Scylla != nil {
		checks["scylla"] = c.Scylla.Ping
	}
	return checks
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
