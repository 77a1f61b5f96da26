package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/app"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/scheduler"
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

	shutdown, err := telemetry.Setup(ctx, container.Config.Telemetry, container.Config.App, "scheduler")
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	svc := scheduler.New(container.Pipeline().Runner, container.Config.Scheduler, container.Logger)
	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("scheduler terminated: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
