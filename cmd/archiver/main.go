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
	scyllarepo "github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/repository/scylla"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/telemetry"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/worker/archive"
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

	if container.Kafka == nil || container.Scylla == nil {
		log.Fatalf("archiver needs kafka.brokers and scylla.hosts configured")
	}

	shutdown, err := telemetry.Setup(ctx, container.Config.Telemetry, container.Config.App, "archiver")
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	if err := container.EnsureTopics(ctx); err != nil {
		log.Fatalf("failed to ensure kafka topics: %v", err)
	}

	cfg := container.Config
	reader := container.Kafka.NewReader(cfg.Relay.KafkaTopic, cfg.Kafka.ConsumerGroupID)
	worker := archive.New(reader, scyllarepo.NewCDRStore(container.Scylla.Session()), container.Logger)
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("worker terminated: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
