package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/app"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/generator"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/infra/cloud"
)

func main() {
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := flag.String("config", getEnv("CONFIG_FILE", "configs/config.yaml"), "path to configuration file")
	count := flag.Int("count", 0, "number of records to write (overrides generator.file_count)")
	badData := flag.Bool("bad-data", false, "inject an unexpected field into every record")
	flag.Parse()

	container, err := app.Build(ctx, *configPath)
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer container.Close(context.Background())

	opts := generator.OptionsFromConfig(container.Config)
	if *count > 0 {
		opts.FileCount = *count
	}
	if *badData {
		opts.BadData = true
	}

	gen := generator.New(cloud.NewS3ObjectStore(container.AWS.S3), opts, container.Logger)
	written, err := gen.Run(ctx)
	if err != nil {
		container.Logger.Error("generator stopped early", zap.Int("written", written), zap.Error(err))
		os.Exit(1)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
