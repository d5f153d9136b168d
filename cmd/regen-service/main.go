// main package for the regen-service
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/book-expert/regen-service/internal/batch"
	"github.com/book-expert/regen-service/internal/config"
	"github.com/book-expert/regen-service/internal/core"
	"github.com/book-expert/regen-service/internal/enhance"
	"github.com/book-expert/regen-service/internal/kvstore"
	"github.com/book-expert/regen-service/internal/objectstore"
	"github.com/book-expert/regen-service/internal/pipeline"
	"github.com/book-expert/regen-service/internal/settings"
	"github.com/book-expert/regen-service/internal/speech"
	"github.com/book-expert/regen-service/internal/stt"
	"github.com/book-expert/regen-service/internal/voices"
	"github.com/book-expert/regen-service/internal/worker"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
)

const (
	bootstrapLogFile = "regen-service-bootstrap.log"
	serviceLogFile   = "regen-service.log"
	envOpenAIKey     = "OPENAI_API_KEY"
	natsClientName   = "regen-service"
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		// If bootstrap logger fails, we can only print to stderr
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	bootstrapLog.Info("Bootstrap logger created.")

	err = godotenv.Load()
	if err != nil {
		bootstrapLog.Info("No .env file found, using environment variables")
	}

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, serviceLogFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, finalLog)
}

// serve connects to NATS, wires the components and runs the command worker
// until ctx ends.
func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name(natsClientName))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	payloads, err := objectstore.New(jetstreamContext, cfg.NATS.PayloadBucket)
	if err != nil {
		return err
	}

	state, closeState, err := openState(jetstreamContext, cfg, log)
	if err != nil {
		return err
	}

	defer func() {
		closeErr := closeState.Close()
		if closeErr != nil {
			log.Error("Failed to close state store: %v", closeErr)
		}
	}()

	speechClient := speech.NewClient(cfg.Services.SpeechURL, cfg.Services.Timeout())

	healthErr := speechClient.HealthCheck(ctx)
	if healthErr != nil {
		log.Warn("Speech service is not healthy yet: %v", healthErr)
	}

	enhancer := enhance.NewClient(enhance.Options{
		APIKey:      os.Getenv(envOpenAIKey),
		BaseURL:     cfg.Services.OpenAIBaseURL,
		Model:       cfg.Services.OpenAIModel,
		Temperature: cfg.Services.EnhanceTemperature,
		MaxTokens:   cfg.Services.EnhanceMaxTokens,
	})

	settingsStore := settings.New(state, log)
	settingsStore.Load(ctx)

	registry := voices.New(voices.Dependencies{
		Lister:      speechClient,
		Synthesizer: speechClient,
		Store:       state,
		Selection:   settingsStore,
		Logger:      log,
	})
	registry.Load(ctx)

	engine := pipeline.New(pipeline.Dependencies{
		Payloads:    payloads,
		Transcriber: stt.NewClient(cfg.Services.STTURL, cfg.Services.Timeout()),
		Enhancer:    enhancer,
		Synthesizer: speechClient,
		Observer:    worker.NewEventPublisher(natsConnection, cfg.NATS.EventsSubject, log),
		Logger:      log,
	})

	orchestrator := batch.New(engine, settingsStore, log)
	defer orchestrator.Close()

	commandWorker := worker.NewNatsWorker(natsConnection, cfg.NATS.CommandSubject, worker.Services{
		Pipeline: engine,
		Batches:  orchestrator,
		Settings: settingsStore,
		Voices:   registry,
	}, 0, log)

	log.System("Regen-Service successfully initialized. Listening for commands on subject: %s", cfg.NATS.CommandSubject)

	err = commandWorker.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("worker stopped: %w", err)
	}

	log.System("Regen-Service shutting down.")

	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openState opens the key-value store selected by the configuration.
func openState(
	jetstreamContext nats.JetStreamContext,
	cfg *config.Config,
	log *logger.Logger,
) (core.KeyValueStore, io.Closer, error) {
	switch cfg.Storage.Backend {
	case config.BackendBadger:
		store, err := kvstore.NewBadger(kvstore.BadgerOptions{Dir: cfg.Storage.BadgerDir, Log: log})
		if err != nil {
			return nil, nil, err
		}

		log.Info("Using badger state store at %s", cfg.Storage.BadgerDir)

		return store, store, nil
	default:
		store, err := kvstore.NewNatsKV(jetstreamContext, cfg.NATS.KVBucket)
		if err != nil {
			return nil, nil, err
		}

		log.Info("Using NATS key-value bucket %s", cfg.NATS.KVBucket)

		return store, nopCloser{}, nil
	}
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
