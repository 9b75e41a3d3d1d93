// main package for the dialogue-tts-service
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/book-expert/dialogue-tts/internal/config"
	"github.com/book-expert/dialogue-tts/internal/effects"
	"github.com/book-expert/dialogue-tts/internal/metrics"
	"github.com/book-expert/dialogue-tts/internal/objectstore"
	"github.com/book-expert/dialogue-tts/internal/pipeline"
	"github.com/book-expert/dialogue-tts/internal/worker"
)

const (
	serviceName         = "dialogue-tts-service"
	metricsFlushTimeout = 5 * time.Second
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, serviceName+".log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

// initMetrics installs the global meter provider. The returned stop function
// flushes the last values to log.
func initMetrics(cfg *config.Config, log *logger.Logger) (*metrics.Metrics, func(), error) {
	met, shutdown, err := metrics.InitProvider(metrics.ProviderConfig{
		ServiceName: serviceName,
		Interval:    cfg.MetricsInterval(),
		Log:         log,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsFlushTimeout)
		defer cancel()

		shutdownErr := shutdown(ctx)
		if shutdownErr != nil {
			log.Error("Failed to flush metrics: %v", shutdownErr)
		}
	}

	return met, stop, nil
}

// stores holds the object store buckets the service reads and writes.
type stores struct {
	scripts *objectstore.NatsObjectStore
	audio   *objectstore.NatsObjectStore
	effects *objectstore.NatsObjectStore
}

func openStores(ctx context.Context, js jetstream.JetStream, cfg config.NATSConfig) (*stores, error) {
	scripts, err := objectstore.New(ctx, js, cfg.ScriptBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to open script bucket: %w", err)
	}

	audioStore, err := objectstore.New(ctx, js, cfg.AudioBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio bucket: %w", err)
	}

	effectsStore, err := objectstore.New(ctx, js, cfg.EffectsBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to open effects bucket: %w", err)
	}

	return &stores{scripts: scripts, audio: audioStore, effects: effectsStore}, nil
}

// clipSource picks where effect clips are read from.
func clipSource(cfg *config.Config, buckets *stores) effects.ClipSource {
	if cfg.Effects.Source == config.EffectSourceStore {
		return effects.StoreSource{Store: buckets.effects}
	}

	return effects.FileSource{Dir: cfg.Effects.Dir}
}

func run(ctx context.Context) error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	defer func() {
		_ = bootstrapLog.Close()
	}()

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
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

	// 4. Install metrics; they are flushed to the final log on exit
	met, stopMetrics, err := initMetrics(cfg, finalLog)
	if err != nil {
		finalLog.Error("%v", err)

		return err
	}
	defer stopMetrics()

	// 5. Connect to NATS and open the buckets
	natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name(serviceName))
	if err != nil {
		finalLog.Error("Failed to connect to NATS at %s: %v", cfg.NATS.URL, err)

		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer natsConnection.Close()

	js, err := jetstream.New(natsConnection)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	buckets, err := openStores(ctx, js, cfg.NATS)
	if err != nil {
		finalLog.Error("%v", err)

		return err
	}

	// 6. Build the render pipeline
	renderer, err := pipeline.Build(ctx, cfg, finalLog, met, clipSource(cfg, buckets))
	if err != nil {
		finalLog.Error("Failed to build render pipeline: %v", err)

		return fmt.Errorf("failed to build render pipeline: %w", err)
	}

	natsWorker, err := worker.NewNatsWorker(natsConnection, cfg.NATS.JobsSubject,
		buckets.scripts, buckets.audio, renderer, finalLog)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	finalLog.System("Dialogue-TTS-Service successfully initialized with %s provider. Listening for jobs on subject: %s",
		cfg.Provider.Kind, cfg.NATS.JobsSubject)

	// 7. Serve until interrupted
	err = natsWorker.Run(ctx)
	if err != nil {
		finalLog.Error("Worker stopped with error: %v", err)

		return err
	}

	finalLog.System("Dialogue-TTS-Service shut down.")

	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := run(ctx)

	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
