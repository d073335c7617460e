// main package for the tts-worker
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-function/internal/bootstrap"
	"github.com/book-expert/tts-function/internal/config"
	"github.com/book-expert/tts-function/internal/monitoring"
	"github.com/book-expert/tts-function/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricsShutdownTimeout = 5 * time.Second
	readHeaderTimeout      = 5 * time.Second
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
	bootstrapLog, err := setupLogger(os.TempDir(), "tts-worker-bootstrap.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	// 2. Load configuration
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if cfg.NATS.URL == "" {
		bootstrapLog.Error("The worker needs a NATS server (set %s)", config.EnvNATSURL)

		return config.ErrNATSURLMissing
	}

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, "tts-worker.log")
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return err
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. Metrics
	metrics := monitoring.NewMetrics()
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(reg)

	if cfg.Metrics.ListenAddr != "" {
		shutdown := serveMetrics(cfg.Metrics.ListenAddr, reg, finalLog)
		defer shutdown()
	}

	// 5. Clients and worker
	runtime, err := bootstrap.New(ctx, cfg, finalLog, metrics, true)
	if err != nil {
		finalLog.Error("Failed to initialize: %v", err)

		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer runtime.Close()

	natsWorker, err := worker.NewNatsWorker(
		runtime.NATS, cfg.NATS.Subject, cfg.NATS.QueueGroup, cfg.NATS.TextBucket, runtime.Converter, finalLog,
	)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	finalLog.System("TTS-Worker successfully initialized. Listening for jobs on subject: %s", cfg.NATS.Subject)

	err = natsWorker.Run(ctx)
	if err != nil {
		finalLog.Error("Worker stopped with error: %v", err)

		return err
	}

	finalLog.System("TTS-Worker stopped.")

	return nil
}

// serveMetrics exposes reg on addr and returns a function that stops the server.
func serveMetrics(addr string, reg *prometheus.Registry, log *logger.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server failed: %v", err)
		}
	}()

	log.Info("Serving metrics on %s/metrics", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()

		shutdownErr := server.Shutdown(ctx)
		if shutdownErr != nil {
			log.Warn("Failed to stop metrics server: %v", shutdownErr)
		}
	}
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
