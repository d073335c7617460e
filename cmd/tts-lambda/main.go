// main package for the tts-lambda function
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/book-expert/logger"
	"github.com/book-expert/tts-function/internal/bootstrap"
	"github.com/book-expert/tts-function/internal/config"
)

const logFileName = "tts-lambda.log"

func run() error {
	bootstrapLog, err := logger.New(os.TempDir(), "tts-lambda-bootstrap.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(cfg.Paths.BaseLogsDir, logFileName)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	// Clients live for the lifetime of the execution environment.
	runtime, err := bootstrap.New(context.Background(), cfg, log, nil, false)
	if err != nil {
		log.Error("Failed to initialize: %v", err)

		return fmt.Errorf("failed to initialize: %w", err)
	}

	log.System("TTS function ready, writing audio to bucket: %s", cfg.Audio.Bucket)

	// lambda.Start does not return.
	lambda.Start(runtime.Converter.Invoke)

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Function exited with error: %v\n", err)
		os.Exit(1)
	}
}
