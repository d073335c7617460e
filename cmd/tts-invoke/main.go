// main package for tts-invoke, a local runner that feeds one event through
// the same pipeline the deployed function uses.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-function/internal/bootstrap"
	"github.com/book-expert/tts-function/internal/config"
	"github.com/book-expert/tts-function/internal/tts"
	"github.com/joho/godotenv"
)

// Flag names.
const (
	flagText   = "text"
	flagBucket = "bucket"
	flagKey    = "key"
	flagEvent  = "event"
	flagEnv    = "env"
	flagHealth = "health"
)

// Flag descriptions.
const (
	flagTextDesc   = "Text to convert, sent as a direct request"
	flagBucketDesc = "Source bucket of a simulated storage notification"
	flagKeyDesc    = "Source object key of a simulated storage notification"
	flagEventDesc  = "Path to a JSON file holding a raw invocation event"
	flagEnvDesc    = "Path to a .env file loaded before configuration"
	flagHealthDesc = "Check the http TTS provider health and exit"
)

const (
	defaultEnvFile     = ".env"
	healthCheckTimeout = 10 * time.Second
	logFileName        = "tts-invoke.log"
)

var (
	// ErrNoInput indicates that no event source flag was given.
	ErrNoInput = errors.New("one of --text, --bucket/--key or --event must be provided")
	// ErrConflictingInput indicates that more than one event source flag was given.
	ErrConflictingInput = errors.New("--text, --bucket/--key and --event are mutually exclusive")
	// ErrIncompleteNotification indicates that only one of --bucket and --key was given.
	ErrIncompleteNotification = errors.New("--bucket and --key must be used together")
	// ErrHealthUnsupported indicates a health check against a provider without one.
	ErrHealthUnsupported = errors.New("health check is only supported by the http tts provider")
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	text      string
	bucket    string
	key       string
	eventPath string
	envPath   string
	health    bool
}

func main() {
	err := run(os.Args[1:], os.Stdout)
	if err != nil {
		// A logger might not be initialized yet, so use the standard log package.
		log.Fatalf("Error: %v", err)
	}
}

func run(args []string, out io.Writer) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	err = loadEnvFile(flags.envPath)
	if err != nil {
		return err
	}

	bootstrapLog, err := logger.New(os.TempDir(), logFileName)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer bootstrapLog.Close()

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx := context.Background()

	if flags.health {
		return handleHealthCheck(ctx, cfg, out)
	}

	raw, err := buildEvent(flags)
	if err != nil {
		return err
	}

	runtime, err := bootstrap.New(ctx, cfg, bootstrapLog, nil, false)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer runtime.Close()

	resp, err := runtime.Converter.Invoke(ctx, raw)
	if err != nil {
		return fmt.Errorf("invocation failed: %w", err)
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")

	return encoder.Encode(resp)
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	flagSet := flag.NewFlagSet("tts-invoke", flag.ContinueOnError)
	flagSet.StringVar(&flags.text, flagText, "", flagTextDesc)
	flagSet.StringVar(&flags.bucket, flagBucket, "", flagBucketDesc)
	flagSet.StringVar(&flags.key, flagKey, "", flagKeyDesc)
	flagSet.StringVar(&flags.eventPath, flagEvent, "", flagEventDesc)
	flagSet.StringVar(&flags.envPath, flagEnv, defaultEnvFile, flagEnvDesc)
	flagSet.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return appFlags{}, fmt.Errorf("failed to parse flags: %w", err)
	}

	if flags.health {
		return flags, nil
	}

	return flags, validateFlags(flags)
}

func validateFlags(flags appFlags) error {
	if (flags.bucket == "") != (flags.key == "") {
		return ErrIncompleteNotification
	}

	sources := 0

	for _, set := range []bool{flags.text != "", flags.bucket != "", flags.eventPath != ""} {
		if set {
			sources++
		}
	}

	switch sources {
	case 0:
		return ErrNoInput
	case 1:
		return nil
	default:
		return ErrConflictingInput
	}
}

// loadEnvFile loads path into the process environment. A missing default
// file is not an error.
func loadEnvFile(path string) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}

	if errors.Is(err, os.ErrNotExist) && path == defaultEnvFile {
		return nil
	}

	return fmt.Errorf("failed to load env file '%s': %w", path, err)
}

// buildEvent renders the flags as the raw payload the platform would deliver.
func buildEvent(flags appFlags) (json.RawMessage, error) {
	if flags.eventPath != "" {
		data, err := os.ReadFile(flags.eventPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read event file '%s': %w", flags.eventPath, err)
		}

		return data, nil
	}

	if flags.text != "" {
		body, err := json.Marshal(map[string]string{"text": flags.text})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}

		return json.Marshal(map[string]string{"body": string(body)})
	}

	notification := map[string]any{
		"Records": []any{
			map[string]any{
				"s3": map[string]any{
					"bucket": map[string]string{"name": flags.bucket},
					"object": map[string]string{"key": url.QueryEscape(flags.key)},
				},
			},
		},
	}

	return json.Marshal(notification)
}

// handleHealthCheck performs a service health check and prints the result.
func handleHealthCheck(ctx context.Context, cfg *config.Config, out io.Writer) error {
	if cfg.TTS.Provider != config.ProviderHTTP {
		return ErrHealthUnsupported
	}

	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	client := tts.NewHTTPSynthesizer(cfg.TTS.ServiceURL, healthCheckTimeout)

	err := client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("TTS service is not healthy: %w", err)
	}

	_, err = fmt.Fprintln(out, "TTS service is healthy")

	return err
}
