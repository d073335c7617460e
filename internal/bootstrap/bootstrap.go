// Package bootstrap builds the process-wide clients from configuration and
// wires them into a converter.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/book-expert/logger"
	"github.com/book-expert/tts-function/internal/config"
	"github.com/book-expert/tts-function/internal/converter"
	"github.com/book-expert/tts-function/internal/core"
	"github.com/book-expert/tts-function/internal/monitoring"
	"github.com/book-expert/tts-function/internal/objectstore"
	"github.com/book-expert/tts-function/internal/tts"
	"github.com/nats-io/nats.go"
)

// Runtime holds the clients shared by every invocation of a process.
type Runtime struct {
	Converter   *converter.Converter
	Synthesizer core.Synthesizer
	// NATS is nil unless the storage provider or the caller needs it.
	NATS *nats.Conn
}

// Close releases the NATS connection, if any.
func (r *Runtime) Close() {
	if r.NATS != nil {
		r.NATS.Close()
	}
}

// New builds a Runtime. needNATS forces a NATS connection even when the
// object store is S3. metrics may be nil.
func New(
	ctx context.Context,
	cfg *config.Config,
	log *logger.Logger,
	metrics *monitoring.Metrics,
	needNATS bool,
) (*Runtime, error) {
	awsCfg, err := LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		return nil, err
	}

	runtime := &Runtime{}

	if needNATS || cfg.Storage.Provider == config.ProviderNATS {
		runtime.NATS, err = nats.Connect(cfg.NATS.URL, nats.Name("tts-function"))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
		}
	}

	store, err := NewObjectStore(cfg, awsCfg, runtime.NATS)
	if err != nil {
		runtime.Close()

		return nil, err
	}

	runtime.Synthesizer = NewSynthesizer(cfg, awsCfg)

	runtime.Converter, err = converter.New(store, runtime.Synthesizer, converter.Config{
		AudioBucket: cfg.Audio.Bucket,
		Voice:       cfg.Audio.Voice,
		Engine:      cfg.Audio.Engine,
		ScratchDir:  cfg.Audio.ScratchDir,
	}, log, metrics)
	if err != nil {
		runtime.Close()

		return nil, fmt.Errorf("failed to create converter: %w", err)
	}

	log.Info("Converter ready: storage=%s tts=%s audio_bucket=%s voice=%s",
		cfg.Storage.Provider, cfg.TTS.Provider, cfg.Audio.Bucket, cfg.Audio.Voice)

	return runtime, nil
}

// LoadAWSConfig resolves the SDK configuration, applying any explicit overrides.
func LoadAWSConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	if cfg.Endpoint != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(cfg.Endpoint))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return awsCfg, nil
}

// NewObjectStore returns the configured object store. nc is required for
// the nats provider.
func NewObjectStore(cfg *config.Config, awsCfg aws.Config, nc *nats.Conn) (core.ObjectStore, error) {
	switch cfg.Storage.Provider {
	case config.ProviderNATS:
		if nc == nil {
			return nil, config.ErrNATSURLMissing
		}

		jetstreamContext, err := nc.JetStream()
		if err != nil {
			return nil, fmt.Errorf("failed to create JetStream context: %w", err)
		}

		return objectstore.NewNats(jetstreamContext), nil
	case config.ProviderS3:
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.UsePathStyle = cfg.AWS.UsePathStyle
		})

		return objectstore.NewS3(client), nil
	default:
		return nil, fmt.Errorf("%w: %s", config.ErrUnknownStorageProvider, cfg.Storage.Provider)
	}
}

// NewSynthesizer returns the configured speech provider. The provider name
// is assumed valid (see config.Validate).
func NewSynthesizer(cfg *config.Config, awsCfg aws.Config) core.Synthesizer {
	if cfg.TTS.Provider == config.ProviderHTTP {
		return tts.NewHTTPSynthesizer(cfg.TTS.ServiceURL, time.Duration(cfg.TTS.TimeoutSeconds)*time.Second)
	}

	return tts.NewPolly(polly.NewFromConfig(awsCfg))
}
