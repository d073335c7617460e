// Package config provides the configuration structure for the tts-function.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"
)

// Environment variables read by Load.
const (
	EnvAudioBucket     = "AUDIO_BUCKET"
	EnvConfigFile      = "TTS_CONFIG_FILE"
	EnvVoice           = "TTS_VOICE"
	EnvEngine          = "TTS_ENGINE"
	EnvTTSProvider     = "TTS_PROVIDER"
	EnvTTSServiceURL   = "TTS_SERVICE_URL"
	EnvStorageProvider = "STORAGE_PROVIDER"
	EnvScratchDir      = "SCRATCH_DIR"
	EnvNATSURL         = "NATS_URL"
	EnvLogDir          = "LOG_DIR"
	EnvRegion          = "AWS_REGION"
)

// Provider names.
const (
	ProviderPolly = "polly"
	ProviderHTTP  = "http"
	ProviderS3    = "s3"
	ProviderNATS  = "nats"
)

// Defaults applied before any file or environment value.
const (
	DefaultVoice          = "Joanna"
	DefaultEngine         = "standard"
	DefaultTimeoutSeconds = 30
	DefaultNATSSubject    = "text.processed"
	DefaultQueueGroup     = "tts-workers"
	DefaultTextBucket     = "TEXT_FILES"
)

var (
	// ErrAudioBucketMissing indicates that no destination bucket was configured.
	ErrAudioBucketMissing = errors.New("audio bucket is required (set " + EnvAudioBucket + ")")
	// ErrUnknownTTSProvider indicates an unsupported speech provider.
	ErrUnknownTTSProvider = errors.New("unknown tts provider")
	// ErrUnknownStorageProvider indicates an unsupported storage provider.
	ErrUnknownStorageProvider = errors.New("unknown storage provider")
	// ErrServiceURLMissing indicates that the http provider has no service URL.
	ErrServiceURLMissing = errors.New("tts service_url is required for the http provider")
	// ErrNATSURLMissing indicates that the nats storage provider has no server URL.
	ErrNATSURLMissing = errors.New("nats url is required for the nats storage provider")
	// ErrTimeoutNegative indicates a negative synthesis timeout.
	ErrTimeoutNegative = errors.New("tts timeout_seconds must be non-negative")
)

// AudioConfig describes the produced audio and where it goes.
type AudioConfig struct {
	Bucket     string `toml:"bucket"`
	Voice      string `toml:"voice"`
	Engine     string `toml:"engine"`
	ScratchDir string `toml:"scratch_dir"`
}

// TTSConfig selects and configures the speech provider.
type TTSConfig struct {
	Provider       string `toml:"provider"`
	ServiceURL     string `toml:"service_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// StorageConfig selects the object store.
type StorageConfig struct {
	Provider string `toml:"provider"`
}

// AWSConfig holds optional overrides for the AWS SDK. Empty values defer to
// the SDK's default credential and region chain.
type AWSConfig struct {
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	UsePathStyle    bool   `toml:"use_path_style"`
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL        string `toml:"url"`
	Subject    string `toml:"subject"`
	QueueGroup string `toml:"queue_group"`
	TextBucket string `toml:"text_bucket"`
}

// MetricsConfig holds the Prometheus listener configuration.
type MetricsConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	Audio   AudioConfig   `toml:"audio"`
	TTS     TTSConfig     `toml:"tts"`
	Storage StorageConfig `toml:"storage"`
	AWS     AWSConfig     `toml:"aws"`
	NATS    NATSConfig    `toml:"nats"`
	Metrics MetricsConfig `toml:"metrics"`
	Paths   PathsConfig   `toml:"paths"`
}

// Default returns a Config populated with default values.
func Default() Config {
	return Config{
		Audio: AudioConfig{
			Bucket:     "",
			Voice:      DefaultVoice,
			Engine:     DefaultEngine,
			ScratchDir: os.TempDir(),
		},
		TTS: TTSConfig{
			Provider:       ProviderPolly,
			ServiceURL:     "",
			TimeoutSeconds: DefaultTimeoutSeconds,
		},
		Storage: StorageConfig{Provider: ProviderS3},
		AWS:     AWSConfig{},
		NATS: NATSConfig{
			URL:        "",
			Subject:    DefaultNATSSubject,
			QueueGroup: DefaultQueueGroup,
			TextBucket: DefaultTextBucket,
		},
		Metrics: MetricsConfig{ListenAddr: ""},
		Paths:   PathsConfig{BaseLogsDir: os.TempDir()},
	}
}

// Load builds the configuration for the tts-function. Values come from, in
// increasing precedence: defaults, the project configuration discovered by
// the configurator (or the file named by TTS_CONFIG_FILE), and the
// environment.
func Load(log *logger.Logger) (*Config, error) {
	cfg := Default()

	path := os.Getenv(EnvConfigFile)
	if path != "" {
		err := LoadFile(path, &cfg)
		if err != nil {
			return nil, err
		}
	} else {
		err := configurator.Load(&cfg, log)
		if err != nil {
			// A function deployed without a project file runs on the environment alone.
			log.Warn("No project configuration loaded, using environment only: %v", err)
		}
	}

	ApplyEnv(&cfg, os.LookupEnv)

	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFile decodes a TOML file over cfg.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	return Parse(data, cfg)
}

// Parse decodes TOML data over cfg. Keys absent from data keep their current values.
func Parse(data []byte, cfg *Config) error {
	err := toml.Unmarshal(data, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML configuration: %w", err)
	}

	return nil
}

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides cfg with any of the supported environment variables
// that lookup reports as set and non-empty.
func ApplyEnv(cfg *Config, lookup LookupFunc) {
	overrides := map[string]*string{
		EnvAudioBucket:     &cfg.Audio.Bucket,
		EnvVoice:           &cfg.Audio.Voice,
		EnvEngine:          &cfg.Audio.Engine,
		EnvScratchDir:      &cfg.Audio.ScratchDir,
		EnvTTSProvider:     &cfg.TTS.Provider,
		EnvTTSServiceURL:   &cfg.TTS.ServiceURL,
		EnvStorageProvider: &cfg.Storage.Provider,
		EnvNATSURL:         &cfg.NATS.URL,
		EnvLogDir:          &cfg.Paths.BaseLogsDir,
		EnvRegion:          &cfg.AWS.Region,
	}

	for name, target := range overrides {
		if value, ok := lookup(name); ok && value != "" {
			*target = value
		}
	}
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if c.Audio.Bucket == "" {
		return ErrAudioBucketMissing
	}

	switch c.TTS.Provider {
	case ProviderPolly:
	case ProviderHTTP:
		if c.TTS.ServiceURL == "" {
			return ErrServiceURLMissing
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownTTSProvider, strconv.Quote(c.TTS.Provider))
	}

	if c.TTS.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: got %d", ErrTimeoutNegative, c.TTS.TimeoutSeconds)
	}

	switch c.Storage.Provider {
	case ProviderS3:
	case ProviderNATS:
		if c.NATS.URL == "" {
			return ErrNATSURLMissing
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownStorageProvider, strconv.Quote(c.Storage.Provider))
	}

	return nil
}
