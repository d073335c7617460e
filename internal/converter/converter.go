// Package converter implements the text-to-speech pipeline: acquire text,
// synthesize it, and store the audio under a derived key.
package converter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-function/internal/core"
	"github.com/book-expert/tts-function/internal/event"
	"github.com/book-expert/tts-function/internal/monitoring"
)

const audioFormat = "mp3"

var (
	// ErrAudioBucketEmpty indicates that the converter has no destination bucket.
	ErrAudioBucketEmpty = errors.New("audio bucket cannot be empty")
	// ErrVoiceEmpty indicates that the converter has no default voice.
	ErrVoiceEmpty = errors.New("voice cannot be empty")
	// ErrInvalidUTF8 indicates that a fetched text object is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("object is not valid UTF-8 text")
)

var newlineNormalizer = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Config holds the per-process settings of a Converter.
type Config struct {
	AudioBucket string
	Voice       string
	Engine      string
	// ScratchDir holds the transient files of each conversion. Empty means os.TempDir().
	ScratchDir string
}

// Converter turns classified events into stored audio. It holds no mutable
// state and is safe for concurrent use.
type Converter struct {
	store   core.ObjectStore
	synth   core.Synthesizer
	cfg     Config
	log     *logger.Logger
	metrics *monitoring.Metrics
}

// New creates a Converter. metrics may be nil.
func New(
	store core.ObjectStore,
	synth core.Synthesizer,
	cfg Config,
	log *logger.Logger,
	metrics *monitoring.Metrics,
) (*Converter, error) {
	if cfg.AudioBucket == "" {
		return nil, ErrAudioBucketEmpty
	}

	if cfg.Voice == "" {
		return nil, ErrVoiceEmpty
	}

	return &Converter{
		store:   store,
		synth:   synth,
		cfg:     cfg,
		log:     log,
		metrics: metrics,
	}, nil
}

// Process runs the pipeline for one event. A direct request with blank text
// yields a 400 Result and a nil error. Any fetch, synthesis or upload
// failure is returned as an error and no Result is produced.
func (c *Converter) Process(ctx context.Context, evt event.Event) (Result, error) {
	switch evt.Kind {
	case event.KindDirectText:
		return c.processDirect(ctx, evt)
	case event.KindStorageNotification:
		return c.processStorage(ctx, evt)
	default:
		c.metrics.ObserveError(monitoring.StageClassify)

		return Result{}, fmt.Errorf("%w: %s", event.ErrUnrecognizedEvent, evt.Kind)
	}
}

func (c *Converter) processDirect(ctx context.Context, evt event.Event) (Result, error) {
	if strings.TrimSpace(evt.Text) == "" {
		c.metrics.ObserveValidationError()

		return badRequest(MessageMissingText), nil
	}

	loc, err := c.synthesizeAndUpload(ctx, evt.Text, c.voiceFor(evt), event.OutputKey(evt))
	if err != nil {
		return Result{}, err
	}

	c.metrics.ObserveConversion(evt.Kind.String())

	return c.success(MessageFromAPI, loc), nil
}

func (c *Converter) processStorage(ctx context.Context, evt event.Event) (Result, error) {
	text, err := c.fetchText(ctx, evt.Bucket, evt.Key)
	if err != nil {
		c.metrics.ObserveError(monitoring.StageFetch)

		return Result{}, err
	}

	loc, err := c.synthesizeAndUpload(ctx, text, c.voiceFor(evt), event.OutputKey(evt))
	if err != nil {
		return Result{}, err
	}

	c.metrics.ObserveConversion(evt.Kind.String())

	return c.success(MessageFromStorage, loc), nil
}

func (c *Converter) voiceFor(evt event.Event) string {
	if evt.Voice != "" {
		return evt.Voice
	}

	return c.cfg.Voice
}

// fetchText downloads bucket/key into a scratch file and returns its
// contents with line endings normalised to "\n".
func (c *Converter) fetchText(ctx context.Context, bucket, key string) (string, error) {
	scratch, err := os.CreateTemp(c.cfg.ScratchDir, "tts-input-*.txt")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file for text input: %w", err)
	}
	defer c.removeScratch(scratch)

	err = c.store.Download(ctx, bucket, key, scratch)
	if err != nil {
		return "", fmt.Errorf("failed to download text for key '%s': %w", key, err)
	}

	_, err = scratch.Seek(0, io.SeekStart)
	if err != nil {
		return "", fmt.Errorf("failed to rewind temp file: %w", err)
	}

	data, err := io.ReadAll(scratch)
	if err != nil {
		return "", fmt.Errorf("failed to read text from temp file: %w", err)
	}

	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s/%s", ErrInvalidUTF8, bucket, key)
	}

	return newlineNormalizer.Replace(string(data)), nil
}

// synthesizeAndUpload converts text to audio, spools it to a scratch file
// and uploads that file to the audio bucket under key.
func (c *Converter) synthesizeAndUpload(ctx context.Context, text, voice, key string) (core.Location, error) {
	started := time.Now()

	stream, err := c.synth.Synthesize(ctx, core.SpeechRequest{
		Text:   text,
		Voice:  voice,
		Engine: c.cfg.Engine,
		Format: audioFormat,
	})
	if err != nil {
		c.metrics.ObserveError(monitoring.StageSynthesize)

		return core.Location{}, fmt.Errorf("failed to process text to speech: %w", err)
	}

	defer func() {
		closeErr := stream.Close()
		if closeErr != nil {
			c.log.Warn("Failed to close audio stream: %v", closeErr)
		}
	}()

	scratch, err := os.CreateTemp(c.cfg.ScratchDir, "tts-output-*.mp3")
	if err != nil {
		return core.Location{}, fmt.Errorf("failed to create temp file for tts output: %w", err)
	}
	defer c.removeScratch(scratch)

	written, err := io.Copy(scratch, stream)
	if err != nil {
		c.metrics.ObserveError(monitoring.StageSynthesize)

		return core.Location{}, fmt.Errorf("failed to write audio stream to temp file: %w", err)
	}

	c.metrics.ObserveSynthesis(time.Since(started).Seconds(), written)

	_, err = scratch.Seek(0, io.SeekStart)
	if err != nil {
		return core.Location{}, fmt.Errorf("failed to rewind temp file: %w", err)
	}

	err = c.store.Upload(ctx, c.cfg.AudioBucket, key, scratch)
	if err != nil {
		c.metrics.ObserveError(monitoring.StageUpload)

		return core.Location{}, fmt.Errorf("failed to upload audio data for key '%s': %w", key, err)
	}

	c.log.Info("Uploaded audio to %s/%s", c.cfg.AudioBucket, key)

	return core.Location{Bucket: c.cfg.AudioBucket, Key: key}, nil
}

func (c *Converter) removeScratch(file *os.File) {
	closeErr := file.Close()
	if closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
		c.log.Warn("Failed to close temp file '%s': %v", file.Name(), closeErr)
	}

	removeErr := os.Remove(file.Name())
	if removeErr != nil {
		c.log.Warn("Failed to remove temp file '%s': %v", file.Name(), removeErr)
	}
}

func (c *Converter) success(message string, loc core.Location) Result {
	return Result{
		StatusCode: statusOK,
		Message:    message,
		Location:   loc,
		Locator:    c.store.Locator(loc.Bucket, loc.Key),
	}
}
