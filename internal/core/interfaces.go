// Package core defines the core business types and interfaces for the TTS function.
package core

import (
	"context"
	"io"
)

// ObjectStore defines the interface for interacting with a bucketed blob store.
type ObjectStore interface {
	Download(ctx context.Context, bucket, key string, dst io.Writer) error
	Upload(ctx context.Context, bucket, key string, src io.Reader) error
	// Locator returns the string that identifies an object to callers,
	// e.g. "s3://bucket/key".
	Locator(bucket, key string) string
}

// SpeechRequest holds the parameters for a single synthesis call.
type SpeechRequest struct {
	Text   string
	Voice  string
	Engine string
	Format string
}

// Synthesizer defines the interface for a text-to-speech engine.
// The caller owns the returned stream and must close it.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SpeechRequest) (io.ReadCloser, error)
}

// Location identifies a stored object.
type Location struct {
	Bucket string
	Key    string
}
