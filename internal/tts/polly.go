// Package tts provides the core.Synthesizer implementations.
package tts

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/book-expert/tts-function/internal/core"
)

var (
	// ErrVoiceEmpty indicates that no voice was requested.
	ErrVoiceEmpty = errors.New("voice cannot be empty")
	// ErrEmptyAudioStream indicates a synthesis response without audio.
	ErrEmptyAudioStream = errors.New("synthesis returned no audio stream")
)

// PollyAPI is the subset of the Polly client used by PollySynthesizer.
type PollyAPI interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// PollySynthesizer implements the core.Synthesizer interface with Amazon Polly.
type PollySynthesizer struct {
	client PollyAPI
}

// NewPolly creates a new PollySynthesizer.
func NewPolly(client PollyAPI) *PollySynthesizer {
	return &PollySynthesizer{client: client}
}

// Synthesize requests speech for req.Text and returns the audio stream.
func (p *PollySynthesizer) Synthesize(ctx context.Context, req core.SpeechRequest) (io.ReadCloser, error) {
	if req.Voice == "" {
		return nil, ErrVoiceEmpty
	}

	input := &polly.SynthesizeSpeechInput{
		Text:         aws.String(req.Text),
		OutputFormat: types.OutputFormat(req.Format),
		VoiceId:      types.VoiceId(req.Voice),
	}
	if req.Engine != "" {
		input.Engine = types.Engine(req.Engine)
	}

	output, err := p.client.SynthesizeSpeech(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize speech with voice %s: %w", req.Voice, err)
	}

	if output.AudioStream == nil {
		return nil, ErrEmptyAudioStream
	}

	return output.AudioStream, nil
}
