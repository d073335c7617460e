// Package tts_test tests the Synthesizer implementations.
package tts_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/book-expert/tts-function/internal/core"
	"github.com/book-expert/tts-function/internal/tts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMockPolly = errors.New("mock polly error")

// mockPolly is a mock implementation of the PollyAPI interface.
type mockPolly struct {
	shouldFail  bool
	nilStream   bool
	lastRequest *polly.SynthesizeSpeechInput
}

func (m *mockPolly) SynthesizeSpeech(
	_ context.Context,
	params *polly.SynthesizeSpeechInput,
	_ ...func(*polly.Options),
) (*polly.SynthesizeSpeechOutput, error) {
	m.lastRequest = params

	if m.shouldFail {
		return nil, errMockPolly
	}

	if m.nilStream {
		return &polly.SynthesizeSpeechOutput{}, nil
	}

	return &polly.SynthesizeSpeechOutput{
		AudioStream: io.NopCloser(strings.NewReader("mp3:" + aws.ToString(params.Text))),
	}, nil
}

func TestPollySynthesizer_Synthesize(t *testing.T) {
	t.Parallel()

	client := &mockPolly{}
	synth := tts.NewPolly(client)

	stream, err := synth.Synthesize(context.Background(), core.SpeechRequest{
		Text:   "Hello",
		Voice:  "Joanna",
		Engine: "standard",
		Format: "mp3",
	})
	require.NoError(t, err)

	defer stream.Close()

	audio, err := io.ReadAll(stream)
	require.NoError(t, err)

	assert.Equal(t, "mp3:Hello", string(audio))
	assert.Equal(t, types.OutputFormatMp3, client.lastRequest.OutputFormat)
	assert.Equal(t, types.VoiceIdJoanna, client.lastRequest.VoiceId)
	assert.Equal(t, types.EngineStandard, client.lastRequest.Engine)
}

func TestPollySynthesizer_EngineOptional(t *testing.T) {
	t.Parallel()

	client := &mockPolly{}
	synth := tts.NewPolly(client)

	stream, err := synth.Synthesize(context.Background(), core.SpeechRequest{Text: "x", Voice: "Amy", Format: "mp3"})
	require.NoError(t, err)
	require.NoError(t, stream.Close())

	assert.Empty(t, client.lastRequest.Engine)
}

func TestPollySynthesizer_Errors(t *testing.T) {
	t.Parallel()

	_, err := tts.NewPolly(&mockPolly{}).Synthesize(context.Background(), core.SpeechRequest{Text: "x", Format: "mp3"})
	require.ErrorIs(t, err, tts.ErrVoiceEmpty)

	_, err = tts.NewPolly(&mockPolly{shouldFail: true}).Synthesize(
		context.Background(), core.SpeechRequest{Text: "x", Voice: "Joanna", Format: "mp3"},
	)
	require.ErrorIs(t, err, errMockPolly)

	_, err = tts.NewPolly(&mockPolly{nilStream: true}).Synthesize(
		context.Background(), core.SpeechRequest{Text: "x", Voice: "Joanna", Format: "mp3"},
	)
	require.ErrorIs(t, err, tts.ErrEmptyAudioStream)
}
