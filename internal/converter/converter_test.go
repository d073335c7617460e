// Package converter_test tests the text-to-speech pipeline.
package converter_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-function/internal/converter"
	"github.com/book-expert/tts-function/internal/core"
	"github.com/book-expert/tts-function/internal/event"
	"github.com/book-expert/tts-function/internal/monitoring"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const audioBucket = "audio-bucket"

var (
	errMockDownload = errors.New("mock download error")
	errMockUpload   = errors.New("mock upload error")
	errMockProcess  = errors.New("mock process error")
)

// mockObjectStore is an in-memory implementation of the ObjectStore interface.
type mockObjectStore struct {
	mu                 sync.Mutex
	downloadShouldFail bool
	uploadShouldFail   bool
	objects            map[string][]byte
	downloadedKeys     []string
	uploadedKeys       []string
}

func newMockObjectStore() *mockObjectStore {
	return &mockObjectStore{objects: make(map[string][]byte)}
}

func (m *mockObjectStore) put(bucket, key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[bucket+"/"+key] = data
}

func (m *mockObjectStore) get(bucket, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.objects[bucket+"/"+key]

	return data, ok
}

func (m *mockObjectStore) Download(_ context.Context, bucket, key string, dst io.Writer) error {
	m.mu.Lock()
	m.downloadedKeys = append(m.downloadedKeys, bucket+"/"+key)
	data, ok := m.objects[bucket+"/"+key]
	m.mu.Unlock()

	if m.downloadShouldFail || !ok {
		return errMockDownload
	}

	_, err := dst.Write(data)

	return err
}

func (m *mockObjectStore) Upload(_ context.Context, bucket, key string, src io.Reader) error {
	if m.uploadShouldFail {
		return errMockUpload
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[bucket+"/"+key] = data
	m.uploadedKeys = append(m.uploadedKeys, bucket+"/"+key)

	return nil
}

func (m *mockObjectStore) Locator(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}

// mockSynthesizer returns "audio(<voice>):<text>" as the audio stream.
type mockSynthesizer struct {
	mu                sync.Mutex
	processShouldFail bool
	requests          []core.SpeechRequest
}

func (m *mockSynthesizer) Synthesize(_ context.Context, req core.SpeechRequest) (io.ReadCloser, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.processShouldFail {
		return nil, errMockProcess
	}

	return io.NopCloser(strings.NewReader(fmt.Sprintf("audio(%s):%s", req.Voice, req.Text))), nil
}

func (m *mockSynthesizer) lastRequest() core.SpeechRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.requests[len(m.requests)-1]
}

// testEnv bundles a converter with its fakes.
type testEnv struct {
	conv       *converter.Converter
	store      *mockObjectStore
	synth      *mockSynthesizer
	scratchDir string
	logPath    string
}

func newTestEnv(t *testing.T, metrics *monitoring.Metrics) testEnv {
	t.Helper()

	env := testEnv{
		store:      newMockObjectStore(),
		synth:      &mockSynthesizer{},
		scratchDir: t.TempDir(),
	}

	logDir := t.TempDir()
	env.logPath = filepath.Join(logDir, "test-log.log")

	testLogger, err := logger.New(logDir, "test-log.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = testLogger.Close() })

	env.conv, err = converter.New(env.store, env.synth, converter.Config{
		AudioBucket: audioBucket,
		Voice:       "Joanna",
		Engine:      "standard",
		ScratchDir:  env.scratchDir,
	}, testLogger, metrics)
	require.NoError(t, err)

	return env
}

func setupTest(t *testing.T) (*converter.Converter, *mockObjectStore, *mockSynthesizer, string) {
	t.Helper()

	env := newTestEnv(t, nil)

	return env.conv, env.store, env.synth, env.scratchDir
}

func decodeBody(t *testing.T, body string) map[string]string {
	t.Helper()

	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(body), &decoded))

	return decoded
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := converter.New(newMockObjectStore(), &mockSynthesizer{}, converter.Config{Voice: "Joanna"}, nil, nil)
	require.ErrorIs(t, err, converter.ErrAudioBucketEmpty)

	_, err = converter.New(newMockObjectStore(), &mockSynthesizer{}, converter.Config{AudioBucket: "a"}, nil, nil)
	require.ErrorIs(t, err, converter.ErrVoiceEmpty)
}

func TestProcess_DirectRequest(t *testing.T) {
	t.Parallel()

	conv, store, synth, _ := setupTest(t)

	for _, text := range []string{"Hello", "  padded  ", "multi\nline"} {
		result, err := conv.Process(context.Background(), event.DirectText(text))
		require.NoError(t, err)

		assert.Equal(t, 200, result.StatusCode)
		assert.Equal(t, converter.MessageFromAPI, result.Message)
		assert.Contains(t, result.Locator, "api_request.mp3")
		assert.Equal(t, "s3://audio-bucket/api_request.mp3", result.Locator)
		assert.Equal(t, text, synth.lastRequest().Text, "text is synthesized untrimmed")

		audio, ok := store.get(audioBucket, "api_request.mp3")
		require.True(t, ok)
		assert.Equal(t, "audio(Joanna):"+text, string(audio))
	}

	assert.Equal(t, "mp3", synth.lastRequest().Format)
	assert.Equal(t, "standard", synth.lastRequest().Engine)
}

func TestProcess_DirectRequestBlankText(t *testing.T) {
	t.Parallel()

	conv, store, synth, _ := setupTest(t)

	for _, text := range []string{"", " ", "\t\n  \r\n"} {
		result, err := conv.Process(context.Background(), event.DirectText(text))
		require.NoError(t, err)

		assert.Equal(t, 400, result.StatusCode)
		assert.Equal(t, converter.MessageMissingText, result.Error)
	}

	assert.Empty(t, synth.requests)
	assert.Empty(t, store.uploadedKeys)
}

func TestProcess_StorageNotification(t *testing.T) {
	t.Parallel()

	conv, store, synth, scratchDir := setupTest(t)
	store.put("in-bucket", "a/b.txt", []byte("Hello"))

	result, err := conv.Process(context.Background(), event.StorageNotification("in-bucket", "a/b.txt"))
	require.NoError(t, err)

	assert.Equal(t, []string{"in-bucket/a/b.txt"}, store.downloadedKeys)
	assert.Equal(t, "Hello", synth.lastRequest().Text)
	assert.Equal(t, []string{"audio-bucket/a/b.mp3"}, store.uploadedKeys)
	assert.Equal(t, 200, result.StatusCode)
	assert.Equal(t, converter.MessageFromStorage, result.Message)
	assert.Equal(t, "s3://audio-bucket/a/b.mp3", result.Locator)
	assert.Equal(t, core.Location{Bucket: audioBucket, Key: "a/b.mp3"}, result.Location)

	entries, err := os.ReadDir(scratchDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch files are removed")
}

func TestProcess_StorageNormalizesLineEndings(t *testing.T) {
	t.Parallel()

	conv, store, synth, _ := setupTest(t)
	store.put("in", "notes", []byte("line one\r\nline two\rline three"))

	result, err := conv.Process(context.Background(), event.StorageNotification("in", "notes"))
	require.NoError(t, err)

	assert.Equal(t, "line one\nline two\nline three", synth.lastRequest().Text)
	assert.Equal(t, "s3://audio-bucket/notes.mp3", result.Locator)
}

func TestProcess_VoiceOverride(t *testing.T) {
	t.Parallel()

	conv, store, synth, _ := setupTest(t)
	store.put("in", "a.txt", []byte("hi"))

	evt := event.StorageNotification("in", "a.txt")
	evt.Voice = "Matthew"

	_, err := conv.Process(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, "Matthew", synth.lastRequest().Voice)
}

func TestProcess_StorageErrors(t *testing.T) {
	t.Parallel()

	t.Run("download failure", func(t *testing.T) {
		t.Parallel()

		conv, store, synth, _ := setupTest(t)
		store.downloadShouldFail = true

		_, err := conv.Process(context.Background(), event.StorageNotification("in", "a.txt"))
		require.ErrorIs(t, err, errMockDownload)
		assert.Empty(t, synth.requests)
	})

	t.Run("invalid utf-8", func(t *testing.T) {
		t.Parallel()

		conv, store, synth, _ := setupTest(t)
		store.put("in", "bin.txt", []byte{0xff, 0xfe, 0x00})

		_, err := conv.Process(context.Background(), event.StorageNotification("in", "bin.txt"))
		require.ErrorIs(t, err, converter.ErrInvalidUTF8)
		assert.Empty(t, synth.requests)
	})

	t.Run("synthesis failure", func(t *testing.T) {
		t.Parallel()

		conv, store, synth, _ := setupTest(t)
		store.put("in", "a.txt", []byte("hi"))
		synth.processShouldFail = true

		_, err := conv.Process(context.Background(), event.StorageNotification("in", "a.txt"))
		require.ErrorIs(t, err, errMockProcess)
		assert.Empty(t, store.uploadedKeys)
	})

	t.Run("upload failure", func(t *testing.T) {
		t.Parallel()

		conv, store, _, scratchDir := setupTest(t)
		store.put("in", "a.txt", []byte("hi"))
		store.uploadShouldFail = true

		_, err := conv.Process(context.Background(), event.StorageNotification("in", "a.txt"))
		require.ErrorIs(t, err, errMockUpload)

		entries, readErr := os.ReadDir(scratchDir)
		require.NoError(t, readErr)
		assert.Empty(t, entries, "scratch files are removed on failure")
	})
}

func TestProcess_UnknownKind(t *testing.T) {
	t.Parallel()

	conv, _, _, _ := setupTest(t)

	_, err := conv.Process(context.Background(), event.Event{})
	require.ErrorIs(t, err, event.ErrUnrecognizedEvent)
}

func TestProcess_ConcurrentConversionsDoNotShareScratchFiles(t *testing.T) {
	t.Parallel()

	conv, store, _, _ := setupTest(t)

	const workers = 16

	for i := range workers {
		store.put("in", fmt.Sprintf("doc-%02d.txt", i), bytes.Repeat([]byte(fmt.Sprintf("text-%02d ", i)), 512))
	}

	var wg sync.WaitGroup

	errs := make(chan error, workers)

	for i := range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := conv.Process(context.Background(), event.StorageNotification("in", fmt.Sprintf("doc-%02d.txt", i)))
			errs <- err
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	for i := range workers {
		audio, ok := store.get(audioBucket, fmt.Sprintf("doc-%02d.mp3", i))
		require.True(t, ok)

		want := "audio(Joanna):" + strings.Repeat(fmt.Sprintf("text-%02d ", i), 512)
		assert.Equal(t, want, string(audio))
	}
}

func TestProcess_RecordsMetrics(t *testing.T) {
	t.Parallel()

	metrics := monitoring.NewMetrics()
	env := newTestEnv(t, metrics)
	ctx := context.Background()

	// Successes by trigger.
	_, err := env.conv.Process(ctx, event.DirectText("Hello"))
	require.NoError(t, err)

	env.store.put("in", "a.txt", []byte("stored"))
	_, err = env.conv.Process(ctx, event.StorageNotification("in", "a.txt"))
	require.NoError(t, err)

	// Blank direct text.
	_, err = env.conv.Process(ctx, event.DirectText("  "))
	require.NoError(t, err)

	// Fetch failure.
	_, err = env.conv.Process(ctx, event.StorageNotification("in", "missing.txt"))
	require.ErrorIs(t, err, errMockDownload)

	// Synthesis failure.
	env.synth.processShouldFail = true
	_, err = env.conv.Process(ctx, event.DirectText("Hello"))
	require.ErrorIs(t, err, errMockProcess)

	env.synth.processShouldFail = false

	// Upload failure.
	env.store.uploadShouldFail = true
	_, err = env.conv.Process(ctx, event.DirectText("Hello"))
	require.ErrorIs(t, err, errMockUpload)

	env.store.uploadShouldFail = false

	// Classification failures.
	_, err = env.conv.Invoke(ctx, json.RawMessage(`{"source": "aws.events"}`))
	require.ErrorIs(t, err, event.ErrUnrecognizedEvent)

	_, err = env.conv.Invoke(ctx, json.RawMessage(`{"body": "not json"}`))
	require.ErrorIs(t, err, event.ErrInvalidBody)

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Conversions.WithLabelValues("api")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Conversions.WithLabelValues("storage")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ValidationErrors), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ConversionErrors.WithLabelValues(monitoring.StageFetch)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ConversionErrors.WithLabelValues(monitoring.StageSynthesize)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ConversionErrors.WithLabelValues(monitoring.StageUpload)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.ConversionErrors.WithLabelValues(monitoring.StageClassify)), 0)
}
