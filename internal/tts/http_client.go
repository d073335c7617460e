package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/book-expert/tts-function/internal/core"
)

// API endpoints and paths.
const (
	apiGenerateSpeech = "/v1/generate/speech"
	apiHealth         = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeMPEG   = "audio/mpeg"
)

// Error messages.
const (
	errFmtServiceErrorWithCode = "TTS service error (%s): %s (code: %s)"
	errFmtServiceNonOKStatus   = "TTS service returned non-OK status: %s, body: %s"
	errFmtUnexpectedType       = "%w: expected %s, got %s"
)

var (
	// ErrTextEmpty indicates a synthesis request without text.
	ErrTextEmpty = errors.New("text cannot be empty")
	// ErrUnexpectedContentType indicates that the service answered with something other than MPEG audio.
	ErrUnexpectedContentType = errors.New("unexpected content type")
)

// HTTPSynthesizer implements the core.Synthesizer interface against a
// self-hosted TTS HTTP service.
type HTTPSynthesizer struct {
	httpClient *http.Client
	baseURL    string
}

// Request defines the JSON payload of a generation request.
type Request struct {
	Text         string `json:"text"`
	Voice        string `json:"voice"`
	Engine       string `json:"engine,omitempty"`
	OutputFormat string `json:"output_format"`
}

// ErrorResponse represents a structured error response from the TTS service.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// NewHTTPSynthesizer creates an HTTPSynthesizer. The baseURL includes the
// scheme and port (e.g. "http://localhost:8000"). A zero timeout disables the
// client timeout and leaves cancellation to the request context.
func NewHTTPSynthesizer(baseURL string, timeout time.Duration) *HTTPSynthesizer {
	return &HTTPSynthesizer{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Synthesize posts req to the service and returns the audio response body.
func (c *HTTPSynthesizer) Synthesize(ctx context.Context, req core.SpeechRequest) (io.ReadCloser, error) {
	if req.Text == "" {
		return nil, ErrTextEmpty
	}

	requestBody, err := json.Marshal(Request{
		Text:         req.Text,
		Voice:        req.Voice,
		Engine:       req.Engine,
		OutputFormat: req.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+apiGenerateSpeech,
		bytes.NewReader(requestBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeMPEG)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to TTS service at %s: %w", c.baseURL, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()

		return nil, parseErrorResponse(resp)
	}

	contentType := resp.Header.Get(headerContentType)
	if contentType != contentTypeMPEG {
		resp.Body.Close()

		return nil, fmt.Errorf(errFmtUnexpectedType, ErrUnexpectedContentType, contentTypeMPEG, contentType)
	}

	return resp.Body, nil
}

// HealthCheck verifies that the TTS service is running and operational.
func (c *HTTPSynthesizer) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed for service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %s", resp.Status)
	}

	return nil
}

// parseErrorResponse decodes a structured JSON error from the service and
// falls back to the raw body.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errorResp ErrorResponse

	err := json.Unmarshal(body, &errorResp)
	if err == nil && errorResp.Detail != "" {
		return fmt.Errorf(errFmtServiceErrorWithCode, resp.Status, errorResp.Detail, errorResp.ErrorCode)
	}

	return fmt.Errorf(errFmtServiceNonOKStatus, resp.Status, string(body))
}
