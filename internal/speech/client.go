// Package speech provides the Speech Synthesis service client: speech generation,
// base voice listing and health checks.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/book-expert/regen-service/internal/core"
	"github.com/book-expert/regen-service/internal/media"
)

// API endpoints and paths.
const (
	apiSpeech = "/v1/audio/speech"
	apiVoices = "/v1/audio/voices"
	apiHealth = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
)

// Error messages.
const (
	errFmtSendRequest        = "%w: request to speech service at %s failed: %w"
	errFmtServiceNonOKStatus = "%w: speech service returned %s: %s"
	errFmtDecodeVoices       = "%w: failed to decode voice list: %w"
)

var (
	// ErrInputEmpty indicates an empty synthesis input.
	ErrInputEmpty = errors.New("speech input cannot be empty")
	// ErrVoiceEmpty indicates an empty voice identifier.
	ErrVoiceEmpty = errors.New("voice cannot be empty")
	// ErrEmptyAudio indicates the service answered 2xx without audio.
	ErrEmptyAudio = errors.New("received empty audio data")
)

// Client represents a client for the speech synthesis HTTP service.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Request defines the JSON payload for speech generation.
type Request struct {
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Stream         bool    `json:"stream"`
	Speed          float64 `json:"speed,omitempty"`
}

// VoicesResponse is the body of the voice-listing endpoint.
type VoicesResponse struct {
	Voices []string `json:"voices"`
}

// NewClient creates and configures a client for the speech service.
// The baseURL should include the protocol and port (e.g., "http://localhost:8880").
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Synthesize sends a non-streaming generation request and returns the raw audio.
func (c *Client) Synthesize(ctx context.Context, req core.SpeechRequest) ([]byte, error) {
	if req.Input == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, ErrInputEmpty)
	}

	if req.Voice == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, ErrVoiceEmpty)
	}

	format := req.ResponseFormat
	if format == "" {
		format = media.FormatMP3
	}

	requestBody, err := json.Marshal(Request{
		Input:          req.Input,
		Voice:          req.Voice,
		ResponseFormat: format,
		Stream:         false,
		Speed:          req.Speed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiSpeech, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, media.ContentType(format))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf(errFmtSendRequest, core.ErrServiceUnavailable, c.baseURL, err)
	}

	defer func() { _ = resp.Body.Close() }()

	if !isSuccess(resp.StatusCode) {
		return nil, parseErrorResponse(resp)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read audio data: %w", core.ErrServiceUnavailable, err)
	}

	if len(audioData) == 0 {
		return nil, fmt.Errorf("%w: %w", core.ErrServiceUnavailable, ErrEmptyAudio)
	}

	return audioData, nil
}

// ListVoices returns the base voice tags offered by the service.
func (c *Client) ListVoices(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiVoices, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create voices request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf(errFmtSendRequest, core.ErrServiceUnavailable, c.baseURL, err)
	}

	defer func() { _ = resp.Body.Close() }()

	if !isSuccess(resp.StatusCode) {
		return nil, parseErrorResponse(resp)
	}

	var voices VoicesResponse

	err = json.NewDecoder(resp.Body).Decode(&voices)
	if err != nil {
		return nil, fmt.Errorf(errFmtDecodeVoices, core.ErrServiceUnavailable, err)
	}

	return voices.Voices, nil
}

// HealthCheck verifies that the speech service is running.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf(errFmtSendRequest, core.ErrServiceUnavailable, c.baseURL, err)
	}

	defer func() { _ = resp.Body.Close() }()

	if !isSuccess(resp.StatusCode) {
		return fmt.Errorf("%w: health check failed with status: %s", core.ErrServiceUnavailable, resp.Status)
	}

	return nil
}

func isSuccess(statusCode int) bool {
	return statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices
}

// parseErrorResponse keeps the service's own error text in the returned error.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	return fmt.Errorf(errFmtServiceNonOKStatus, core.ErrServiceUnavailable, resp.Status, string(bytes.TrimSpace(body)))
}
