// Package stt provides the Speech-to-Text service client.
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/book-expert/regen-service/internal/core"
)

const apiTranscribe = "/transcribe"

// Error messages.
const (
	errFailedToCreateFormFile = "failed to create form file: %w"
	errFailedToCopyFileData   = "failed to copy file data: %w"
	errFailedToCloseWriter    = "failed to close multipart writer: %w"
	errFailedToCreateRequest  = "failed to create request: %w"
	errFmtMakeRequest         = "%w: transcription request to %s failed: %w"
	errFmtAPIRequestFailed    = "%w: transcription failed with status %d: %s"
	errFmtDecodeResponse      = "%w: failed to decode transcription response: %w"
)

// HTTP headers and form fields.
const (
	headerContentType = "Content-Type"
	formFieldFile     = "file"
)

// Client provides Speech-to-Text client functionality.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Response represents the response from the transcription endpoint.
type Response struct {
	Text string `json:"text"`
}

// NewClient creates a new Speech-to-Text client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Transcribe posts the audio payload as multipart form data and returns the transcript.
func (c *Client) Transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	var buf bytes.Buffer

	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile(formFieldFile, filename)
	if err != nil {
		return "", fmt.Errorf(errFailedToCreateFormFile, err)
	}

	_, err = io.Copy(part, bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf(errFailedToCopyFileData, err)
	}

	closeErr := writer.Close()
	if closeErr != nil {
		return "", fmt.Errorf(errFailedToCloseWriter, closeErr)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiTranscribe, &buf)
	if err != nil {
		return "", fmt.Errorf(errFailedToCreateRequest, err)
	}

	req.Header.Set(headerContentType, writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf(errFmtMakeRequest, core.ErrServiceUnavailable, c.baseURL, err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)

		return "", fmt.Errorf(errFmtAPIRequestFailed, core.ErrServiceUnavailable, resp.StatusCode, string(body))
	}

	var transcription Response

	err = json.NewDecoder(resp.Body).Decode(&transcription)
	if err != nil {
		return "", fmt.Errorf(errFmtDecodeResponse, core.ErrServiceUnavailable, err)
	}

	return transcription.Text, nil
}
