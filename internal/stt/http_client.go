// Package stt provides recognition engine adapters.
package stt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/lexiqai/dialogue-gateway/internal/config"
	"github.com/lexiqai/dialogue-gateway/internal/engine"
	"github.com/lexiqai/dialogue-gateway/internal/resilience"
)

// HTTPClient implements engine.Recognizer against a batch recognition
// endpoint: the whole drained utterance is posted at finalize time and the
// transcription comes back as JSON. Accept never yields incremental results.
type HTTPClient struct {
	apiURL      string
	sampleRate  int
	httpClient  *http.Client
	retryConfig *resilience.RetryConfig
}

type recognizeResponse struct {
	Transcription string `json:"transcription"`
}

// NewHTTPClient creates a batch recognition client.
func NewHTTPClient(cfg *config.Config) *HTTPClient {
	return &HTTPClient{
		apiURL:     cfg.STTURL,
		sampleRate: cfg.CaptureSampleRate,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		retryConfig: &resilience.RetryConfig{
			MaxAttempts:       cfg.RetryMaxAttempts,
			InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		},
	}
}

// Accept buffers nothing and reports nothing: a batch engine has no
// incremental results, so the session's utterance buffer holds the audio
// until finalize.
func (c *HTTPClient) Accept(_ []byte) (*engine.Result, error) {
	return nil, nil
}

// Finalize posts the drained utterance and returns the transcription. An
// empty utterance short-circuits to an empty transcript without a network
// round trip.
func (c *HTTPClient) Finalize(utterance []byte) (string, error) {
	if len(utterance) == 0 {
		return "", nil
	}

	var transcript string
	err := resilience.Retry(func() error {
		req, err := http.NewRequest(http.MethodPost, c.apiURL, bytes.NewReader(utterance))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		req.Header.Set("X-Sample-Rate", strconv.Itoa(c.sampleRate))

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to reach recognition endpoint: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			// Include the status text so a 503 Service Unavailable
			// registers as retryable.
			return fmt.Errorf("recognition endpoint returned %s", resp.Status)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read recognition response: %w", err)
		}

		var decoded recognizeResponse
		if err := json.Unmarshal(body, &decoded); err != nil {
			return fmt.Errorf("failed to decode recognition response: %w", err)
		}

		transcript = decoded.Transcription
		return nil
	}, c.retryConfig, resilience.IsRetryableNetworkError)

	if err != nil {
		return "", err
	}
	return transcript, nil
}

// Reset is a no-op: the client keeps no per-utterance state.
func (c *HTTPClient) Reset() error {
	return nil
}

// Close is a no-op.
func (c *HTTPClient) Close() error {
	return nil
}
