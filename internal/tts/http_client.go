// Package tts provides synthesis engine adapters.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lexiqai/dialogue-gateway/internal/audio"
	"github.com/lexiqai/dialogue-gateway/internal/config"
	"github.com/lexiqai/dialogue-gateway/internal/engine"
)

// HTTPClient implements engine.Synthesizer against a remote synthesis
// endpoint that returns the full reply waveform as 16-bit little-endian PCM.
// The waveform is resampled to the configured output rate and yielded as
// 250ms chunks, so playback can be cancelled mid-reply.
type HTTPClient struct {
	apiURL     string
	voice      string
	engineRate int
	outputRate int
	httpClient *http.Client
}

type synthesizeRequest struct {
	Text         string `json:"text"`
	Voice        string `json:"voice,omitempty"`
	OutputFormat string `json:"output_format,omitempty"`
	SampleRate   int    `json:"sample_rate,omitempty"`
}

// NewHTTPClient creates a synthesis client.
func NewHTTPClient(cfg *config.Config) *HTTPClient {
	return &HTTPClient{
		apiURL:     cfg.TTSURL,
		voice:      cfg.TTSVoice,
		engineRate: cfg.TTSSampleRate,
		outputRate: cfg.OutputSampleRate,
		httpClient: &http.Client{Timeout: time.Duration(cfg.TTSTimeout) * time.Second},
	}
}

// Synthesize fetches the reply waveform and returns a cancelable chunked
// stream over it.
func (c *HTTPClient) Synthesize(ctx context.Context, text string) (engine.AudioStream, error) {
	reqBody := synthesizeRequest{
		Text:         text,
		Voice:        c.voice,
		OutputFormat: "pcm_s16le",
		SampleRate:   c.engineRate,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach synthesis endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("synthesis endpoint returned status %d", resp.StatusCode)
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read synthesis response: %w", err)
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("synthesis endpoint returned empty audio")
	}

	if c.engineRate != c.outputRate {
		pcm, err = audio.ResamplePCM(pcm, c.engineRate, c.outputRate)
		if err != nil {
			return nil, fmt.Errorf("failed to resample synthesis output: %w", err)
		}
	}

	return engine.NewBufferedStream(pcm, c.outputRate, 0), nil
}
