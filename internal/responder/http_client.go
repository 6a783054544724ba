// Package responder provides response engine adapters.
package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lexiqai/dialogue-gateway/internal/config"
	"github.com/lexiqai/dialogue-gateway/internal/convo"
	"github.com/lexiqai/dialogue-gateway/internal/resilience"
)

// HTTPClient implements engine.Responder against a remote conversation
// endpoint. The endpoint receives the finalized transcript plus the recent
// history and returns the reply text. The client is shared read-only across
// sessions.
type HTTPClient struct {
	apiURL         string
	httpClient     *http.Client
	retryConfig    *resilience.RetryConfig
	circuitBreaker *resilience.CircuitBreaker
}

type converseTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type converseRequest struct {
	Text    string         `json:"text"`
	History []converseTurn `json:"history,omitempty"`
}

type converseResponse struct {
	Response string `json:"response"`
}

// NewHTTPClient creates a remote responder client.
func NewHTTPClient(cfg *config.Config) *HTTPClient {
	return &HTTPClient{
		apiURL:     cfg.ResponderURL,
		httpClient: &http.Client{Timeout: time.Duration(cfg.ResponderTimeout) * time.Second},
		retryConfig: &resilience.RetryConfig{
			MaxAttempts:       cfg.RetryMaxAttempts,
			InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		},
		circuitBreaker: resilience.NewCircuitBreaker(
			"responder",
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
	}
}

// Reply posts the transcript and recent history and returns the generated
// reply text.
func (c *HTTPClient) Reply(ctx context.Context, userText string, history []convo.Turn) (string, error) {
	reqBody := converseRequest{Text: userText}
	for _, turn := range history {
		reqBody.History = append(reqBody.History, converseTurn{Role: turn.Role, Text: turn.Text})
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal responder request: %w", err)
	}

	var reply string
	err = c.circuitBreaker.Call(func() error {
		return resilience.Retry(func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
			if err != nil {
				return fmt.Errorf("failed to create request: %w", err)
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("failed to reach responder endpoint: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("responder endpoint returned %s", resp.Status)
			}

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("failed to read responder response: %w", err)
			}

			var decoded converseResponse
			if err := json.Unmarshal(body, &decoded); err != nil {
				return fmt.Errorf("failed to decode responder response: %w", err)
			}

			reply = decoded.Response
			return nil
		}, c.retryConfig, resilience.IsRetryableNetworkError)
	})

	if err != nil {
		return "", err
	}
	return reply, nil
}
