package stt

import (
	"context"
	"fmt"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/dialogue-gateway/internal/config"
	"github.com/lexiqai/dialogue-gateway/internal/engine"
	"github.com/lexiqai/dialogue-gateway/internal/observability"
	"github.com/lexiqai/dialogue-gateway/internal/resilience"
)

// finalizeWait bounds how long Finalize waits for the engine to flush a
// pending final transcript after the stream is finished.
const finalizeWait = 2 * time.Second

// messageCallbackHandler implements the LiveMessageCallback interface. It
// embeds the default handler and overrides only the methods we customize.
type messageCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	handler      func(*msginterfaces.MessageResponse)
	errorHandler func(*msginterfaces.ErrorResponse) error
}

func (m *messageCallbackHandler) Message(message *msginterfaces.MessageResponse) error {
	m.handler(message)
	return nil
}

func (m *messageCallbackHandler) Error(errorResponse *msginterfaces.ErrorResponse) error {
	if m.errorHandler != nil {
		return m.errorHandler(errorResponse)
	}
	return m.DefaultCallbackHandler.Error(errorResponse)
}

// DeepgramClient implements engine.Recognizer on top of Deepgram's streaming
// API. One client serves one session: audio chunks are written to the live
// stream and incremental results are drained on each Accept call.
type DeepgramClient struct {
	cfg    *config.Config
	logger zerolog.Logger

	mu       sync.RWMutex
	client   *listenClient.WSCallback
	isActive bool

	results chan *engine.Result
	ctx     context.Context
	cancel  context.CancelFunc

	circuitBreaker *resilience.CircuitBreaker
}

// NewDeepgramClient creates and starts a Deepgram streaming recognizer.
func NewDeepgramClient(cfg *config.Config, logger zerolog.Logger) (*DeepgramClient, error) {
	ctx, cancel := context.WithCancel(context.Background())

	d := &DeepgramClient{
		cfg:     cfg,
		logger:  logger.With().Str("component", "deepgram").Logger(),
		results: make(chan *engine.Result, 100),
		ctx:     ctx,
		cancel:  cancel,
		circuitBreaker: resilience.NewCircuitBreaker(
			"deepgram",
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
	}

	if err := d.start(); err != nil {
		cancel()
		return nil, err
	}
	return d, nil
}

// start opens the live transcription stream.
func (d *DeepgramClient) start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isActive {
		return nil
	}

	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.cfg.DeepgramModel,
		Language:       d.cfg.DeepgramLanguage,
		Punctuate:      true,
		InterimResults: true,
		UtteranceEndMs: "1000",
		VadEvents:      true,
		Encoding:       "linear16",
		Channels:       1,
		SampleRate:     d.cfg.CaptureSampleRate,
	}

	callback := &messageCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		handler:                d.handleMessage,
		errorHandler: func(errorResponse *msginterfaces.ErrorResponse) error {
			d.logger.Error().Interface("response", errorResponse).Msg("Deepgram stream error")

			d.circuitBreaker.RecordResult(false)
			observability.UpdateCircuitBreakerState("deepgram", int(d.circuitBreaker.GetState()))
			observability.IncrementCircuitBreakerFailures("deepgram")

			select {
			case <-d.ctx.Done():
			default:
				d.mu.Lock()
				d.isActive = false
				d.mu.Unlock()
				go d.attemptReconnect()
			}
			return nil
		},
	}

	client, err := listenClient.NewWSUsingCallback(
		d.ctx,
		d.cfg.DeepgramAPIKey,
		nil, // ClientOptions - nil uses defaults
		tOptions,
		callback,
	)
	if err != nil {
		return fmt.Errorf("failed to create Deepgram client: %w", err)
	}

	d.client = client
	d.isActive = true

	d.circuitBreaker.RecordResult(true)
	observability.UpdateCircuitBreakerState("deepgram", int(d.circuitBreaker.GetState()))

	d.logger.Info().
		Str("model", d.cfg.DeepgramModel).
		Str("language", d.cfg.DeepgramLanguage).
		Msg("Deepgram streaming client started")
	return nil
}

// handleMessage converts Deepgram transcription messages into recognizer
// results.
func (d *DeepgramClient) handleMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil {
		return
	}

	switch msg.Type {
	case "Results", "Message":
		if len(msg.Channel.Alternatives) == 0 {
			return
		}
		alt := msg.Channel.Alternatives[0]
		if alt.Transcript == "" && !msg.IsFinal {
			return
		}

		result := &engine.Result{Text: alt.Transcript, Final: msg.IsFinal}
		select {
		case d.results <- result:
		default:
			d.logger.Warn().Msg("Result channel full, dropping transcription")
		}

	case "Metadata", "SpeechStarted", "UtteranceEnd":
		d.logger.Debug().Str("type", msg.Type).Msg("Deepgram event")

	default:
		d.logger.Debug().Str("type", msg.Type).Msg("Unknown Deepgram message type")
	}
}

// Accept writes one audio chunk to the stream and returns the newest
// recognition update, if any. A final result takes precedence over any
// queued partials.
func (d *DeepgramClient) Accept(chunk []byte) (*engine.Result, error) {
	err := d.circuitBreaker.Call(func() error {
		d.mu.RLock()
		active := d.isActive
		client := d.client
		d.mu.RUnlock()

		if !active || client == nil {
			return fmt.Errorf("deepgram client is not active")
		}

		if _, writeErr := client.Write(chunk); writeErr != nil {
			go d.attemptReconnect()
			return fmt.Errorf("failed to send audio to Deepgram: %w", writeErr)
		}
		return nil
	})

	observability.UpdateCircuitBreakerState("deepgram", int(d.circuitBreaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures("deepgram")
		return nil, err
	}

	return d.poll(), nil
}

// poll drains queued results without blocking and returns the most relevant
// one: the first final encountered, else the latest partial.
func (d *DeepgramClient) poll() *engine.Result {
	var latest *engine.Result
	for {
		select {
		case result := <-d.results:
			if result.Final {
				return result
			}
			latest = result
		default:
			return latest
		}
	}
}

// Finalize finishes the live stream, waits briefly for the flushed final
// transcript, and reopens the stream for the next utterance. The drained
// utterance audio is ignored; the engine already consumed it chunk by chunk.
func (d *DeepgramClient) Finalize(_ []byte) (string, error) {
	d.mu.Lock()
	client := d.client
	active := d.isActive
	d.isActive = false
	d.mu.Unlock()

	if active && client != nil {
		client.Finish()
	}

	text := ""
	deadline := time.After(finalizeWait)
	for text == "" {
		select {
		case result := <-d.results:
			if result.Final {
				text = result.Text
			}
		case <-deadline:
			// No final arrived; treat as silence.
			if err := d.start(); err != nil {
				return text, err
			}
			return text, nil
		}
	}

	if err := d.start(); err != nil {
		return text, err
	}
	return text, nil
}

// Reset drains any stale results and ensures the stream is open.
func (d *DeepgramClient) Reset() error {
	for {
		select {
		case <-d.results:
		default:
			return d.start()
		}
	}
}

func (d *DeepgramClient) attemptReconnect() {
	select {
	case <-d.ctx.Done():
		return
	default:
	}

	d.mu.RLock()
	alreadyActive := d.isActive
	d.mu.RUnlock()
	if alreadyActive {
		return
	}

	err := resilience.Reconnect(d.ctx, d.start, &resilience.ReconnectConfig{
		MaxAttempts: d.cfg.ReconnectMaxAttempts,
		Backoff:     time.Duration(d.cfg.ReconnectBackoff) * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	})
	if err != nil {
		d.logger.Error().Err(err).Msg("Failed to reconnect Deepgram client")
	} else {
		d.logger.Info().Msg("Reconnected Deepgram client")
	}
}

// Close shuts the stream down and releases resources.
func (d *DeepgramClient) Close() error {
	d.cancel()

	d.mu.Lock()
	client := d.client
	active := d.isActive
	d.isActive = false
	d.client = nil
	d.mu.Unlock()

	if active && client != nil {
		client.Finish()
	}
	return nil
}
