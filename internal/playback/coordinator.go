// Package playback owns the single in-flight synthesis task per session and
// serializes all outbound writes for a connection.
package playback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lexiqai/dialogue-gateway/internal/engine"
	"github.com/lexiqai/dialogue-gateway/internal/observability"
	"github.com/lexiqai/dialogue-gateway/internal/protocol"
)

// Sink is the transport write surface the coordinator delivers to. The
// coordinator is the only writer; implementations need no locking of their
// own.
type Sink interface {
	// WriteText sends one outbound text frame.
	WriteText(payload []byte) error

	// WriteBinary sends one outbound binary (audio) frame.
	WriteBinary(chunk []byte) error
}

// task is one running synthesis. It holds no back-reference to the session;
// cancellation is signaled through its context and completion through done.
type task struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Coordinator guarantees that at most one synthesis task is active per
// session and that its audio chunks reach the transport in order, never
// interleaved with other outbound messages.
type Coordinator struct {
	sink    Sink
	logger  zerolog.Logger
	metrics *observability.SessionMetrics

	// writeMu is the single-writer guard: every outbound frame for the
	// connection, event or audio, is written while holding it.
	writeMu sync.Mutex

	// taskMu guards the active task slot.
	taskMu sync.Mutex
	active *task
}

// NewCoordinator creates a coordinator writing to sink.
func NewCoordinator(sink Sink, logger zerolog.Logger, metrics *observability.SessionMetrics) *Coordinator {
	return &Coordinator{
		sink:    sink,
		logger:  logger,
		metrics: metrics,
	}
}

// SendEvent marshals v and writes it as a text frame under the single-writer
// guard.
func (c *Coordinator) SendEvent(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal outbound event: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.sink.WriteText(payload)
}

func (c *Coordinator) writeAudio(chunk []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.sink.WriteBinary(chunk)
}

// Active reports whether a synthesis task is currently running.
func (c *Coordinator) Active() bool {
	c.taskMu.Lock()
	defer c.taskMu.Unlock()
	return c.active != nil
}

// Start launches the synthesis task streaming chunks from stream to the
// client. It fails if a task is already active; the session must cancel
// first.
func (c *Coordinator) Start(ctx context.Context, stream engine.AudioStream) error {
	c.taskMu.Lock()
	defer c.taskMu.Unlock()

	if c.active != nil {
		return errors.New("synthesis task already active")
	}

	taskCtx, cancel := context.WithCancel(ctx)
	t := &task{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.active = t

	if c.metrics != nil {
		c.metrics.RecordStageStart(observability.StageSynthesis)
	}

	go c.run(taskCtx, stream, t)
	return nil
}

// run pulls chunks from the stream until it is exhausted, fails, or the task
// is cancelled. It always clears the active slot and closes done last, so
// CancelAndWait callers never return while a write may still be in flight.
func (c *Coordinator) run(ctx context.Context, stream engine.AudioStream, t *task) {
	defer func() {
		stream.Close()
		c.taskMu.Lock()
		if c.active == t {
			c.active = nil
		}
		c.taskMu.Unlock()
		close(t.done)
	}()

	for {
		chunk, err := stream.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				// Normal completion: mark end of the reply's audio.
				if sendErr := c.SendEvent(protocol.AssistantAudioEnd()); sendErr != nil {
					c.logger.Warn().Err(sendErr).Msg("Failed to send audio end marker")
				}
				if c.metrics != nil {
					c.metrics.RecordStageEnd(observability.StageSynthesis, true)
				}
			case errors.Is(err, context.Canceled):
				// Cancelled by barge-in or reset; the session sends
				// clear_audio_queue, so no end marker here.
				c.logger.Debug().Msg("Synthesis task cancelled")
				if c.metrics != nil {
					c.metrics.RecordStageEnd(observability.StageSynthesis, true)
				}
			default:
				// Engine failure mid-stream: not connection-fatal. Terminate
				// the client's playback state and keep the session running.
				c.logger.Error().Err(err).Msg("Synthesis stream failed")
				if c.metrics != nil {
					c.metrics.RecordStageEnd(observability.StageSynthesis, false)
					c.metrics.RecordError("synthesis_stream_error", "playback")
				}
				if sendErr := c.SendEvent(protocol.AssistantAudioEnd()); sendErr != nil {
					c.logger.Warn().Err(sendErr).Msg("Failed to send audio end marker")
				}
				t.err = err
			}
			return
		}

		if len(chunk) == 0 {
			continue
		}

		if err := c.writeAudio(chunk); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to write audio chunk")
			t.err = err
			return
		}
		if c.metrics != nil {
			c.metrics.RecordAudioBytes("out", int64(len(chunk)))
		}
	}
}

// CancelAndWait requests cancellation of the active task, blocks until it
// has fully stopped producing (including any in-flight chunk write), and
// reports whether a task was actually cancelled. A task that finished on its
// own just before cancellation is still awaited; that is a defined terminal
// state, not an error.
func (c *Coordinator) CancelAndWait() bool {
	c.taskMu.Lock()
	t := c.active
	c.taskMu.Unlock()

	if t == nil {
		return false
	}

	t.cancel()
	<-t.done
	return true
}
