// Package session implements the per-connection state machine that drives
// the recognition, response, and synthesis pipeline.
package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lexiqai/dialogue-gateway/internal/audio"
	"github.com/lexiqai/dialogue-gateway/internal/convo"
	"github.com/lexiqai/dialogue-gateway/internal/engine"
	"github.com/lexiqai/dialogue-gateway/internal/observability"
	"github.com/lexiqai/dialogue-gateway/internal/playback"
	"github.com/lexiqai/dialogue-gateway/internal/protocol"
)

// Phase is the session's position in the utterance lifecycle.
type Phase int

const (
	// PhaseIdle means no utterance is in progress.
	PhaseIdle Phase = iota

	// PhaseListening means audio for the current utterance is accumulating.
	PhaseListening

	// PhaseResponding means a reply is being generated or its audio is
	// streaming to the client.
	PhaseResponding
)

// String returns a readable phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseListening:
		return "listening"
	case PhaseResponding:
		return "responding"
	default:
		return "unknown"
	}
}

// Session is the per-connection orchestrator. It is exclusively owned by the
// connection's read goroutine: all Handle* methods are invoked from that
// single flow of control, so the buffer, history, and phase need no locking.
// Synthesis runs concurrently under the playback coordinator, which has its
// own synchronization.
type Session struct {
	id      string
	logger  zerolog.Logger
	metrics *observability.SessionMetrics

	phase   Phase
	buffer  *audio.UtteranceBuffer
	history *convo.History

	recognizer  engine.Recognizer
	responder   engine.Responder
	synthesizer engine.Synthesizer
	out         *playback.Coordinator
}

// Options carries the injected collaborators for a session. Responder and
// Synthesizer may be shared across sessions; the Recognizer is stateful and
// must be exclusive to this session.
type Options struct {
	Recognizer  engine.Recognizer
	Responder   engine.Responder
	Synthesizer engine.Synthesizer
	Out         *playback.Coordinator
	Metrics     *observability.SessionMetrics
	Logger      zerolog.Logger

	// HistoryMaxTurns bounds the conversation history; zero means the
	// default bound.
	HistoryMaxTurns int
}

// New creates a session in the idle phase.
func New(opts Options) *Session {
	id := uuid.New().String()
	return &Session{
		id:          id,
		logger:      opts.Logger.With().Str("session_id", id).Logger(),
		metrics:     opts.Metrics,
		phase:       PhaseIdle,
		buffer:      audio.NewUtteranceBuffer(),
		history:     convo.NewHistory(opts.HistoryMaxTurns),
		recognizer:  opts.Recognizer,
		responder:   opts.Responder,
		synthesizer: opts.Synthesizer,
		out:         opts.Out,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Phase reports the current phase. Responding is derived from the playback
// coordinator's active task, so it flips back to the stored phase the moment
// the reply's audio finishes streaming.
func (s *Session) Phase() Phase {
	if s.out.Active() {
		return PhaseResponding
	}
	return s.phase
}

// History exposes the conversation history (for tests and diagnostics).
func (s *Session) History() *convo.History {
	return s.history
}

// HandleAudio ingests one binary PCM frame. Audio is buffered in every phase
// so speech during playback becomes the start of the next utterance; only a
// finalized transcript (or explicit stop) preempts an in-flight reply.
func (s *Session) HandleAudio(ctx context.Context, chunk []byte) {
	if len(chunk) == 0 {
		return
	}

	if s.phase == PhaseIdle {
		// Implicit utterance start on first audio.
		s.startUtterance()
	}

	s.buffer.Append(chunk)
	if s.metrics != nil {
		s.metrics.RecordAudioBytes("in", int64(len(chunk)))
	}

	if s.logger.GetLevel() <= zerolog.DebugLevel {
		if samples, err := audio.BytesToInt16(chunk); err == nil {
			s.logger.Debug().
				Int("bytes", len(chunk)).
				Float64("rms", audio.CalculateRMS(samples)).
				Msg("Audio chunk buffered")
		}
	}

	result, err := s.recognizer.Accept(chunk)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Recognizer rejected audio chunk")
		if s.metrics != nil {
			s.metrics.RecordError("stt_accept_error", "session")
		}
		return
	}
	if result == nil {
		return
	}

	if !result.Final {
		// Best-effort partial: forwarded immediately, may be superseded,
		// delivery failures are not an error.
		if result.Text != "" {
			if err := s.out.SendEvent(protocol.PartialTranscript(result.Text)); err != nil {
				s.logger.Debug().Err(err).Msg("Dropped partial transcript")
			}
		}
		return
	}

	// Finalized from streaming recognition: the buffered utterance is
	// consumed, authoritative text is the recognizer's.
	s.buffer.Reset()
	s.respond(ctx, result.Text)
}

// HandleControl processes one parsed control message.
func (s *Session) HandleControl(ctx context.Context, msg protocol.Control) {
	switch msg.Kind {
	case protocol.KindStart:
		s.startUtterance()

	case protocol.KindStop:
		s.finalizeUtterance(ctx)

	case protocol.KindReset:
		s.reset()

	case protocol.KindPing:
		if err := s.out.SendEvent(protocol.Pong()); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to answer ping")
		}

	default:
		// Unknown control types are ignored with a warning; the session
		// continues.
		s.logger.Warn().Str("type", msg.RawType).Msg("Unknown control message")
	}
}

// startUtterance clears the audio buffer and enters the listening phase.
func (s *Session) startUtterance() {
	s.buffer.Reset()
	if err := s.recognizer.Reset(); err != nil {
		s.logger.Warn().Err(err).Msg("Recognizer reset failed")
	}
	s.phase = PhaseListening
	s.logger.Debug().Msg("Utterance started")
}

// finalizeUtterance forces a drain-and-finalize of the current buffer, as
// when the recognition engine is non-streaming or end-of-speech is asserted
// explicitly.
func (s *Session) finalizeUtterance(ctx context.Context) {
	utterance := s.buffer.Drain()

	if s.metrics != nil {
		s.metrics.RecordStageStart(observability.StageRecognition)
	}
	text, err := s.recognizer.Finalize(utterance)
	if s.metrics != nil {
		s.metrics.RecordStageEnd(observability.StageRecognition, err == nil)
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Recognition failed")
		if s.metrics != nil {
			s.metrics.RecordError("stt_finalize_error", "session")
		}
		s.failTurn(observability.StageRecognition)
		return
	}

	s.respond(ctx, text)
}

// respond runs the response half of the pipeline for a finalized transcript:
// barge-in cancellation, transcript forwarding, reply generation, history
// update, and synthesis start. Outbound messages for the turn are emitted in
// fixed order: transcript, reply text, audio chunks, end marker.
func (s *Session) respond(ctx context.Context, transcript string) {
	// Barge-in first: no message belonging to this turn may be emitted
	// while a stale synthesis could still be writing.
	s.bargeIn()

	if err := s.out.SendEvent(protocol.FinalTranscript(transcript)); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to send final transcript")
	}

	trimmed := strings.TrimSpace(transcript)
	if trimmed == "" {
		// Silence misclassified as speech end: no reply, no turns.
		s.logger.Debug().Msg("Empty transcript, returning to listening")
		s.startUtterance()
		return
	}

	s.logger.Info().Str("transcript", trimmed).Msg("Finalized transcript")

	if s.metrics != nil {
		s.metrics.RecordStageStart(observability.StageResponse)
	}
	reply, err := s.responder.Reply(ctx, trimmed, s.history.Recent())
	if s.metrics != nil {
		s.metrics.RecordStageEnd(observability.StageResponse, err == nil)
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Response generation failed")
		if s.metrics != nil {
			s.metrics.RecordError("responder_error", "session")
		}
		s.failTurn(observability.StageResponse)
		return
	}

	s.history.Add(convo.RoleUser, trimmed)
	s.history.Add(convo.RoleAssistant, reply)
	if s.metrics != nil {
		s.metrics.RecordTurn()
	}

	stream, err := s.synthesizer.Synthesize(ctx, reply)
	if err != nil {
		s.logger.Error().Err(err).Msg("Synthesis failed")
		if s.metrics != nil {
			s.metrics.RecordError("synthesis_error", "session")
		}
		// The reply text is still worth forwarding even when it cannot
		// be spoken.
		if sendErr := s.out.SendEvent(protocol.AssistantText(reply, 0)); sendErr != nil {
			s.logger.Warn().Err(sendErr).Msg("Failed to send assistant text")
		}
		s.failTurn(observability.StageSynthesis)
		return
	}

	if err := s.out.SendEvent(protocol.AssistantText(reply, stream.SampleRate())); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to send assistant text")
	}

	if err := s.out.Start(ctx, stream); err != nil {
		// Invariant violation: respond always cancels first, so a second
		// active task here means a bug, not a recoverable turn.
		s.logger.Error().Err(err).Msg("Playback coordinator rejected synthesis task")
		stream.Close()
		s.failTurn(observability.StageSynthesis)
		return
	}

	s.logger.Info().Str("reply", reply).Msg("Reply streaming")

	// Ready to accumulate the next utterance while the reply plays out;
	// Phase() reports responding until the task completes.
	s.buffer.Reset()
	if err := s.recognizer.Reset(); err != nil {
		s.logger.Warn().Err(err).Msg("Recognizer reset failed")
	}
	s.phase = PhaseListening
}

// bargeIn cancels any in-flight synthesis and tells the client to discard
// queued playback audio. It returns only after the cancelled task has fully
// stopped producing.
func (s *Session) bargeIn() {
	if !s.out.CancelAndWait() {
		return
	}

	s.logger.Info().Msg("Barge-in: cancelled active synthesis")
	if s.metrics != nil {
		s.metrics.RecordBargeIn()
	}
	if err := s.out.SendEvent(protocol.ClearAudioQueue()); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to send clear_audio_queue")
	}
}

// failTurn reports a failed pipeline stage to the client and returns the
// session to listening. Single-turn failures are never connection-fatal.
func (s *Session) failTurn(stage string) {
	if err := s.out.SendEvent(protocol.StageError(stage)); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to send error event")
	}
	s.startUtterance()
}

// reset clears all session state: any active synthesis is cancelled, the
// buffer and history are cleared, and the session returns to idle.
func (s *Session) reset() {
	s.bargeIn()

	s.buffer.Reset()
	s.history.Reset()
	if err := s.recognizer.Reset(); err != nil {
		s.logger.Warn().Err(err).Msg("Recognizer reset failed")
	}
	s.phase = PhaseIdle

	if err := s.out.SendEvent(protocol.SessionReset()); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to acknowledge reset")
	}
	s.logger.Info().Msg("Session reset")
}

// Close releases all session resources. It runs on every session end path:
// normal close, transport error, or protocol violation.
func (s *Session) Close() error {
	s.out.CancelAndWait()
	s.buffer.Reset()
	s.history.Reset()

	var err error
	if s.recognizer != nil {
		if closeErr := s.recognizer.Close(); closeErr != nil {
			err = fmt.Errorf("failed to close recognizer: %w", closeErr)
		}
	}

	if s.metrics != nil {
		s.metrics.RecordSessionEnd()
	}
	s.logger.Info().Msg("Session closed")
	return err
}
