// Package engine defines the external collaborator interfaces the session
// core depends on: speech recognition, response generation, and speech
// synthesis. The underlying engine instances may be shared read-only across
// sessions; per-session mutable state (buffers, history, recognizer state)
// is never shared.
package engine

import (
	"context"

	"github.com/lexiqai/dialogue-gateway/internal/convo"
)

// Result is one incremental recognition update. Final marks the text as an
// authoritative finalized transcript; otherwise it is a revisable partial
// with no delivery guarantee.
type Result struct {
	Text  string
	Final bool
}

// Recognizer converts streamed audio into transcripts. Implementations are
// stateful and owned by a single session; use a factory to create one per
// connection.
type Recognizer interface {
	// Accept feeds one PCM chunk and returns any new recognition result,
	// or nil when the engine has nothing new to report.
	Accept(chunk []byte) (*Result, error)

	// Finalize forces end-of-utterance and returns the final transcript.
	// Batch engines transcribe the drained utterance audio; streaming
	// engines ignore it and flush their pending state.
	Finalize(utterance []byte) (string, error)

	// Reset prepares the recognizer for a fresh utterance.
	Reset() error

	// Close releases engine resources.
	Close() error
}

// Responder generates a reply for a finalized transcript given the recent
// conversation history. From the session's perspective it is a pure function
// of its inputs; it may be slow, so calls carry a context.
type Responder interface {
	Reply(ctx context.Context, userText string, history []convo.Turn) (string, error)
}

// AudioStream is a lazy, finite, non-restartable sequence of PCM chunks
// produced by one synthesis. Cancellation is cooperative: the consumer stops
// pulling and the producer observes ctx between chunks.
type AudioStream interface {
	// Next returns the next audio chunk, or io.EOF when the stream is
	// exhausted. It must return promptly once ctx is cancelled.
	Next(ctx context.Context) ([]byte, error)

	// SampleRate reports the sample rate of the produced PCM in Hz.
	SampleRate() int

	// Close releases any resources held by the stream.
	Close() error
}

// Synthesizer converts reply text into streamed audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (AudioStream, error)
}
