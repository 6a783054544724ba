package engine

import (
	"context"
	"io"
)

// BufferedStream yields a fully synthesized PCM buffer as fixed-size chunks.
// It adapts one-shot synthesis backends to the streaming AudioStream
// contract so playback can start and be cancelled chunk by chunk.
type BufferedStream struct {
	pcm        []byte
	sampleRate int
	chunkBytes int
	pos        int
}

// NewBufferedStream creates a stream over pcm at sampleRate, yielding chunks
// of chunkBytes. Non-positive chunkBytes defaults to 250ms of 16-bit mono
// audio at the given rate.
func NewBufferedStream(pcm []byte, sampleRate, chunkBytes int) *BufferedStream {
	if chunkBytes <= 0 {
		chunkBytes = sampleRate / 4 * 2
	}
	return &BufferedStream{
		pcm:        pcm,
		sampleRate: sampleRate,
		chunkBytes: chunkBytes,
	}
}

// Next returns the next chunk, observing ctx between chunks so a cancelled
// consumer stops the stream promptly.
func (s *BufferedStream) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.pcm) {
		return nil, io.EOF
	}

	end := s.pos + s.chunkBytes
	if end > len(s.pcm) {
		end = len(s.pcm)
	}
	chunk := s.pcm[s.pos:end]
	s.pos = end
	return chunk, nil
}

// SampleRate reports the PCM sample rate in Hz.
func (s *BufferedStream) SampleRate() int {
	return s.sampleRate
}

// Close discards the remaining buffer.
func (s *BufferedStream) Close() error {
	s.pos = len(s.pcm)
	return nil
}
