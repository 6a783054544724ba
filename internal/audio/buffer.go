package audio

import (
	"sync"
)

// UtteranceBuffer accumulates raw PCM chunks for the current utterance.
// Chunks are append-only and kept in exact arrival order; Drain returns
// their concatenation and atomically clears the buffer. Appending is cheap
// (a slice append), so audio ingestion never waits on sample conversion.
type UtteranceBuffer struct {
	mu     sync.Mutex
	chunks [][]byte
	bytes  int
}

// NewUtteranceBuffer creates an empty utterance buffer.
func NewUtteranceBuffer() *UtteranceBuffer {
	return &UtteranceBuffer{}
}

// Append adds a PCM chunk to the buffer. Empty chunks are a no-op. The
// buffer takes ownership of the slice; callers must not mutate it afterward.
func (b *UtteranceBuffer) Append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}

	b.mu.Lock()
	b.chunks = append(b.chunks, chunk)
	b.bytes += len(chunk)
	b.mu.Unlock()
}

// Drain returns all buffered samples merged in arrival order and clears the
// buffer in the same critical section.
func (b *UtteranceBuffer) Drain() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	merged := make([]byte, 0, b.bytes)
	for _, chunk := range b.chunks {
		merged = append(merged, chunk...)
	}

	b.chunks = nil
	b.bytes = 0
	return merged
}

// Reset discards any buffered audio.
func (b *UtteranceBuffer) Reset() {
	b.mu.Lock()
	b.chunks = nil
	b.bytes = 0
	b.mu.Unlock()
}

// Len returns the number of buffered bytes.
func (b *UtteranceBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bytes
}

// IsEmpty reports whether no audio has been buffered since the last drain
// or reset.
func (b *UtteranceBuffer) IsEmpty() bool {
	return b.Len() == 0
}
