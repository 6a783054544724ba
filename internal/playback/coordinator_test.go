package playback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// recordingSink captures every outbound frame in write order.
type recordingSink struct {
	mu     sync.Mutex
	frames []sinkFrame
}

type sinkFrame struct {
	binary  bool
	payload []byte
}

func (s *recordingSink) WriteText(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, sinkFrame{payload: append([]byte(nil), payload...)})
	return nil
}

func (s *recordingSink) WriteBinary(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, sinkFrame{binary: true, payload: append([]byte(nil), chunk...)})
	return nil
}

func (s *recordingSink) snapshot() []sinkFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sinkFrame(nil), s.frames...)
}

// fakeStream yields its scripted chunks, then either blocks until cancelled,
// fails, or ends normally.
type fakeStream struct {
	chunks     [][]byte
	idx        int
	blockAfter bool
	failWith   error
	sampleRate int

	mu     sync.Mutex
	closed bool
}

func (s *fakeStream) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.idx < len(s.chunks) {
		chunk := s.chunks[s.idx]
		s.idx++
		return chunk, nil
	}
	if s.blockAfter {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.failWith != nil {
		return nil, s.failWith
	}
	return nil, io.EOF
}

func (s *fakeStream) SampleRate() int {
	if s.sampleRate == 0 {
		return 16000
	}
	return s.sampleRate
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func newTestCoordinator(sink Sink) *Coordinator {
	return NewCoordinator(sink, zerolog.Nop(), nil)
}

func waitInactive(t *testing.T, c *Coordinator) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for c.Active() {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for synthesis task to finish")
		}
		time.Sleep(time.Millisecond)
	}
}

func eventType(t *testing.T, payload []byte) string {
	t.Helper()
	var decoded struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("Failed to decode outbound event %s: %v", payload, err)
	}
	return decoded.Type
}

func TestCoordinator_StreamsChunksThenEndMarker(t *testing.T) {
	sink := &recordingSink{}
	c := newTestCoordinator(sink)

	stream := &fakeStream{chunks: [][]byte{{1, 1}, {2, 2}, {3, 3}}}
	if err := c.Start(context.Background(), stream); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	waitInactive(t, c)

	frames := sink.snapshot()
	if len(frames) != 4 {
		t.Fatalf("Expected 3 audio frames + end marker, got %d frames", len(frames))
	}
	for i := 0; i < 3; i++ {
		if !frames[i].binary {
			t.Errorf("Frame %d: expected binary audio frame", i)
		}
		if !bytes.Equal(frames[i].payload, stream.chunks[i]) {
			t.Errorf("Frame %d: chunk out of order: got %v", i, frames[i].payload)
		}
	}
	if frames[3].binary {
		t.Fatal("Expected final frame to be a text event")
	}
	if got := eventType(t, frames[3].payload); got != "assistant_audio_end" {
		t.Errorf("Expected assistant_audio_end after last chunk, got %q", got)
	}
	if !stream.isClosed() {
		t.Error("Expected stream to be closed after completion")
	}
}

func TestCoordinator_RejectsSecondTask(t *testing.T) {
	sink := &recordingSink{}
	c := newTestCoordinator(sink)

	blocking := &fakeStream{blockAfter: true}
	if err := c.Start(context.Background(), blocking); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer c.CancelAndWait()

	if err := c.Start(context.Background(), &fakeStream{}); err == nil {
		t.Error("Expected second Start() to fail while a task is active")
	}
	if !c.Active() {
		t.Error("Expected first task to remain active")
	}
}

func TestCoordinator_CancelAndWaitStopsProduction(t *testing.T) {
	sink := &recordingSink{}
	c := newTestCoordinator(sink)

	stream := &fakeStream{chunks: [][]byte{{1}, {2}}, blockAfter: true}
	if err := c.Start(context.Background(), stream); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	if !c.CancelAndWait() {
		t.Fatal("Expected CancelAndWait() to report a cancelled task")
	}
	if c.Active() {
		t.Error("Expected no active task after cancellation")
	}
	if !stream.isClosed() {
		t.Error("Expected stream to be closed after cancellation")
	}

	// No frame may land after CancelAndWait returns, and a cancelled task
	// must not emit the end marker (the session sends clear_audio_queue).
	frames := sink.snapshot()
	time.Sleep(20 * time.Millisecond)
	if after := sink.snapshot(); len(after) != len(frames) {
		t.Errorf("Frames written after CancelAndWait returned: %d -> %d", len(frames), len(after))
	}
	for _, f := range frames {
		if !f.binary && eventType(t, f.payload) == "assistant_audio_end" {
			t.Error("Cancelled task must not send assistant_audio_end")
		}
	}
}

func TestCoordinator_CancelAndWaitWithoutTask(t *testing.T) {
	c := newTestCoordinator(&recordingSink{})
	if c.CancelAndWait() {
		t.Error("Expected CancelAndWait() to report false with no active task")
	}
}

func TestCoordinator_StartAfterCancel(t *testing.T) {
	sink := &recordingSink{}
	c := newTestCoordinator(sink)

	if err := c.Start(context.Background(), &fakeStream{blockAfter: true}); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	c.CancelAndWait()

	if err := c.Start(context.Background(), &fakeStream{chunks: [][]byte{{9}}}); err != nil {
		t.Fatalf("Start() after cancel failed: %v", err)
	}
	waitInactive(t, c)
}

func TestCoordinator_StreamErrorStillEndsPlayback(t *testing.T) {
	sink := &recordingSink{}
	c := newTestCoordinator(sink)

	stream := &fakeStream{chunks: [][]byte{{1}}, failWith: errors.New("engine went away")}
	if err := c.Start(context.Background(), stream); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	waitInactive(t, c)

	frames := sink.snapshot()
	if len(frames) == 0 {
		t.Fatal("Expected frames to be written")
	}
	last := frames[len(frames)-1]
	if last.binary {
		t.Fatal("Expected final frame to be a text event")
	}
	if got := eventType(t, last.payload); got != "assistant_audio_end" {
		t.Errorf("Expected assistant_audio_end after stream error, got %q", got)
	}
}

func TestCoordinator_SkipsEmptyChunks(t *testing.T) {
	sink := &recordingSink{}
	c := newTestCoordinator(sink)

	stream := &fakeStream{chunks: [][]byte{{1}, {}, {2}}}
	if err := c.Start(context.Background(), stream); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	waitInactive(t, c)

	binary := 0
	for _, f := range sink.snapshot() {
		if f.binary {
			binary++
		}
	}
	if binary != 2 {
		t.Errorf("Expected 2 audio frames, got %d", binary)
	}
}

func TestCoordinator_SendEvent(t *testing.T) {
	sink := &recordingSink{}
	c := newTestCoordinator(sink)

	if err := c.SendEvent(map[string]string{"type": "pong"}); err != nil {
		t.Fatalf("SendEvent() failed: %v", err)
	}

	frames := sink.snapshot()
	if len(frames) != 1 || frames[0].binary {
		t.Fatalf("Expected one text frame, got %+v", frames)
	}
	if got := eventType(t, frames[0].payload); got != "pong" {
		t.Errorf("Expected pong event, got %q", got)
	}
}
