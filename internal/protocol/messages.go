package protocol

import (
	"encoding/json"
	"fmt"
)

// ControlKind identifies an inbound control message. The set is closed:
// anything the client sends that does not match a known type parses into
// KindUnknown and is handled (logged and ignored) by the session.
type ControlKind int

const (
	KindUnknown ControlKind = iota
	KindStart
	KindStop
	KindReset
	KindPing
)

// String returns the wire name of the control kind.
func (k ControlKind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindStop:
		return "stop"
	case KindReset:
		return "reset"
	case KindPing:
		return "ping"
	default:
		return "unknown"
	}
}

// Control is a parsed inbound control message. RawType preserves the
// original type tag so unrecognized messages can be logged verbatim.
type Control struct {
	Kind    ControlKind
	RawType string
}

// ParseControl decodes a text frame into a Control. Malformed JSON is a
// protocol error; an unknown type tag is not (it maps to KindUnknown).
func ParseControl(data []byte) (Control, error) {
	var raw struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Control{}, fmt.Errorf("malformed control message: %w", err)
	}

	kind := KindUnknown
	switch raw.Type {
	case "start":
		kind = KindStart
	case "stop":
		kind = KindStop
	case "reset":
		kind = KindReset
	case "ping":
		kind = KindPing
	}

	return Control{Kind: kind, RawType: raw.Type}, nil
}

// TranscriptEvent carries a recognition result to the client. Text is always
// present, even when empty (an explicit stop with no speech still reports an
// empty final transcript).
type TranscriptEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// AssistantTextEvent carries the generated reply text and the sample rate of
// the audio that will follow it.
type AssistantTextEvent struct {
	Type       string `json:"type"`
	Text       string `json:"text"`
	SampleRate int    `json:"sample_rate"`
}

// MarkerEvent is an outbound message that carries no payload beyond its type.
type MarkerEvent struct {
	Type string `json:"type"`
}

// ErrorEvent reports a failed pipeline stage for the current turn. It is
// informational; the session keeps running.
type ErrorEvent struct {
	Type  string `json:"type"`
	Stage string `json:"stage"`
}

// PartialTranscript builds a best-effort incremental recognition event.
func PartialTranscript(text string) TranscriptEvent {
	return TranscriptEvent{Type: "partial_transcript", Text: text}
}

// FinalTranscript builds the authoritative recognition event for an utterance.
func FinalTranscript(text string) TranscriptEvent {
	return TranscriptEvent{Type: "final_transcript", Text: text}
}

// AssistantText builds the reply-text event.
func AssistantText(text string, sampleRate int) AssistantTextEvent {
	return AssistantTextEvent{Type: "assistant_text", Text: text, SampleRate: sampleRate}
}

// AssistantAudioEnd marks the end of the current reply's audio.
func AssistantAudioEnd() MarkerEvent {
	return MarkerEvent{Type: "assistant_audio_end"}
}

// ClearAudioQueue instructs the client to discard buffered playback audio.
func ClearAudioQueue() MarkerEvent {
	return MarkerEvent{Type: "clear_audio_queue"}
}

// SessionReset acknowledges a reset control message.
func SessionReset() MarkerEvent {
	return MarkerEvent{Type: "session_reset"}
}

// Pong answers a ping control message.
func Pong() MarkerEvent {
	return MarkerEvent{Type: "pong"}
}

// StageError builds an error event for a failed pipeline stage.
func StageError(stage string) ErrorEvent {
	return ErrorEvent{Type: "error", Stage: stage}
}
