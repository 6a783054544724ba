// Package convo maintains the bounded per-session conversation history used
// to build prompts for the response engine.
package convo

import (
	"time"
)

// Speaker roles for a Turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultMaxTurns bounds the history when no explicit limit is configured.
const DefaultMaxTurns = 6

// Turn is one role-tagged utterance of text in the conversation history.
// Turns are immutable once appended.
type Turn struct {
	Role      string
	Text      string
	CreatedAt time.Time
}

// History holds the most recent turns of a conversation, bounded to a fixed
// maximum. Insertion evicts the oldest turn first. A History is exclusively
// owned by one session and needs no locking.
type History struct {
	max   int
	turns []Turn
}

// NewHistory creates a history bounded to max turns. Non-positive values
// fall back to DefaultMaxTurns.
func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultMaxTurns
	}
	return &History{max: max}
}

// Add appends a turn, evicting the oldest when the bound is exceeded.
func (h *History) Add(role, text string) {
	h.turns = append(h.turns, Turn{
		Role:      role,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	})
	if len(h.turns) > h.max {
		h.turns = h.turns[len(h.turns)-h.max:]
	}
}

// Recent returns a copy of the retained turns, oldest first.
func (h *History) Recent() []Turn {
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Len returns the number of retained turns.
func (h *History) Len() int {
	return len(h.turns)
}

// Reset clears the history.
func (h *History) Reset() {
	h.turns = nil
}
