package engine

import (
	"context"
	"strings"
	"time"

	"github.com/lexiqai/dialogue-gateway/internal/convo"
)

// RuleResponder is a deterministic fallback response generator. It keeps the
// gateway usable end-to-end without an external language model, so the
// real-time pipeline can be exercised offline.
type RuleResponder struct{}

// NewRuleResponder creates the built-in responder.
func NewRuleResponder() *RuleResponder {
	return &RuleResponder{}
}

// Reply produces a canned response based on simple keyword heuristics.
func (r *RuleResponder) Reply(_ context.Context, userText string, _ []convo.Turn) (string, error) {
	text := strings.TrimSpace(userText)
	if text == "" {
		return "I'm still listening. Could you repeat that?", nil
	}

	lower := strings.ToLower(text)

	for _, greeting := range []string{"hello", "hi", "hey"} {
		if strings.Contains(lower, greeting) {
			return "Hello! How can I help you today?", nil
		}
	}

	if strings.Contains(lower, "time") {
		now := time.Now().Format("15:04")
		return "It's currently " + now + ". What else would you like to talk about?", nil
	}

	if strings.Contains(lower, "your name") {
		return "I'm an offline demo assistant built for streaming conversations.", nil
	}

	if strings.HasSuffix(text, "?") {
		return "That's an interesting question. I'm not connected to a large language model, " +
			"but I'd love to hear more details so we can reason about it together.", nil
	}

	if len(strings.Fields(text)) < 4 {
		return "Tell me more so I can respond with something helpful.", nil
	}

	return "I hear you. This prototype focuses on the real-time audio pipeline, " +
		"so my responses are intentionally simple. Feel free to ask about how the system works.", nil
}
