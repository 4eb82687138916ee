package llm

import (
	"context"

	"github.com/hibari-ai/officebot/internal/boterr"
)

// ErrUnavailable marks backend failures the turn pipeline degrades into an
// apology instead of propagating.
var ErrUnavailable = boterr.ErrBackendUnavailable

// Prompt is one generative request: an optional system prompt, the compacted
// history window, and the current utterance.
type Prompt struct {
	System  string
	History []string
	Text    string
}

type Responder interface {
	Reply(ctx context.Context, prompt Prompt) (string, error)
}
