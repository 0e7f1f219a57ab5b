package providers

import (
	"context"

	"github.com/eternisai/chat-relay/internal/conversation"
)

const (
	NameOpenAI = "openai"
	NameGemini = "gemini"
)

// Request is one generation call. Messages is the full transcript in the internal
// vocabulary, system message first and the new user turn last.
type Request struct {
	APIKey      string
	Messages    []conversation.Message
	Temperature float64
	MaxTokens   int
}

// Client is a provider adapter. Failures are always returned as *Error.
type Client interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}
