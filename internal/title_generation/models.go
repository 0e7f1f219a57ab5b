package title_generation

import (
	"github.com/eternisai/chat-relay/internal/conversation"
	"github.com/eternisai/chat-relay/internal/providers"
)

// GenerateRequest contains the inputs for titling a new conversation.
type GenerateRequest struct {
	FirstMessage string
	ModelChoice  providers.ModelChoice
	Credentials  conversation.Credentials
}

// Source labels where a title came from, for metrics and logs.
type Source string

const (
	SourceGenerated  Source = "generated"
	SourceRejected   Source = "rejected"
	SourceKeyMissing Source = "key_missing"
	SourceFailed     Source = "failed"
)

// Result is a title plus its origin. Title is never empty.
type Result struct {
	Title  string
	Source Source
}
