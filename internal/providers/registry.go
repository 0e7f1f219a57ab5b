package providers

import "github.com/eternisai/chat-relay/internal/conversation"

// ModelChoice is the model selector sent by the chat page.
type ModelChoice string

const (
	ChoiceGPT    ModelChoice = "gpt"
	ChoiceGemini ModelChoice = "gemini"
)

// ParseModelChoice validates a selector. An empty value selects GPT.
func ParseModelChoice(s string) (ModelChoice, bool) {
	switch ModelChoice(s) {
	case "", ChoiceGPT:
		return ChoiceGPT, true
	case ChoiceGemini:
		return ChoiceGemini, true
	default:
		return "", false
	}
}

// Credential picks the session key this choice needs.
func (m ModelChoice) Credential(creds conversation.Credentials) string {
	if m == ChoiceGemini {
		return creds.GoogleAPIKey
	}
	return creds.OpenAIAPIKey
}

// MissingCredential is the error returned when the session lacks the key for m.
func (m ModelChoice) MissingCredential() *Error {
	if m == ChoiceGemini {
		return missingCredential(NameGemini, "Google")
	}
	return missingCredential(NameOpenAI, "OpenAI")
}

// Registry resolves a model choice to its adapter.
type Registry struct {
	clients map[ModelChoice]Client
}

// NewRegistry builds a registry from the two adapters.
func NewRegistry(openai, gemini Client) *Registry {
	return &Registry{clients: map[ModelChoice]Client{
		ChoiceGPT:    openai,
		ChoiceGemini: gemini,
	}}
}

// Client returns the adapter for choice.
func (r *Registry) Client(choice ModelChoice) (Client, bool) {
	c, ok := r.clients[choice]
	return c, ok && c != nil
}
