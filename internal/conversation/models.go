package conversation

import "time"

// Role is the canonical internal role vocabulary. Provider adapters translate it
// to and from their own wire vocabulary.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a conversation transcript.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is a titled transcript owned by one session.
// History[0] is the system message once the conversation is materialized.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	History   []Message `json:"history"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary is the chat list entry rendered on the index page.
type Summary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// State is everything a session holds. Credentials are tagged out of JSON so that
// durable stores can never serialize them.
type State struct {
	Chats         map[string]Conversation `json:"chats"`
	CurrentChatID string                  `json:"current_chat_id,omitempty"`
	OpenAIAPIKey  string                  `json:"-"`
	GoogleAPIKey  string                  `json:"-"`

	dirty bool
}

// Credentials is the pair of provider keys held by a session.
type Credentials struct {
	OpenAIAPIKey string
	GoogleAPIKey string
}
