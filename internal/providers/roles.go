package providers

import "github.com/eternisai/chat-relay/internal/conversation"

// openAIRoles maps internal roles to the chat-completions vocabulary.
var openAIRoles = map[conversation.Role]string{
	conversation.RoleSystem:    "system",
	conversation.RoleUser:      "user",
	conversation.RoleAssistant: "assistant",
}

// geminiRoles maps internal roles to Gemini content roles. The system message has no
// entry: Gemini turns carry only user and model content.
var geminiRoles = map[conversation.Role]string{
	conversation.RoleUser:      "user",
	conversation.RoleAssistant: "model",
}
