package chat

import (
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/eternisai/chat-relay/internal/conversation"
	"github.com/eternisai/chat-relay/internal/errors"
	"github.com/eternisai/chat-relay/internal/session"
	"github.com/gin-gonic/gin"
)

// IndexPage is the data rendered by the chat page template.
type IndexPage struct {
	Chats         []conversation.Summary
	CurrentChatID string
	CurrentTitle  string
	History       []conversation.Message
	OpenAIKeySet  bool
	GoogleKeySet  bool
}

// Index renders the chat page
// GET /.
func (h *Handler) Index(c *gin.Context) {
	state, ok := h.requireState(c)
	if !ok {
		return
	}

	state.DropDanglingCurrent()

	page := IndexPage{
		Chats:        state.Summaries(),
		OpenAIKeySet: state.OpenAIAPIKey != "",
		GoogleKeySet: state.GoogleAPIKey != "",
	}
	if current, ok := state.Current(); ok {
		conv, err := state.Load(current.ID, h.opts.SystemPrompt)
		if err == nil {
			page.CurrentChatID = conv.ID
			page.CurrentTitle = conv.Title
			page.History = conversation.Turns(conv.History)
		}
	}

	c.HTML(http.StatusOK, "index.html", page)
}

// NewChat clears the active conversation; the next /chat turn creates one
// POST /new_chat.
func (h *Handler) NewChat(c *gin.Context) {
	state, ok := h.requireState(c)
	if !ok {
		return
	}

	state.ClearCurrent()
	if !h.save(c) {
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "New chat started"})
}

// LoadChat returns a conversation and makes it current
// GET /load_chat/:id.
func (h *Handler) LoadChat(c *gin.Context) {
	state, ok := h.requireState(c)
	if !ok {
		return
	}

	id := c.Param("id")
	conv, err := state.Load(id, h.opts.SystemPrompt)
	if err != nil {
		errors.AbortWithNotFound(c, "Chat not found", id)
		return
	}
	if !h.save(c) {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":      conv.ID,
		"title":   conv.Title,
		"history": conv.History,
	})
}

// UpdateTitleRequest is the body of POST /update_title/:id.
type UpdateTitleRequest struct {
	NewTitle string `json:"new_title"`
}

// UpdateTitle renames a conversation
// POST /update_title/:id.
func (h *Handler) UpdateTitle(c *gin.Context) {
	state, ok := h.requireState(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if _, ok := state.Get(id); !ok {
		errors.AbortWithNotFound(c, "Chat not found", id)
		return
	}

	var req UpdateTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.AbortWithBadRequest(c, "Invalid request body", nil)
		return
	}

	title, err := state.Rename(id, req.NewTitle)
	switch {
	case stderrors.Is(err, conversation.ErrTitleEmpty):
		errors.AbortWithBadRequest(c, "Title cannot be empty", nil)
		return
	case stderrors.Is(err, conversation.ErrTitleTooLong):
		errors.AbortWithBadRequest(c, "Title is too long", map[string]interface{}{"max_length": conversation.MaxTitleLength})
		return
	case stderrors.Is(err, conversation.ErrNotFound):
		errors.AbortWithNotFound(c, "Chat not found", id)
		return
	case err != nil:
		h.logger.WithContext(c.Request.Context()).Error("failed to rename chat", slog.String("error", err.Error()))
		errors.AbortWithInternal(c, "Failed to update title")
		return
	}

	if !h.save(c) {
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Title updated successfully", "new_title": title})
}

// DeleteChat removes a conversation
// DELETE /delete_chat/:id.
func (h *Handler) DeleteChat(c *gin.Context) {
	state, ok := h.requireState(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if err := state.Delete(id); err != nil {
		errors.AbortWithNotFound(c, "Chat not found", id)
		return
	}
	if !h.save(c) {
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Chat deleted successfully"})
}

// SaveAPIKeysRequest is the body of POST /save_api_keys. An absent or empty key
// removes it from the session.
type SaveAPIKeysRequest struct {
	OpenAIKey string `json:"openai_key"`
	GoogleKey string `json:"google_key"`
}

// SaveAPIKeys stores provider keys in the session
// POST /save_api_keys.
func (h *Handler) SaveAPIKeys(c *gin.Context) {
	state, ok := h.requireState(c)
	if !ok {
		return
	}

	var req SaveAPIKeysRequest
	if err := c.ShouldBindJSON(&req); err != nil && !stderrors.Is(err, io.EOF) {
		errors.AbortWithBadRequest(c, "Invalid request body", nil)
		return
	}

	state.SetCredentials(conversation.Credentials{
		OpenAIAPIKey: cleanKey(req.OpenAIKey),
		GoogleAPIKey: cleanKey(req.GoogleKey),
	})
	if !h.save(c) {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        "API keys saved for this session",
		"openai_key_set": state.OpenAIAPIKey != "",
		"google_key_set": state.GoogleAPIKey != "",
	})
}

// Health reports liveness
// GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) requireState(c *gin.Context) (*conversation.State, bool) {
	state, ok := session.State(c)
	if !ok {
		h.logger.WithContext(c.Request.Context()).Error("route called without a session")
		errors.AbortWithInternal(c, "Session unavailable")
		return nil, false
	}
	return state, true
}

func (h *Handler) save(c *gin.Context) bool {
	if err := session.Save(c); err != nil {
		h.logger.WithContext(c.Request.Context()).Error("failed to save session", slog.String("error", err.Error()))
		errors.AbortWithInternal(c, "Failed to save session")
		return false
	}
	return true
}

// cleanKey drops whitespace and wrapping quotes pasted along with a key.
func cleanKey(key string) string {
	key = strings.TrimSpace(key)
	if len(key) >= 2 && (key[0] == '"' || key[0] == '\'') && key[len(key)-1] == key[0] {
		key = strings.TrimSpace(key[1 : len(key)-1])
	}
	return key
}
