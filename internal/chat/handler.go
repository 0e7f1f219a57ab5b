package chat

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/eternisai/chat-relay/internal/config"
	"github.com/eternisai/chat-relay/internal/conversation"
	"github.com/eternisai/chat-relay/internal/logger"
	"github.com/eternisai/chat-relay/internal/providers"
	"github.com/eternisai/chat-relay/internal/session"
	"github.com/eternisai/chat-relay/internal/title_generation"
	"github.com/gin-gonic/gin"
)

const internalErrorMessage = "An internal server error occurred."

// Titler names a conversation from its first message. It never fails.
type Titler interface {
	Generate(ctx context.Context, req title_generation.GenerateRequest) title_generation.Result
}

// Options carries the conversation settings the handlers need.
type Options struct {
	SystemPrompt    string
	MaxHistoryTurns int
	OpenAI          config.ProviderConfig
	Gemini          config.ProviderConfig
}

type Handler struct {
	providers *providers.Registry
	titles    Titler
	opts      Options
	logger    *logger.Logger
	now       func() time.Time
}

func NewHandler(registry *providers.Registry, titles Titler, opts Options, log *logger.Logger) *Handler {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = config.DefaultSystemPrompt
	}
	if opts.MaxHistoryTurns <= 0 {
		opts.MaxHistoryTurns = config.DefaultMaxHistoryTurns
	}

	return &Handler{
		providers: registry,
		titles:    titles,
		opts:      opts,
		logger:    log.WithComponent("chat"),
		now:       time.Now,
	}
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message     string `json:"message"`
	ModelChoice string `json:"model_choice"`
}

// NewChatInfo announces a conversation created by this request.
type NewChatInfo struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ChatResponse is the body of every /chat reply, successful or not.
type ChatResponse struct {
	Response    string       `json:"response"`
	Error       string       `json:"error,omitempty"`
	IsError     bool         `json:"is_error"`
	NewChatInfo *NewChatInfo `json:"new_chat_info,omitempty"`
}

func chatError(c *gin.Context, status int, message string, info *NewChatInfo) {
	c.JSON(status, ChatResponse{Response: message, Error: message, IsError: true, NewChatInfo: info})
}

// Chat handles one user turn
// POST /chat.
func (h *Handler) Chat(c *gin.Context) {
	ctx := logger.WithOperation(c.Request.Context(), "chat")
	log := h.logger.WithContext(ctx)

	state, ok := session.State(c)
	if !ok {
		log.Error("chat called without a session")
		chatError(c, http.StatusInternalServerError, internalErrorMessage, nil)
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		chatError(c, http.StatusBadRequest, "Invalid request body.", nil)
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		chatError(c, http.StatusBadRequest, "Empty message received.", nil)
		return
	}

	choice, ok := providers.ParseModelChoice(req.ModelChoice)
	if !ok {
		chatError(c, http.StatusBadRequest, "Invalid model choice specified.", nil)
		return
	}

	creds := state.Credentials()

	conv, created := state.ResolveOrCreate(h.opts.SystemPrompt, h.now())
	ctx = logger.WithChatID(ctx, conv.ID)
	log = h.logger.WithContext(ctx)

	var info *NewChatInfo
	if created {
		title := h.titles.Generate(ctx, title_generation.GenerateRequest{
			FirstMessage: message,
			ModelChoice:  choice,
			Credentials:  creds,
		})
		conv.Title = title.Title
		info = &NewChatInfo{ID: conv.ID, Title: conv.Title}
		log.Info("conversation created", slog.String("title_source", string(title.Source)))
	}

	before, _ := conversation.Repair(conv.History, h.opts.SystemPrompt)
	// Untrimmed until the turn is reconciled below.
	withUser := conversation.AppendAndTrim(before, 0, conversation.Message{Role: conversation.RoleUser, Content: message})

	reply, err := h.dispatch(ctx, choice, creds, withUser)

	var perr *providers.Error
	switch {
	case err == nil:
		conv.History = conversation.AppendAndTrim(withUser, h.opts.MaxHistoryTurns,
			conversation.Message{Role: conversation.RoleAssistant, Content: reply})
	case providers.KindOf(err) == providers.KindMissingCredential:
		perr = providers.AsError(string(choice), err)
		conv.History = conversation.Trim(withUser, h.opts.MaxHistoryTurns)
	default:
		perr = providers.AsError(string(choice), err)
		conv.History = conversation.Trim(before, h.opts.MaxHistoryTurns)
	}

	state.Put(conv)
	if err := session.Save(c); err != nil {
		log.Error("failed to save session", slog.String("error", err.Error()))
		chatError(c, http.StatusInternalServerError, internalErrorMessage, nil)
		return
	}

	if perr != nil {
		status := perr.HTTPStatus()
		text := perr.Message
		if perr.Kind == providers.KindUnexpected {
			text = internalErrorMessage
		}

		log.Warn("chat turn failed",
			slog.String("provider", perr.Provider),
			slog.String("kind", string(perr.Kind)),
			slog.Int("upstream_status", perr.Status),
			slog.Int("status", status),
			slog.String("error", perr.Error()))
		chatError(c, status, text, info)
		return
	}

	log.Info("chat turn completed",
		slog.String("model_choice", string(choice)),
		slog.Int("message_length", len(message)),
		slog.Int("reply_length", len(reply)),
		slog.Int("history_length", len(conv.History)))

	c.JSON(http.StatusOK, ChatResponse{Response: reply, IsError: false, NewChatInfo: info})
}

// dispatch sends the transcript to the adapter for choice. A missing credential
// short-circuits without a provider call.
func (h *Handler) dispatch(ctx context.Context, choice providers.ModelChoice, creds conversation.Credentials, history []conversation.Message) (string, error) {
	apiKey := choice.Credential(creds)
	if apiKey == "" {
		return "", choice.MissingCredential()
	}

	client, ok := h.providers.Client(choice)
	if !ok {
		return "", &providers.Error{
			Kind:     providers.KindUnexpected,
			Provider: string(choice),
			Message:  "No provider is configured for this model choice.",
		}
	}

	sampling := h.opts.OpenAI
	if choice == providers.ChoiceGemini {
		sampling = h.opts.Gemini
	}

	return client.Complete(ctx, providers.Request{
		APIKey:      apiKey,
		Messages:    history,
		Temperature: sampling.Temperature,
		MaxTokens:   sampling.MaxTokens,
	})
}
