package title_generation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/eternisai/chat-relay/internal/conversation"
	"github.com/eternisai/chat-relay/internal/logger"
	"github.com/eternisai/chat-relay/internal/providers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Only connection failures are retried. Rate limits fall back at once.
	maxAttempts     = 2
	retryBackoff    = 500 * time.Millisecond
	maxTokens       = 20
	temperature     = 0.2
	maxMessageRunes = 200
	minTitleLength  = 3
	fallbackSnippet = 30
	fallbackTimeFmt = "Jan 2, 15:04"
	defaultPrompt   = `Generate a very short, concise title (3 to 5 words) for a chat conversation that starts with the user message below. Reply with the title only, without quotes or a trailing period.

User message: "%s"`
)

// genericPrefixes are rejected as title openings; a title starting with one of them
// says nothing about the conversation.
var genericPrefixes = []string{"title", "chat", "conversation", "response", "untitled"}

// Generator asks the selected provider for a short conversation title.
type Generator struct {
	prompt   string
	registry *providers.Registry
	logger   *logger.Logger
	titles   *prometheus.CounterVec
	now      func() time.Time
	backoff  time.Duration
}

// NewGenerator creates a title generator. An empty prompt uses the built-in template.
// reg may be nil to skip metrics.
func NewGenerator(prompt string, registry *providers.Registry, log *logger.Logger, reg prometheus.Registerer) *Generator {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = defaultPrompt
	}

	g := &Generator{
		prompt:   prompt,
		registry: registry,
		logger:   log.WithComponent("title_generation"),
		now:      time.Now,
		backoff:  retryBackoff,
	}

	if reg != nil {
		g.titles = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat_relay",
			Name:      "titles_total",
			Help:      "Conversation titles by source (generated or a fallback reason).",
		}, []string{"provider", "source"})
	}

	return g
}

// Generate always returns a usable title; failures turn into fallback titles.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) Result {
	log := g.logger.WithContext(ctx)
	res := g.generate(ctx, req)

	if g.titles != nil {
		g.titles.WithLabelValues(string(req.ModelChoice), string(res.Source)).Inc()
	}
	log.Debug("conversation titled",
		slog.String("model_choice", string(req.ModelChoice)),
		slog.String("source", string(res.Source)))

	return res
}

func (g *Generator) generate(ctx context.Context, req GenerateRequest) Result {
	log := g.logger.WithContext(ctx)

	apiKey := req.ModelChoice.Credential(req.Credentials)
	if apiKey == "" {
		return Result{Title: g.timeFallback("Key Missing"), Source: SourceKeyMissing}
	}

	client, ok := g.registry.Client(req.ModelChoice)
	if !ok {
		log.Error("no provider for model choice", slog.String("model_choice", string(req.ModelChoice)))
		return Result{Title: g.timeFallback("Error"), Source: SourceFailed}
	}

	title, err := g.callWithRetry(ctx, client, providers.Request{
		APIKey:      apiKey,
		Messages:    []conversation.Message{{Role: conversation.RoleUser, Content: g.buildPrompt(req.FirstMessage)}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		kind := providers.KindOf(err)
		log.Warn("title generation failed, using fallback",
			slog.String("provider", client.Name()),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()))
		return Result{Title: g.timeFallback(failureTag(kind)), Source: SourceFailed}
	}

	title = normalizeTitle(title)
	if !IsAcceptable(title) {
		log.Debug("generated title rejected", slog.String("title", title))
		return Result{Title: messageFallback(req.FirstMessage), Source: SourceRejected}
	}

	return Result{Title: title, Source: SourceGenerated}
}

// callWithRetry mirrors the proxy's retry loop with a reduced policy.
func (g *Generator) callWithRetry(ctx context.Context, client providers.Client, req providers.Request) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		title, err := client.Complete(ctx, req)
		if err == nil {
			return title, nil
		}

		lastErr = err

		if providers.KindOf(err) == providers.KindConnectionFailure && attempt < maxAttempts {
			select {
			case <-time.After(time.Duration(attempt) * g.backoff):
				continue
			case <-ctx.Done():
				return "", fmt.Errorf("context cancelled during retry: %w", ctx.Err())
			}
		}
		break
	}

	return "", lastErr
}

func (g *Generator) buildPrompt(message string) string {
	snippet := truncateRunes(strings.TrimSpace(message), maxMessageRunes)
	if strings.Contains(g.prompt, "%s") {
		return fmt.Sprintf(g.prompt, snippet)
	}
	return g.prompt + "\n\n" + snippet
}

func (g *Generator) timeFallback(tag string) string {
	title := "Chat " + g.now().Format(fallbackTimeFmt)
	if tag != "" {
		title += " (" + tag + ")"
	}
	return title
}

// IsAcceptable reports whether a generated title can be used as is.
func IsAcceptable(title string) bool {
	if utf8.RuneCountInString(title) < minTitleLength {
		return false
	}
	lower := strings.ToLower(title)
	for _, prefix := range genericPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}
	return true
}

// normalizeTitle keeps the first line, drops wrapping quotes and a trailing period,
// and caps the length at what a rename would accept.
func normalizeTitle(title string) string {
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	title = strings.TrimSpace(title)
	title = strings.Trim(title, `"'*`)
	title = strings.TrimSuffix(strings.TrimSpace(title), ".")
	return truncateRunes(strings.TrimSpace(title), conversation.MaxTitleLength)
}

func messageFallback(message string) string {
	snippet := strings.Join(strings.Fields(message), " ")
	if utf8.RuneCountInString(snippet) > fallbackSnippet {
		snippet = truncateRunes(snippet, fallbackSnippet) + "..."
	}
	return "Chat: " + snippet
}

func failureTag(kind providers.Kind) string {
	switch kind {
	case providers.KindRateLimited:
		return "Rate Limit"
	case providers.KindAuthFailure:
		return "Auth Error"
	case providers.KindConnectionFailure:
		return "Connection Error"
	case providers.KindBlocked, providers.KindContentRejected:
		return "Blocked"
	default:
		return "Error"
	}
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
