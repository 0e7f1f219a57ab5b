package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/eternisai/chat-relay/internal/conversation"
)

// GeminiClient talks to the Gemini generateContent REST endpoint.
type GeminiClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewGeminiClient creates an adapter for baseURL (e.g. "https://generativelanguage.googleapis.com/v1beta").
func NewGeminiClient(baseURL, model string, httpClient *http.Client) *GeminiClient {
	return &GeminiClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: httpClient,
	}
}

func (c *GeminiClient) Name() string { return NameGemini }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type geminiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// candidate finish reasons that mean the output was withheld.
var geminiBlockedFinishReasons = map[string]bool{
	"SAFETY":             true,
	"RECITATION":         true,
	"BLOCKLIST":          true,
	"PROHIBITED_CONTENT": true,
	"SPII":               true,
}

// buildGeminiContents drops the system message, remaps roles and merges adjacent
// turns of the same role so the request always alternates user and model.
func buildGeminiContents(messages []conversation.Message) []geminiContent {
	contents := make([]geminiContent, 0, len(messages))
	for _, msg := range messages {
		role, ok := geminiRoles[msg.Role]
		if !ok {
			continue
		}
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, geminiPart{Text: msg.Content})
			continue
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: msg.Content}}})
	}
	return contents
}

// Complete sends the prior turns plus the new user message and returns the joined text.
func (c *GeminiClient) Complete(ctx context.Context, req Request) (string, error) {
	if req.APIKey == "" {
		return "", missingCredential(NameGemini, "Google")
	}

	payload := geminiRequest{
		Contents: buildGeminiContents(req.Messages),
		GenerationConfig: geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if len(payload.Contents) == 0 {
		return "", c.unexpected(fmt.Errorf("request has no user or model turns"))
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", c.unexpected(fmt.Errorf("marshal request: %w", err))
	}

	endpoint := c.baseURL + "/models/" + url.PathEscape(c.model) + ":generateContent"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", c.unexpected(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", req.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &Error{
			Kind:     KindConnectionFailure,
			Provider: NameGemini,
			Message:  "Could not connect to the Google Gemini API.",
			Err:      err,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{
			Kind:     KindConnectionFailure,
			Provider: NameGemini,
			Status:   resp.StatusCode,
			Message:  "Could not connect to the Google Gemini API.",
			Err:      fmt.Errorf("read response: %w", err),
		}
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyGeminiStatus(resp.StatusCode, respBody)
	}

	var result geminiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", c.unexpected(fmt.Errorf("decode response: %w", err))
	}

	var text strings.Builder
	finishReason := ""
	if len(result.Candidates) > 0 {
		finishReason = result.Candidates[0].FinishReason
		for _, part := range result.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
	}

	if out := cleanText(text.String()); out != "" {
		return out, nil
	}

	reason := result.PromptFeedback.BlockReason
	if reason == "" && geminiBlockedFinishReasons[finishReason] {
		reason = finishReason
	}
	if reason != "" {
		return "", &Error{
			Kind:     KindBlocked,
			Provider: NameGemini,
			Status:   resp.StatusCode,
			Message:  "Response blocked due to: " + reason,
		}
	}

	return "", &Error{
		Kind:     KindEmptyResponse,
		Provider: NameGemini,
		Status:   resp.StatusCode,
		Message:  "Gemini returned an empty response.",
	}
}

func (c *GeminiClient) unexpected(err error) *Error {
	return &Error{
		Kind:     KindUnexpected,
		Provider: NameGemini,
		Message:  "An unexpected error occurred while contacting the Google Gemini API.",
		Err:      err,
	}
}

// classifyGeminiStatus maps a non-200 generateContent response to an error kind,
// preferring the canonical status string over the HTTP code.
func classifyGeminiStatus(status int, body []byte) *Error {
	var parsed geminiErrorBody
	_ = json.Unmarshal(body, &parsed)

	detail := strings.TrimSpace(parsed.Error.Message)
	cause := fmt.Errorf("gemini returned %d %s: %s", status, parsed.Error.Status, truncate(string(body), 512))

	e := &Error{Provider: NameGemini, Status: status, Err: cause}

	switch {
	case parsed.Error.Status == "PERMISSION_DENIED" || status == http.StatusForbidden:
		e.Kind = KindAuthFailure
		e.Status = http.StatusForbidden
		e.Message = "Google API permission denied. Check your key and ensure the API is enabled."
	case parsed.Error.Status == "UNAUTHENTICATED" || status == http.StatusUnauthorized:
		e.Kind = KindAuthFailure
		e.Status = http.StatusUnauthorized
		e.Message = "Google API authentication failed. Check your key."
	case (parsed.Error.Status == "INVALID_ARGUMENT" || status == http.StatusBadRequest) && strings.Contains(strings.ToLower(detail), "api key"):
		e.Kind = KindAuthFailure
		e.Status = http.StatusUnauthorized
		e.Message = withDetail("Google API key is invalid.", detail, "")
	case parsed.Error.Status == "RESOURCE_EXHAUSTED" || status == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
		e.Message = "Google API quota exceeded. Please try again later."
	case parsed.Error.Status == "INVALID_ARGUMENT" || parsed.Error.Status == "FAILED_PRECONDITION" || status == http.StatusBadRequest:
		e.Kind = KindBadRequest
		e.Message = withDetail("Google API rejected the request.", detail, "")
	case parsed.Error.Status == "DEADLINE_EXCEEDED" || status == http.StatusGatewayTimeout:
		e.Kind = KindConnectionFailure
		e.Message = "Could not connect to the Google Gemini API."
	default:
		e.Kind = KindProviderError
		e.Message = withDetail("An error occurred with the Google API.", detail, "")
	}

	return e
}
