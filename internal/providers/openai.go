package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OpenAIClient talks to an OpenAI-compatible /chat/completions endpoint.
type OpenAIClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOpenAIClient creates an adapter for baseURL (e.g. "https://api.openai.com/v1").
func NewOpenAIClient(baseURL, model string, httpClient *http.Client) *OpenAIClient {
	return &OpenAIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: httpClient,
	}
}

func (c *OpenAIClient) Name() string { return NameOpenAI }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type openAIErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Complete sends the whole transcript and returns the first choice's text.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	if req.APIKey == "" {
		return "", missingCredential(NameOpenAI, "OpenAI")
	}

	payload := openAIRequest{
		Model:       c.model,
		Messages:    make([]openAIMessage, 0, len(req.Messages)),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	for _, msg := range req.Messages {
		role, ok := openAIRoles[msg.Role]
		if !ok {
			role = "user"
		}
		payload.Messages = append(payload.Messages, openAIMessage{Role: role, Content: msg.Content})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", c.unexpected(fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", c.unexpected(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &Error{
			Kind:     KindConnectionFailure,
			Provider: NameOpenAI,
			Message:  "Could not connect to OpenAI API.",
			Err:      err,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{
			Kind:     KindConnectionFailure,
			Provider: NameOpenAI,
			Status:   resp.StatusCode,
			Message:  "Could not connect to OpenAI API.",
			Err:      fmt.Errorf("read response: %w", err),
		}
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyOpenAIStatus(resp.StatusCode, respBody)
	}

	var result openAIResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", c.unexpected(fmt.Errorf("decode response: %w", err))
	}

	if len(result.Choices) == 0 {
		return "", &Error{
			Kind:     KindEmptyResponse,
			Provider: NameOpenAI,
			Status:   resp.StatusCode,
			Message:  "OpenAI returned an empty response.",
		}
	}

	choice := result.Choices[0]
	text := cleanText(choice.Message.Content)
	if text == "" {
		if choice.FinishReason == "content_filter" {
			return "", &Error{
				Kind:     KindContentRejected,
				Provider: NameOpenAI,
				Status:   resp.StatusCode,
				Message:  "OpenAI withheld the response due to its content policy.",
			}
		}
		return "", &Error{
			Kind:     KindEmptyResponse,
			Provider: NameOpenAI,
			Status:   resp.StatusCode,
			Message:  "OpenAI returned an empty response.",
		}
	}

	return text, nil
}

func (c *OpenAIClient) unexpected(err error) *Error {
	return &Error{
		Kind:     KindUnexpected,
		Provider: NameOpenAI,
		Message:  "An unexpected error occurred while contacting the OpenAI API.",
		Err:      err,
	}
}

// classifyOpenAIStatus maps a non-200 chat-completions response to an error kind.
func classifyOpenAIStatus(status int, body []byte) *Error {
	var parsed openAIErrorBody
	_ = json.Unmarshal(body, &parsed)

	detail := strings.TrimSpace(parsed.Error.Message)
	code, _ := parsed.Error.Code.(string)
	cause := fmt.Errorf("openai returned %d: %s", status, truncate(string(body), 512))

	e := &Error{Provider: NameOpenAI, Status: status, Err: cause}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = KindAuthFailure
		e.Message = withDetail("OpenAI API authentication failed.", detail, "Check your API key.")
	case status == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
		e.Message = withDetail("OpenAI API request limit reached.", detail, "Please check your plan and billing details.")
	case status == http.StatusBadRequest && (code == "content_policy_violation" || code == "content_filter"):
		e.Kind = KindContentRejected
		e.Message = withDetail("OpenAI rejected the request due to its content policy.", detail, "")
	case status == http.StatusBadRequest:
		e.Kind = KindBadRequest
		e.Message = withDetail("OpenAI rejected the request.", detail, "")
	case status == http.StatusGatewayTimeout:
		e.Kind = KindConnectionFailure
		e.Message = "Could not connect to OpenAI API."
	default:
		e.Kind = KindProviderError
		if detail == "" {
			detail = http.StatusText(status)
		}
		e.Message = "An error occurred with the OpenAI API: " + detail
	}

	return e
}

func withDetail(prefix, detail, fallback string) string {
	if detail == "" {
		detail = fallback
	}
	if detail == "" {
		return prefix
	}
	return prefix + " " + detail
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
