package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eternisai/chat-relay/internal/conversation"
)

func newGeminiTestServer(t *testing.T, status int, body string, inspect func(*http.Request, geminiRequest)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-1.5-flash-latest:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if inspect != nil {
			inspect(r, req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func TestGeminiClient_Success(t *testing.T) {
	server := newGeminiTestServer(t, http.StatusOK,
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"Deep "},{"text":"blue."}]},"finishReason":"STOP"}]}`,
		func(r *http.Request, req geminiRequest) {
			if got := r.Header.Get("x-goog-api-key"); got != "g-key" {
				t.Errorf("expected api key header, got %q", got)
			}
			if r.URL.Query().Get("key") != "" {
				t.Error("api key must not be sent in the URL")
			}
			if len(req.Contents) != 3 {
				t.Fatalf("expected 3 contents without system message, got %+v", req.Contents)
			}
			roles := []string{req.Contents[0].Role, req.Contents[1].Role, req.Contents[2].Role}
			if roles[0] != "user" || roles[1] != "model" || roles[2] != "user" {
				t.Errorf("unexpected roles %v", roles)
			}
			if req.Contents[2].Parts[0].Text != "Name a color" {
				t.Errorf("expected new message last, got %+v", req.Contents[2])
			}
			if req.GenerationConfig.MaxOutputTokens != 20 {
				t.Errorf("expected maxOutputTokens 20, got %d", req.GenerationConfig.MaxOutputTokens)
			}
		})
	defer server.Close()

	client := NewGeminiClient(server.URL, "gemini-1.5-flash-latest", server.Client())
	text, err := client.Complete(context.Background(), Request{
		APIKey:      "g-key",
		Messages:    transcript(),
		Temperature: 0.2,
		MaxTokens:   20,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "Deep blue." {
		t.Errorf("expected joined parts, got %q", text)
	}
}

func TestBuildGeminiContents_MergesAdjacentRoles(t *testing.T) {
	contents := buildGeminiContents([]conversation.Message{
		conversation.SystemMessage("sys"),
		{Role: conversation.RoleUser, Content: "first try"},
		{Role: conversation.RoleUser, Content: "second try"},
	})

	if len(contents) != 1 {
		t.Fatalf("expected merged single user content, got %+v", contents)
	}
	if contents[0].Role != "user" || len(contents[0].Parts) != 2 {
		t.Errorf("unexpected content %+v", contents[0])
	}
}

func TestGeminiClient_BlockedAndEmpty(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		kind    Kind
		message string
	}{
		{"prompt blocked", `{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`, KindBlocked, "Response blocked due to: SAFETY"},
		{"candidate safety", `{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`, KindBlocked, "Response blocked due to: SAFETY"},
		{"empty", `{"candidates":[{"content":{"parts":[]},"finishReason":"STOP"}]}`, KindEmptyResponse, "Gemini returned an empty response."},
		{"no candidates", `{}`, KindEmptyResponse, "Gemini returned an empty response."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newGeminiTestServer(t, http.StatusOK, tt.body, nil)
			defer server.Close()

			client := NewGeminiClient(server.URL, "gemini-1.5-flash-latest", server.Client())
			_, err := client.Complete(context.Background(), Request{APIKey: "k", Messages: transcript()})

			perr := AsError(NameGemini, err)
			if perr.Kind != tt.kind {
				t.Fatalf("expected %s, got %s", tt.kind, perr.Kind)
			}
			if perr.Message != tt.message {
				t.Errorf("expected message %q, got %q", tt.message, perr.Message)
			}
		})
	}
}

func TestGeminiClient_Classification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		kind       Kind
		httpStatus int
	}{
		{"permission denied", 403, `{"error":{"code":403,"message":"denied","status":"PERMISSION_DENIED"}}`, KindAuthFailure, 403},
		{"invalid key", 400, `{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`, KindAuthFailure, 401},
		{"quota", 429, `{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`, KindRateLimited, 429},
		{"bad argument", 400, `{"error":{"code":400,"message":"contents must alternate","status":"INVALID_ARGUMENT"}}`, KindBadRequest, 400},
		{"internal", 500, `{"error":{"code":500,"message":"oops","status":"INTERNAL"}}`, KindProviderError, 500},
		{"unavailable", 503, `{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`, KindProviderError, 500},
		{"deadline", 504, `{"error":{"code":504,"status":"DEADLINE_EXCEEDED"}}`, KindConnectionFailure, 504},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newGeminiTestServer(t, tt.status, tt.body, nil)
			defer server.Close()

			client := NewGeminiClient(server.URL, "gemini-1.5-flash-latest", server.Client())
			_, err := client.Complete(context.Background(), Request{APIKey: "k", Messages: transcript()})

			perr := AsError(NameGemini, err)
			if perr.Kind != tt.kind {
				t.Fatalf("expected %s, got %s (%v)", tt.kind, perr.Kind, err)
			}
			if perr.HTTPStatus() != tt.httpStatus {
				t.Errorf("expected http status %d, got %d", tt.httpStatus, perr.HTTPStatus())
			}
		})
	}
}

func TestGeminiClient_MissingKeyAndNoTurns(t *testing.T) {
	client := NewGeminiClient("http://127.0.0.1:0", "gemini-1.5-flash-latest", http.DefaultClient)

	if _, err := client.Complete(context.Background(), Request{Messages: transcript()}); KindOf(err) != KindMissingCredential {
		t.Errorf("expected missing credential, got %v", err)
	}

	onlySystem := []conversation.Message{conversation.SystemMessage("sys")}
	if _, err := client.Complete(context.Background(), Request{APIKey: "k", Messages: onlySystem}); KindOf(err) != KindUnexpected {
		t.Errorf("expected unexpected failure for empty contents, got %v", err)
	}
}
