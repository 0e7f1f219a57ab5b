package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestWithContext_AddsKnownKeys(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: slog.LevelInfo, Format: "json", Output: &buf})

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithSessionID(ctx, "sess-1")
	ctx = WithChatID(ctx, "chat-1")
	log.WithContext(ctx).WithComponent("test").Info("hello")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	for key, want := range map[string]string{
		"request_id":  "req-1",
		"session_id":  "sess-1",
		"chat_id":     "chat-1",
		"component":   "test",
		"instance_id": GetInstanceID(),
	} {
		if entry[key] != want {
			t.Errorf("expected %s=%q, got %v", key, want, entry[key])
		}
	}
}

func TestFromConfig(t *testing.T) {
	t.Setenv("APP_ENV", "")
	cfg := FromConfig("warn", "")
	if cfg.Level != slog.LevelWarn || cfg.Format != "text" {
		t.Errorf("unexpected config %+v", cfg)
	}

	t.Setenv("APP_ENV", "production")
	if cfg := FromConfig("info", "text"); cfg.Format != "json" {
		t.Errorf("production must force json, got %q", cfg.Format)
	}
}

func TestRequestLoggingMiddleware_RequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	log := New(Config{Level: slog.LevelInfo, Format: "json", Output: &buf})

	var seen string
	router := gin.New()
	router.Use(RequestLoggingMiddleware(log))
	router.GET("/ping", func(c *gin.Context) {
		seen, _ = c.Request.Context().Value(ContextKeyRequestID).(string)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "given-id")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if seen != "given-id" || w.Header().Get("X-Request-ID") != "given-id" {
		t.Errorf("request id not propagated: ctx=%q header=%q", seen, w.Header().Get("X-Request-ID"))
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated request id")
	}

	if !bytes.Contains(buf.Bytes(), []byte(`"msg":"request completed"`)) {
		t.Errorf("completion not logged: %s", buf.String())
	}
}
