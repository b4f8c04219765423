package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"codementor/internal/config"
)

func collect(t *testing.T, contentChan <-chan string, errorChan <-chan error) (string, error) {
	t.Helper()
	var sb strings.Builder
	for fragment := range contentChan {
		sb.WriteString(fragment)
	}
	return sb.String(), <-errorChan
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		provider string
		wantErr  bool
	}{
		{"anthropic", false},
		{"gemini", false},
		{"openai", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			_, err := NewClient(config.ChatConfig{Provider: tt.provider, APIKey: "k", Model: "m"}, time.Minute)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewClient(%q) error = %v, wantErr %v", tt.provider, err, tt.wantErr)
			}
		})
	}
}

func TestAnthropicStreamChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("x-api-key = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != "2023-06-01" {
			t.Errorf("anthropic-version = %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		lines := []string{
			`event: message_start`,
			`data: {"type":"message_start"}`,
			``,
			`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"{\"remark\":"}}`,
			``,
			`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"\"ok\"}"}}`,
			``,
			`data: {"type":"message_stop"}`,
			``,
		}
		for _, l := range lines {
			w.Write([]byte(l + "\n"))
		}
	}))
	defer srv.Close()

	c := NewAnthropicClient("test-key", "claude-test", srv.URL, time.Minute)
	content, errs := c.StreamChat(context.Background(), "sys", "user")
	got, err := collect(t, content, errs)
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	if want := `{"remark":"ok"}`; got != want {
		t.Errorf("streamed text = %q, want %q", got, want)
	}
}

func TestAnthropicStreamChatErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewAnthropicClient("test-key", "claude-test", srv.URL, time.Minute)
	content, errs := c.StreamChat(context.Background(), "", "user")
	got, err := collect(t, content, errs)
	if err == nil {
		t.Fatal("expected error for non-200 status")
	}
	if got != "" {
		t.Errorf("expected no content, got %q", got)
	}
}

func TestAnthropicStreamChatInStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`data: {"type":"error","error":{"type":"overloaded_error","message":"overloaded"}}` + "\n"))
	}))
	defer srv.Close()

	c := NewAnthropicClient("test-key", "claude-test", srv.URL, time.Minute)
	content, errs := c.StreamChat(context.Background(), "", "user")
	_, err := collect(t, content, errs)
	if err == nil || !strings.Contains(err.Error(), "overloaded") {
		t.Fatalf("expected in-stream API error, got %v", err)
	}
}

func TestAnthropicStreamChatMissingKey(t *testing.T) {
	c := NewAnthropicClient("", "claude-test", "http://unused", time.Minute)
	content, errs := c.StreamChat(context.Background(), "", "user")
	_, err := collect(t, content, errs)
	if err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestGeminiStreamChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "models/gemini-test:streamGenerateContent") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("alt"); got != "sse" {
			t.Errorf("alt = %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		lines := []string{
			`data: {"candidates":[{"content":{"parts":[{"text":"hello "}]}}]}`,
			``,
			`data: {"candidates":[{"content":{"parts":[{"text":"world"}]}}]}`,
			``,
			`data: [DONE]`,
			``,
		}
		for _, l := range lines {
			w.Write([]byte(l + "\n"))
		}
	}))
	defer srv.Close()

	c := NewGeminiClient("test-key", "gemini-test", srv.URL, time.Minute)
	content, errs := c.StreamChat(context.Background(), "sys", "user")
	got, err := collect(t, content, errs)
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	if want := "hello world"; got != want {
		t.Errorf("streamed text = %q, want %q", got, want)
	}
}

func TestGeminiStreamChatCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`data: {"candidates":[{"content":{"parts":[{"text":"first"}]}}]}` + "\n"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	c := NewGeminiClient("test-key", "gemini-test", srv.URL, time.Minute)
	contentChan, errorChan := c.StreamChat(ctx, "", "user")

	if got := <-contentChan; got != "first" {
		t.Fatalf("first fragment = %q", got)
	}
	cancel()

	for range contentChan {
	}
	if err := <-errorChan; err == nil {
		t.Fatal("expected cancellation error")
	}
}
