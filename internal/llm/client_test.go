package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStripThinkTags(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"plain answer", "plain answer"},
		{"<think>internal reasoning</think>answer", "answer"},
		{"<think>line one\nline two</think>\nanswer", "answer"},
		{"before <think>a</think> after", "before  after"},
		{"<think>only reasoning</think>", "<think>only reasoning</think>"},
	}
	for _, c := range cases {
		if got := StripThinkTags(c.in); got != c.want {
			t.Errorf("StripThinkTags(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
			MaxTokens int `json:"max_tokens"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "test-model" || req.MaxTokens != 64 {
			t.Errorf("unexpected request: model=%q max_tokens=%d", req.Model, req.MaxTokens)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "hello" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"<think>hmm</think> hi there "}}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/v1", "test-model")
	out, err := c.Chat(context.Background(), "be brief", "hello", 64, 0.3)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if out != "hi there" {
		t.Errorf("expected cleaned trimmed output, got %q", out)
	}
}

func TestChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{"Hel", "lo ", "world"}
		for _, c := range chunks {
			payload, _ := json.Marshal(map[string]any{
				"choices": []map[string]any{{"delta": map[string]string{"content": c}}},
			})
			w.Write([]byte("data: " + string(payload) + "\n\n"))
		}
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	c := New(srv.URL+"/v1", "test-model")
	var got strings.Builder
	err := c.ChatStream(context.Background(), "sys", "user", 64, 0.3, func(delta string) {
		got.WriteString(delta)
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if got.String() != "Hello world" {
		t.Errorf("expected accumulated deltas, got %q", got.String())
	}
}

func TestReady(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"data":[{"id":"test-model","object":"model"}]}`))
	}))
	defer up.Close()

	if !New(up.URL+"/v1", "test-model").Ready(context.Background()) {
		t.Error("serving endpoint should report ready")
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "loading", http.StatusServiceUnavailable)
	}))
	defer down.Close()

	if New(down.URL+"/v1", "test-model").Ready(context.Background()) {
		t.Error("503 endpoint should not report ready")
	}
}
