package anthropic_messages

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"iprompt/internal/providers"
)

func TestNormalizeBaseURL(t *testing.T) {
	cases := map[string]string{
		"":                              "https://api.anthropic.com/",
		"https://api.anthropic.com/v1":  "https://api.anthropic.com/",
		"https://api.anthropic.com/v1/": "https://api.anthropic.com/",
		"http://localhost:8080":         "http://localhost:8080/",
	}
	for in, want := range cases {
		if got := normalizeBaseURL(in); got != want {
			t.Fatalf("normalizeBaseURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestChatSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("X-Api-Key"); got != "ak-test" {
			t.Errorf("unexpected api key header %q", got)
		}
		var body struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
			System    []struct {
				Text string `json:"text"`
			} `json:"system"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body.Model != "claude-3-haiku" || body.MaxTokens != 15 {
			t.Errorf("unexpected request %#v", body)
		}
		if len(body.System) != 1 || body.System[0].Text != "Translate to French" {
			t.Errorf("unexpected system blocks %#v", body.System)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-haiku",
			"content": [{"type": "text", "text": "Bonjour "}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 3, "output_tokens": 2}
		}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/v1", APIKey: "ak-test"})
	resp, err := c.Chat(context.Background(), providers.ChatRequest{
		Model:        "claude-3-haiku",
		SystemPrompt: "Translate to French",
		UserPrompt:   "Hello",
		MaxTokens:    15,
		Temperature:  0.3,
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Text != "Bonjour" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
}

func TestChatError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "bad"})
	_, err := c.Chat(context.Background(), providers.ChatRequest{Model: "claude-3-haiku", UserPrompt: "x"})
	var se *providers.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusUnauthorized || se.Message != "invalid x-api-key" {
		t.Fatalf("unexpected status error %#v", se)
	}
}
