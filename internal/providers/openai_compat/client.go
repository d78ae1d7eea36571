package openai_compat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"iprompt/internal/providers"
)

const DefaultBaseURL = "https://api.openai.com/v1"

type Config struct {
	BaseURL     string
	APIKey      string
	Headers     map[string]string
	HTTPClient  *http.Client
	MaxRetries  int
	BackoffBase time.Duration
}

// Client talks to any endpoint speaking the chat completions wire format.
type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 400 * time.Millisecond
	}
	cfg.MaxRetries = max(cfg.MaxRetries, 0)
	return &Client{cfg: cfg}
}

var _ providers.Provider = (*Client)(nil)

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
		Text string `json:"text"`
	} `json:"choices"`
}

func newCompletionRequest(req providers.ChatRequest) completionRequest {
	out := completionRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if strings.TrimSpace(req.SystemPrompt) != "" {
		out.Messages = append(out.Messages, message{Role: "system", Content: req.SystemPrompt})
	}
	out.Messages = append(out.Messages, message{Role: "user", Content: req.UserPrompt})
	return out
}

func (c *Client) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	endpoint, err := c.endpoint()
	if err != nil {
		return providers.ChatResponse{}, err
	}
	payload := newCompletionRequest(req)
	header := c.header()

	text, err := providers.Retry(ctx, c.cfg.MaxRetries, c.cfg.BackoffBase, func(ctx context.Context) (string, bool, error) {
		body, retry, err := providers.PostJSON(ctx, c.cfg.HTTPClient, endpoint, header, payload)
		if err != nil {
			return "", retry, err
		}
		text, err := decodeCompletion(body)
		return strings.TrimSpace(text), false, err
	})
	if err != nil {
		return providers.ChatResponse{}, err
	}
	return providers.ChatResponse{Text: text}, nil
}

func (c *Client) header() http.Header {
	h := http.Header{}
	if key := strings.TrimSpace(c.cfg.APIKey); key != "" {
		h.Set("Authorization", "Bearer "+key)
	}
	for k, v := range c.cfg.Headers {
		h.Set(k, v)
	}
	return h
}

// endpoint accepts both an API root and a full /chat/completions URL.
func (c *Client) endpoint() (string, error) {
	base := strings.TrimSpace(c.cfg.BaseURL)
	if strings.HasSuffix(base, "/chat/completions") {
		return base, nil
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/chat/completions"
	return u.String(), nil
}

func decodeCompletion(body []byte) (string, error) {
	var resp completionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty choices in chat completion response")
	}
	choice := resp.Choices[0]
	if choice.Text != "" {
		return choice.Text, nil
	}
	if text := contentText(choice.Message.Content); strings.TrimSpace(text) != "" {
		return text, nil
	}
	return "", fmt.Errorf("missing message content in chat completion response")
}

// contentText reads message content given either as a string or as a list of text parts.
func contentText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}
