package gemini

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

const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type Config struct {
	// BaseURL is either an API root ({base}/models/{model}:generateContent is appended)
	// or a full generateContent endpoint.
	BaseURL     string
	APIKey      string
	HTTPClient  *http.Client
	MaxRetries  int
	BackoffBase time.Duration
}

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
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Client{cfg: cfg}
}

var _ providers.Provider = (*Client)(nil)

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

func (c *Client) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	endpointURL, err := c.buildEndpointURL(req.Model)
	if err != nil {
		return providers.ChatResponse{}, err
	}
	payload := buildPayload(req)

	text, err := providers.Retry(ctx, c.cfg.MaxRetries, c.cfg.BackoffBase, func(ctx context.Context) (string, bool, error) {
		body, retry, err := providers.PostJSON(ctx, c.cfg.HTTPClient, endpointURL, nil, payload)
		if err != nil {
			return "", retry, err
		}
		text, err := parseGenerateContent(body)
		return strings.TrimSpace(text), false, err
	})
	if err != nil {
		return providers.ChatResponse{}, err
	}
	return providers.ChatResponse{Text: text}, nil
}

// buildPayload sends instructions and text as one user turn.
func buildPayload(req providers.ChatRequest) generateRequest {
	text := req.UserPrompt
	if strings.TrimSpace(req.SystemPrompt) != "" {
		text = req.SystemPrompt + "\n\nText to translate:\n" + req.UserPrompt
	}
	return generateRequest{
		Contents: []content{{Parts: []part{{Text: text}}}},
		GenerationConfig: generationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
}

func (c *Client) buildEndpointURL(model string) (string, error) {
	base := strings.TrimSpace(c.cfg.BaseURL)
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if !strings.HasSuffix(u.Path, ":generateContent") {
		if strings.TrimSpace(model) == "" {
			return "", fmt.Errorf("model is empty")
		}
		u.Path = strings.TrimSuffix(u.Path, "/") + "/models/" + model + ":generateContent"
	}
	q := u.Query()
	q.Set("key", c.cfg.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func parseGenerateContent(body []byte) (string, error) {
	var resp struct {
		Candidates []struct {
			Content content `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode generate content response: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty candidates in generate content response")
	}
	parts := make([]string, 0, len(resp.Candidates[0].Content.Parts))
	for _, p := range resp.Candidates[0].Content.Parts {
		parts = append(parts, p.Text)
	}
	out := strings.Join(parts, "")
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("missing text in generate content response")
	}
	return out, nil
}
