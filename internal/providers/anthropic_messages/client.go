package anthropic_messages

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"iprompt/internal/providers"
)

const DefaultBaseURL = "https://api.anthropic.com"

type Config struct {
	// BaseURL is the API root; a trailing /v1 is accepted and removed.
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	MaxRetries int
}

type Client struct {
	client anthropic.Client
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Client{
		client: anthropic.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(normalizeBaseURL(cfg.BaseURL)),
			option.WithHTTPClient(cfg.HTTPClient),
			option.WithMaxRetries(cfg.MaxRetries),
		),
	}
}

var _ providers.Provider = (*Client)(nil)

func (c *Client) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
	}
	if strings.TrimSpace(req.SystemPrompt) != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return providers.ChatResponse{}, providers.NewStatusError(apiErr.StatusCode, []byte(apiErr.RawJSON()))
		}
		return providers.ChatResponse{}, fmt.Errorf("anthropic messages: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return providers.ChatResponse{}, fmt.Errorf("missing text in anthropic messages response")
	}
	return providers.ChatResponse{Text: text}, nil
}

func normalizeBaseURL(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return DefaultBaseURL + "/"
	}
	base = strings.TrimSuffix(base, "/v1")
	return base + "/"
}
