package registry

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"iprompt/internal/providers"
	"iprompt/internal/providers/anthropic_messages"
	"iprompt/internal/providers/gemini"
	"iprompt/internal/providers/openai_compat"
)

const (
	KindOpenAI    = "openai"
	KindAnthropic = "anthropic"
	KindGemini    = "gemini"
)

type BuildOptions struct {
	Kind        string
	BaseURL     string
	APIKey      string
	Headers     map[string]string
	HTTPClient  *http.Client
	MaxRetries  int
	BackoffBase time.Duration
}

// NormalizeKind maps accepted aliases to one of the Kind constants, or "" when unknown.
func NormalizeKind(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "openai", "openai_compat", "openai-compatible":
		return KindOpenAI
	case "anthropic", "anthropic_messages", "claude":
		return KindAnthropic
	case "gemini", "google":
		return KindGemini
	default:
		return ""
	}
}

func Build(opts BuildOptions) (providers.Provider, error) {
	switch NormalizeKind(opts.Kind) {
	case KindOpenAI:
		return openai_compat.New(openai_compat.Config{
			BaseURL:     opts.BaseURL,
			APIKey:      opts.APIKey,
			Headers:     opts.Headers,
			HTTPClient:  opts.HTTPClient,
			MaxRetries:  opts.MaxRetries,
			BackoffBase: opts.BackoffBase,
		}), nil

	case KindAnthropic:
		return anthropic_messages.New(anthropic_messages.Config{
			BaseURL:    opts.BaseURL,
			APIKey:     opts.APIKey,
			HTTPClient: opts.HTTPClient,
			MaxRetries: opts.MaxRetries,
		}), nil

	case KindGemini:
		return gemini.New(gemini.Config{
			BaseURL:     opts.BaseURL,
			APIKey:      opts.APIKey,
			HTTPClient:  opts.HTTPClient,
			MaxRetries:  opts.MaxRetries,
			BackoffBase: opts.BackoffBase,
		}), nil

	default:
		return nil, fmt.Errorf("unsupported provider kind %q", opts.Kind)
	}
}
