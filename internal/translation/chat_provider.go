package translation

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"iprompt/internal/providers"
	"iprompt/internal/providers/registry"
)

const (
	ChatProviderID = "litellm"

	chatTemperature = 0.3
	maxOutputTokens = 4096
)

const defaultPromptTemplate = "You are a professional translator specializing in technical content and AI prompts. \n" +
	"Your task is to translate the following text to {targetLang}. \n\n" +
	"Important instructions:\n" +
	"1. Maintain the original formatting, including line breaks, markdown, and code blocks\n" +
	"2. Preserve technical terms and prompt structure\n" +
	"3. Ensure the translation sounds natural in the target language\n" +
	"4. Keep any placeholders, variables, or template syntax unchanged\n" +
	"5. Only return the translated text without any explanations or notes\n\n" +
	"The text to translate is:"

// BuildFunc constructs an upstream chat client.
type BuildFunc func(opts registry.BuildOptions) (providers.Provider, error)

type ChatConfig struct {
	HTTPClient  *http.Client
	MaxRetries  int
	BackoffBase time.Duration
	// Build defaults to registry.Build.
	Build BuildFunc
}

// ChatProvider translates through an OpenAI-compatible, Anthropic or Gemini chat API
// chosen by the configured model selection.
type ChatProvider struct {
	httpClient  *http.Client
	maxRetries  int
	backoffBase time.Duration
	build       BuildFunc
}

func NewChatProvider(cfg ChatConfig) *ChatProvider {
	if cfg.Build == nil {
		cfg.Build = registry.Build
	}
	return &ChatProvider{
		httpClient:  cfg.HTTPClient,
		maxRetries:  cfg.MaxRetries,
		backoffBase: cfg.BackoffBase,
		build:       cfg.Build,
	}
}

func (p *ChatProvider) ID() string   { return ChatProviderID }
func (p *ChatProvider) Name() string { return "LiteLLM (multi-provider)" }

func (p *ChatProvider) SupportedLanguages() []string {
	return append([]string{}, SupportedLanguages...)
}

// ValidateConfig requires a model selection and an API key; a custom selection also
// needs the custom model name.
func (p *ChatProvider) ValidateConfig(cfg ProviderConfig) bool {
	if strings.TrimSpace(cfg.Provider) == "" || strings.TrimSpace(cfg.APIKey) == "" {
		return false
	}
	if cfg.Provider == CustomSelection && strings.TrimSpace(cfg.CustomModel) == "" {
		return false
	}
	return true
}

func (p *ChatProvider) Translate(ctx context.Context, text, targetLang string, cfg ProviderConfig) (string, error) {
	if cfg.Kind == "" || cfg.Model == "" {
		cfg = cfg.Resolve()
	}
	client, err := p.build(registry.BuildOptions{
		Kind:        cfg.Kind,
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		HTTPClient:  p.httpClient,
		MaxRetries:  p.maxRetries,
		BackoffBase: p.backoffBase,
	})
	if err != nil {
		return "", fmt.Errorf("build %s client: %w", cfg.Kind, err)
	}

	resp, err := client.Chat(ctx, providers.ChatRequest{
		Model:        cfg.Model,
		SystemPrompt: SystemPrompt(cfg.CustomPrompt, targetLang),
		UserPrompt:   text,
		MaxTokens:    MaxTokens(text),
		Temperature:  chatTemperature,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

// SystemPrompt returns the custom prompt, or the built-in one, with {targetLang}
// replaced by the language name.
func SystemPrompt(custom, targetLang string) string {
	tmpl := defaultPromptTemplate
	if strings.TrimSpace(custom) != "" {
		tmpl = custom
	}
	return strings.ReplaceAll(tmpl, "{targetLang}", LanguageName(targetLang))
}

// MaxTokens bounds the completion at three tokens per input character, capped at 4096.
func MaxTokens(text string) int {
	n := len([]rune(text)) * 3
	if n > maxOutputTokens {
		return maxOutputTokens
	}
	return n
}
