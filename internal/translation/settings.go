package translation

import (
	"strings"
	"time"

	"iprompt/internal/providers/registry"
)

const (
	DefaultHistoryLimit = 100
	DefaultCacheExpiry  = 24

	// CustomSelection selects the model named in ProviderConfig.CustomModel.
	CustomSelection = "custom"
)

// ProviderConfig is the per-provider configuration blob. Kind and Model are derived
// from Provider/CustomModel by Resolve when settings are applied.
type ProviderConfig struct {
	Provider     string `json:"provider,omitempty" yaml:"provider,omitempty"`
	CustomModel  string `json:"customModel,omitempty" yaml:"customModel,omitempty"`
	APIKey       string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	BaseURL      string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`
	CustomPrompt string `json:"customPrompt,omitempty" yaml:"customPrompt,omitempty"`
	Kind         string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Model        string `json:"model,omitempty" yaml:"model,omitempty"`
}

// Selection is the model identifier the user picked.
func (c ProviderConfig) Selection() string {
	if c.Provider == CustomSelection {
		return c.CustomModel
	}
	return c.Provider
}

// Resolve fills Kind and Model from the selection. "openai/", "anthropic/" and
// "gemini/" prefixes choose the API family and are stripped; any other identifier is
// sent unchanged to an OpenAI-compatible endpoint. A config without a selection keeps
// an explicit Kind and Model.
func (c ProviderConfig) Resolve() ProviderConfig {
	sel := strings.TrimSpace(c.Selection())
	if sel == "" {
		c.Kind = registry.NormalizeKind(c.Kind)
		return c
	}
	for _, kind := range []string{registry.KindOpenAI, registry.KindAnthropic, registry.KindGemini} {
		if strings.HasPrefix(sel, kind+"/") {
			c.Kind = kind
			c.Model = strings.TrimPrefix(sel, kind+"/")
			return c
		}
	}
	c.Kind = registry.KindOpenAI
	c.Model = sel
	return c
}

type HistoryEntry struct {
	ID             string    `json:"id" yaml:"id"`
	Timestamp      time.Time `json:"timestamp" yaml:"timestamp"`
	Provider       string    `json:"provider" yaml:"provider"`
	SourceText     string    `json:"sourceText" yaml:"sourceText"`
	TargetLang     string    `json:"targetLang" yaml:"targetLang"`
	TranslatedText string    `json:"translatedText" yaml:"translatedText"`
	TokenUsed      int       `json:"tokenUsed,omitempty" yaml:"tokenUsed,omitempty"`
	Cost           float64   `json:"cost,omitempty" yaml:"cost,omitempty"`
}

type Settings struct {
	Enabled                bool                      `json:"enabled" yaml:"enabled"`
	Provider               string                    `json:"provider" yaml:"provider"`
	Configs                map[string]ProviderConfig `json:"configs" yaml:"configs"`
	DefaultTargetLanguages []string                  `json:"defaultTargetLanguages" yaml:"defaultTargetLanguages"`
	CacheEnabled           bool                      `json:"cacheEnabled" yaml:"cacheEnabled"`
	// CacheExpiry is in hours.
	CacheExpiry float64        `json:"cacheExpiry" yaml:"cacheExpiry"`
	History     []HistoryEntry `json:"history" yaml:"history"`
}

func DefaultSettings() Settings {
	return Settings{
		Enabled:                false,
		Configs:                map[string]ProviderConfig{},
		DefaultTargetLanguages: []string{"en", "zh"},
		CacheEnabled:           true,
		CacheExpiry:            DefaultCacheExpiry,
		History:                []HistoryEntry{},
	}
}

func (s Settings) clone() Settings {
	out := s
	out.Configs = make(map[string]ProviderConfig, len(s.Configs))
	for id, c := range s.Configs {
		out.Configs[id] = c
	}
	out.DefaultTargetLanguages = append([]string{}, s.DefaultTargetLanguages...)
	out.History = append([]HistoryEntry{}, s.History...)
	return out
}

// normalize defaults absent collections, resolves provider kinds and caps history.
func (s *Settings) normalize(historyLimit int) {
	if s.Configs == nil {
		s.Configs = map[string]ProviderConfig{}
	}
	for id, c := range s.Configs {
		s.Configs[id] = c.Resolve()
	}
	if s.DefaultTargetLanguages == nil {
		s.DefaultTargetLanguages = []string{}
	}
	if s.History == nil {
		s.History = []HistoryEntry{}
	}
	if s.CacheExpiry < 0 {
		s.CacheExpiry = 0
	}
	if historyLimit > 0 && len(s.History) > historyLimit {
		s.History = s.History[:historyLimit]
	}
}

// EstimateTokens approximates token usage as one token per four characters.
func EstimateTokens(text string) int {
	n := len([]rune(text))
	return (n + 3) / 4
}

type ProviderStats struct {
	Count  int     `json:"count" yaml:"count"`
	Tokens int     `json:"tokens" yaml:"tokens"`
	Cost   float64 `json:"cost" yaml:"cost"`
}

type Statistics struct {
	TotalTranslations int                      `json:"totalTranslations" yaml:"totalTranslations"`
	TotalTokens       int                      `json:"totalTokens" yaml:"totalTokens"`
	TotalCost         float64                  `json:"totalCost" yaml:"totalCost"`
	ByProvider        map[string]ProviderStats `json:"byProvider" yaml:"byProvider"`
	ByLanguage        map[string]int           `json:"byLanguage" yaml:"byLanguage"`
}

func computeStatistics(history []HistoryEntry) Statistics {
	st := Statistics{
		TotalTranslations: len(history),
		ByProvider:        map[string]ProviderStats{},
		ByLanguage:        map[string]int{},
	}
	for _, h := range history {
		st.TotalTokens += h.TokenUsed
		st.TotalCost += h.Cost
		ps := st.ByProvider[h.Provider]
		ps.Count++
		ps.Tokens += h.TokenUsed
		ps.Cost += h.Cost
		st.ByProvider[h.Provider] = ps
		st.ByLanguage[h.TargetLang]++
	}
	return st
}
