package translation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"iprompt/internal/providers"
	"iprompt/internal/providers/registry"
	"iprompt/internal/ratelimit"
)

type fakeProvider struct {
	calls atomic.Int32
	fail  map[string]bool
}

func (f *fakeProvider) ID() string { return "fake" }
func (f *fakeProvider) Name() string { return "Fake" }
func (f *fakeProvider) SupportedLanguages() []string { return []string{"en", "zh", "fr"} }
func (f *fakeProvider) ValidateConfig(cfg ProviderConfig) bool {
	return cfg.APIKey != ""
}

func (f *fakeProvider) Translate(_ context.Context, text, lang string, _ ProviderConfig) (string, error) {
	f.calls.Add(1)
	if f.fail[lang] {
		return "", errors.New("upstream down")
	}
	return "[" + lang + "] " + text, nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestManager(t *testing.T, p Provider, cfg Config) (*Manager, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)}
	cfg.Now = clk.Now
	m := NewManager(cfg)
	m.RegisterProvider(p)
	return m, clk
}

func configure(m *Manager, id string, cfg ProviderConfig) {
	m.UpdateSettings(func(s *Settings) {
		s.Provider = id
		s.Configs[id] = cfg
	})
}

func TestDefaultSettings(t *testing.T) {
	m := NewManager(Config{})
	s := m.Settings()
	if s.Enabled || s.Provider != "" || !s.CacheEnabled || s.CacheExpiry != 24 {
		t.Fatalf("unexpected defaults %#v", s)
	}
	if strings.Join(s.DefaultTargetLanguages, ",") != "en,zh" {
		t.Fatalf("unexpected default languages %v", s.DefaultTargetLanguages)
	}
	if len(s.History) != 0 || s.Configs == nil {
		t.Fatalf("expected empty history and configs")
	}
}

func TestTranslateErrorsBeforeIO(t *testing.T) {
	p := &fakeProvider{}
	m, _ := newTestManager(t, p, Config{})

	if _, err := m.Translate(context.Background(), "hi", "fr"); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("expected ErrNoProvider, got %v", err)
	}

	m.SetCurrentProvider("fake")
	if _, err := m.Translate(context.Background(), "hi", "fr"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}

	configure(m, "fake", ProviderConfig{Provider: "openai/gpt-4"})
	if _, err := m.Translate(context.Background(), "hi", "fr"); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if p.calls.Load() != 0 {
		t.Fatalf("expected no upstream calls, got %d", p.calls.Load())
	}
}

func TestSetCurrentProviderIgnoresUnknown(t *testing.T) {
	m, _ := newTestManager(t, &fakeProvider{}, Config{})
	if m.SetCurrentProvider("nope") {
		t.Fatalf("expected unknown provider to be rejected")
	}
	if _, ok := m.CurrentProvider(); ok {
		t.Fatalf("expected no current provider")
	}
}

func TestTranslateCachesWithinExpiry(t *testing.T) {
	p := &fakeProvider{}
	m, clk := newTestManager(t, p, Config{})
	configure(m, "fake", ProviderConfig{Provider: "openai/gpt-4", APIKey: "k"})

	first, err := m.Translate(context.Background(), "Hello", "fr")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	clk.Advance(time.Hour)
	second, err := m.Translate(context.Background(), "Hello", "fr")
	if err != nil {
		t.Fatalf("translate again: %v", err)
	}
	if first != second || p.calls.Load() != 1 {
		t.Fatalf("expected cached result with one call, got %q %q calls=%d", first, second, p.calls.Load())
	}
	if len(m.History(0)) != 1 {
		t.Fatalf("cache hit must not add history")
	}

	clk.Advance(24 * time.Hour)
	if _, err := m.Translate(context.Background(), "Hello", "fr"); err != nil {
		t.Fatalf("translate after expiry: %v", err)
	}
	if p.calls.Load() != 2 {
		t.Fatalf("expected a fresh call after expiry, got %d", p.calls.Load())
	}
}

func TestTranslateCacheDisabled(t *testing.T) {
	p := &fakeProvider{}
	m, _ := newTestManager(t, p, Config{})
	configure(m, "fake", ProviderConfig{Provider: "openai/gpt-4", APIKey: "k"})
	m.UpdateSettings(func(s *Settings) { s.CacheEnabled = false })

	for i := 0; i < 2; i++ {
		if _, err := m.Translate(context.Background(), "Hello", "fr"); err != nil {
			t.Fatalf("translate: %v", err)
		}
	}
	if p.calls.Load() != 2 {
		t.Fatalf("expected two calls, got %d", p.calls.Load())
	}
}

func TestHistoryCappedAndNewestFirst(t *testing.T) {
	p := &fakeProvider{}
	m, _ := newTestManager(t, p, Config{})
	configure(m, "fake", ProviderConfig{Provider: "openai/gpt-4", APIKey: "k"})

	for i := 0; i < 101; i++ {
		if _, err := m.Translate(context.Background(), fmt.Sprintf("text %d", i), "zh"); err != nil {
			t.Fatalf("translate %d: %v", i, err)
		}
	}
	h := m.History(0)
	if len(h) != 100 {
		t.Fatalf("expected 100 entries, got %d", len(h))
	}
	if h[0].SourceText != "text 100" || h[99].SourceText != "text 1" {
		t.Fatalf("unexpected order: first=%q last=%q", h[0].SourceText, h[99].SourceText)
	}
	if got := m.History(5); len(got) != 5 || got[0].SourceText != "text 100" {
		t.Fatalf("unexpected limited history %v", got)
	}
	if h[0].TokenUsed != EstimateTokens("text 100"+"[zh] text 100") {
		t.Fatalf("unexpected token estimate %d", h[0].TokenUsed)
	}
}

func TestTranslateBatchIsolatesFailures(t *testing.T) {
	p := &fakeProvider{fail: map[string]bool{"zh": true}}
	m, _ := newTestManager(t, p, Config{})
	configure(m, "fake", ProviderConfig{Provider: "openai/gpt-4", APIKey: "k"})

	out := m.TranslateBatch(context.Background(), "Hi", []string{"en", "zh", "fr"})
	if len(out) != 3 {
		t.Fatalf("expected all languages in result, got %v", out)
	}
	if out["zh"] != "" || out["en"] != "[en] Hi" || out["fr"] != "[fr] Hi" {
		t.Fatalf("unexpected batch result %v", out)
	}
}

func TestStatistics(t *testing.T) {
	m := NewManager(Config{Settings: &Settings{
		Provider: "litellm",
		History: []HistoryEntry{
			{Provider: "litellm", TargetLang: "zh", TokenUsed: 10, Cost: 0.5},
			{Provider: "litellm", TargetLang: "en", TokenUsed: 4},
			{Provider: "other", TargetLang: "zh", TokenUsed: 1},
		},
	}})
	st := m.Statistics()
	if st.TotalTranslations != 3 || st.TotalTokens != 15 || st.TotalCost != 0.5 {
		t.Fatalf("unexpected totals %#v", st)
	}
	if st.ByProvider["litellm"].Count != 2 || st.ByProvider["litellm"].Tokens != 14 {
		t.Fatalf("unexpected provider stats %#v", st.ByProvider)
	}
	if st.ByLanguage["zh"] != 2 || st.ByLanguage["en"] != 1 {
		t.Fatalf("unexpected language stats %#v", st.ByLanguage)
	}

	m.ClearHistory()
	if m.Statistics().TotalTranslations != 0 {
		t.Fatalf("expected cleared history")
	}
}

func TestSubscribeFiresOnChange(t *testing.T) {
	p := &fakeProvider{}
	m, _ := newTestManager(t, p, Config{})
	var n atomic.Int32
	m.Subscribe(func() { n.Add(1) })

	configure(m, "fake", ProviderConfig{Provider: "openai/gpt-4", APIKey: "k"})
	if _, err := m.Translate(context.Background(), "x", "en"); err != nil {
		t.Fatalf("translate: %v", err)
	}
	m.ApplySettings(DefaultSettings())
	if n.Load() != 2 {
		t.Fatalf("expected two notifications, got %d", n.Load())
	}
}

func TestTranslateRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	p := &fakeProvider{}
	m, _ := newTestManager(t, p, Config{Limiter: ratelimit.NewHourly(rdb, "test", 1)})
	configure(m, "fake", ProviderConfig{Provider: "openai/gpt-4", APIKey: "k"})

	if _, err := m.Translate(context.Background(), "one", "en"); err != nil {
		t.Fatalf("first translate: %v", err)
	}
	// cache hits are not counted
	if _, err := m.Translate(context.Background(), "one", "en"); err != nil {
		t.Fatalf("cached translate: %v", err)
	}
	if _, err := m.Translate(context.Background(), "two", "en"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if p.calls.Load() != 1 {
		t.Fatalf("expected one upstream call, got %d", p.calls.Load())
	}
}

func TestResolve(t *testing.T) {
	cases := []struct {
		in        ProviderConfig
		kind, mdl string
	}{
		{ProviderConfig{Provider: "openai/gpt-4"}, registry.KindOpenAI, "gpt-4"},
		{ProviderConfig{Provider: "anthropic/claude-3-haiku"}, registry.KindAnthropic, "claude-3-haiku"},
		{ProviderConfig{Provider: "gemini/gemini-pro"}, registry.KindGemini, "gemini-pro"},
		{ProviderConfig{Provider: "deepseek/deepseek-chat"}, registry.KindOpenAI, "deepseek/deepseek-chat"},
		{ProviderConfig{Provider: "custom", CustomModel: "anthropic/claude-x"}, registry.KindAnthropic, "claude-x"},
		{ProviderConfig{Kind: "claude", Model: "m"}, registry.KindAnthropic, "m"},
	}
	for _, tc := range cases {
		got := tc.in.Resolve()
		if got.Kind != tc.kind || got.Model != tc.mdl {
			t.Fatalf("Resolve(%#v) = %q %q, want %q %q", tc.in, got.Kind, got.Model, tc.kind, tc.mdl)
		}
	}
}

func TestChatProviderValidateConfig(t *testing.T) {
	p := NewChatProvider(ChatConfig{})
	cases := []struct {
		cfg  ProviderConfig
		want bool
	}{
		{ProviderConfig{Provider: "openai/gpt-4", APIKey: "k"}, true},
		{ProviderConfig{Provider: "openai/gpt-4"}, false},
		{ProviderConfig{APIKey: "k"}, false},
		{ProviderConfig{Provider: "custom", APIKey: "k"}, false},
		{ProviderConfig{Provider: "custom", CustomModel: "my-model", APIKey: "k"}, true},
	}
	for _, tc := range cases {
		if got := p.ValidateConfig(tc.cfg); got != tc.want {
			t.Fatalf("ValidateConfig(%#v) = %v, want %v", tc.cfg, got, tc.want)
		}
	}
}

func TestSystemPromptAndMaxTokens(t *testing.T) {
	def := SystemPrompt("", "zh")
	if !strings.Contains(def, "translate the following text to Chinese. \n") {
		t.Fatalf("unexpected default prompt %q", def)
	}
	if got := SystemPrompt("Say it in {targetLang}", "ja"); got != "Say it in Japanese" {
		t.Fatalf("unexpected custom prompt %q", got)
	}
	if got := MaxTokens("héllo"); got != 15 {
		t.Fatalf("expected 15, got %d", got)
	}
	if got := MaxTokens(strings.Repeat("a", 5000)); got != 4096 {
		t.Fatalf("expected cap, got %d", got)
	}
}

type recordingClient struct {
	req providers.ChatRequest
}

func (c *recordingClient) Chat(_ context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	c.req = req
	return providers.ChatResponse{Text: "  Bonjour \n"}, nil
}

func TestChatProviderBuildsResolvedClient(t *testing.T) {
	client := &recordingClient{}
	var opts registry.BuildOptions
	p := NewChatProvider(ChatConfig{Build: func(o registry.BuildOptions) (providers.Provider, error) {
		opts = o
		return client, nil
	}})

	cfg := ProviderConfig{Provider: "anthropic/claude-3-haiku", APIKey: "k", BaseURL: "http://proxy"}.Resolve()
	got, err := p.Translate(context.Background(), "Hello", "fr", cfg)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if got != "Bonjour" {
		t.Fatalf("expected trimmed text, got %q", got)
	}
	if opts.Kind != registry.KindAnthropic || opts.APIKey != "k" || opts.BaseURL != "http://proxy" {
		t.Fatalf("unexpected build options %#v", opts)
	}
	if client.req.Model != "claude-3-haiku" || client.req.Temperature != 0.3 || client.req.MaxTokens != 15 {
		t.Fatalf("unexpected request %#v", client.req)
	}
	if client.req.UserPrompt != "Hello" || !strings.Contains(client.req.SystemPrompt, "French") {
		t.Fatalf("unexpected prompts %#v", client.req)
	}
}

func TestChatProviderOpenAICompatibleEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Model != "deepseek/deepseek-chat" {
			t.Errorf("expected full model name, got %q", body.Model)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"你好"}}]}`))
	}))
	defer srv.Close()

	m := NewManager(Config{})
	m.RegisterProvider(NewChatProvider(ChatConfig{HTTPClient: srv.Client()}))
	configure(m, ChatProviderID, ProviderConfig{Provider: "deepseek/deepseek-chat", APIKey: "k", BaseURL: srv.URL})

	got, err := m.Translate(context.Background(), "Hello", "zh")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if got != "你好" {
		t.Fatalf("unexpected translation %q", got)
	}
}
