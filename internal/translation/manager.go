package translation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"iprompt/internal/metrics"
)

var (
	ErrNoProvider    = errors.New("no translation provider selected")
	ErrNotConfigured = errors.New("translation provider not configured")
	ErrInvalidConfig = errors.New("translation provider configuration is invalid")
	ErrRateLimited   = errors.New("translation rate limit exceeded")
)

// Provider is a translation backend registered with the Manager.
type Provider interface {
	ID() string
	Name() string
	SupportedLanguages() []string
	ValidateConfig(cfg ProviderConfig) bool
	Translate(ctx context.Context, text, targetLang string, cfg ProviderConfig) (string, error)
}

// Limiter is consulted before every upstream call; cache hits are not counted.
type Limiter interface {
	Allow(ctx context.Context, scope string, now time.Time) (allowed bool, used int64, resetAt time.Time, err error)
}

type Config struct {
	Settings     *Settings
	Limiter      Limiter
	HistoryLimit int
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics
	Now          func() time.Time
	NewID        func() string
}

type Manager struct {
	mu        sync.Mutex
	providers map[string]Provider
	order     []string
	settings  Settings
	listeners []func()

	limiter      Limiter
	historyLimit int
	logger       zerolog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
	newID        func() string
}

func NewManager(cfg Config) *Manager {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	s := DefaultSettings()
	if cfg.Settings != nil {
		s = cfg.Settings.clone()
	}
	s.normalize(cfg.HistoryLimit)

	return &Manager{
		providers:    make(map[string]Provider),
		settings:     s,
		limiter:      cfg.Limiter,
		historyLimit: cfg.HistoryLimit,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		now:          cfg.Now,
		newID:        cfg.NewID,
	}
}

// Subscribe registers fn to run after every settings change made through the Manager.
func (m *Manager) Subscribe(fn func()) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

func (m *Manager) notify() {
	m.mu.Lock()
	ls := append([]func(){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range ls {
		fn()
	}
}

// RegisterProvider adds p, replacing any provider with the same id.
func (m *Manager) RegisterProvider(p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.providers[p.ID()]; !ok {
		m.order = append(m.order, p.ID())
	}
	m.providers[p.ID()] = p
}

// Providers returns registered providers in registration order.
func (m *Manager) Providers() []Provider {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Provider, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.providers[id])
	}
	return out
}

func (m *Manager) Provider(id string) (Provider, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[id]
	return p, ok
}

// CurrentProvider returns the selected provider, if it is registered.
func (m *Manager) CurrentProvider() (Provider, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[m.settings.Provider]
	return p, ok
}

// SetCurrentProvider selects a registered provider. Unknown ids are ignored.
func (m *Manager) SetCurrentProvider(id string) bool {
	m.mu.Lock()
	if _, ok := m.providers[id]; !ok {
		m.mu.Unlock()
		return false
	}
	m.settings.Provider = id
	m.mu.Unlock()
	m.notify()
	return true
}

// Settings returns a copy of the current settings.
func (m *Manager) Settings() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings.clone()
}

// UpdateSettings applies fn to a copy of the settings and stores the result.
func (m *Manager) UpdateSettings(fn func(s *Settings)) {
	m.mu.Lock()
	next := m.settings.clone()
	fn(&next)
	next.normalize(m.historyLimit)
	m.settings = next
	m.mu.Unlock()
	m.notify()
}

// ApplySettings replaces the settings wholesale without notifying subscribers. It is
// used when state is loaded from storage.
func (m *Manager) ApplySettings(s Settings) {
	next := s.clone()
	m.mu.Lock()
	next.normalize(m.historyLimit)
	m.settings = next
	m.mu.Unlock()
}

// Translate returns text in targetLang. Selection and configuration errors are
// reported before any network I/O. When caching is on, a history entry with the same
// text, language and provider inside the expiry window is returned without a call.
func (m *Manager) Translate(ctx context.Context, text, targetLang string) (string, error) {
	m.mu.Lock()
	providerID := m.settings.Provider
	p, ok := m.providers[providerID]
	if !ok {
		m.mu.Unlock()
		return "", ErrNoProvider
	}
	cfg, ok := m.settings.Configs[providerID]
	if !ok {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrNotConfigured, p.Name())
	}
	if !p.ValidateConfig(cfg) {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrInvalidConfig, p.Name())
	}
	if cached, hit := m.cachedLocked(text, targetLang, providerID); hit {
		m.mu.Unlock()
		if m.metrics != nil {
			m.metrics.TranslationCacheHit.Inc()
		}
		return cached, nil
	}
	m.mu.Unlock()

	if m.limiter != nil {
		allowed, used, resetAt, err := m.limiter.Allow(ctx, providerID, m.now())
		if err != nil {
			return "", fmt.Errorf("rate limit: %w", err)
		}
		if !allowed {
			m.logger.Warn().Str("provider", providerID).Int64("used", used).Time("reset_at", resetAt).Msg("translation rate limited")
			return "", fmt.Errorf("%w: retry after %s", ErrRateLimited, resetAt.Format(time.RFC3339))
		}
	}

	started := m.now()
	translated, err := p.Translate(ctx, text, targetLang, cfg)
	if err != nil {
		if m.metrics != nil {
			m.metrics.TranslationFailures.Inc()
		}
		m.logger.Error().Err(err).Str("provider", providerID).Str("target_lang", targetLang).Msg("translation failed")
		return "", err
	}
	if m.metrics != nil {
		m.metrics.TranslationsTotal.Inc()
	}
	m.logger.Debug().
		Str("provider", providerID).
		Str("target_lang", targetLang).
		Dur("latency", m.now().Sub(started)).
		Msg("translation done")

	entry := HistoryEntry{
		ID:             m.newID(),
		Timestamp:      m.now(),
		Provider:       providerID,
		SourceText:     text,
		TargetLang:     targetLang,
		TranslatedText: translated,
		TokenUsed:      EstimateTokens(text + translated),
	}
	m.mu.Lock()
	m.settings.History = append([]HistoryEntry{entry}, m.settings.History...)
	if len(m.settings.History) > m.historyLimit {
		m.settings.History = m.settings.History[:m.historyLimit]
	}
	m.mu.Unlock()
	m.notify()

	return translated, nil
}

func (m *Manager) cachedLocked(text, targetLang, providerID string) (string, bool) {
	if !m.settings.CacheEnabled {
		return "", false
	}
	expiry := time.Duration(m.settings.CacheExpiry * float64(time.Hour))
	now := m.now()
	for _, h := range m.settings.History {
		if h.SourceText != text || h.TargetLang != targetLang || h.Provider != providerID {
			continue
		}
		if now.Sub(h.Timestamp) < expiry {
			return h.TranslatedText, true
		}
	}
	return "", false
}

// TranslateBatch translates text into every language concurrently. A language that
// fails maps to the empty string.
func (m *Manager) TranslateBatch(ctx context.Context, text string, langs []string) map[string]string {
	out := make(map[string]string, len(langs))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, lang := range langs {
		wg.Add(1)
		go func(lang string) {
			defer wg.Done()
			res, err := m.Translate(ctx, text, lang)
			if err != nil {
				m.logger.Warn().Err(err).Str("target_lang", lang).Msg("batch translation failed")
				res = ""
			}
			mu.Lock()
			out[lang] = res
			mu.Unlock()
		}(lang)
	}
	wg.Wait()
	return out
}

// History returns the newest limit entries, or all of them when limit is not positive.
func (m *Manager) History(limit int) []HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.settings.History
	if limit > 0 && limit < len(h) {
		h = h[:limit]
	}
	return append([]HistoryEntry{}, h...)
}

func (m *Manager) ClearHistory() {
	m.mu.Lock()
	m.settings.History = []HistoryEntry{}
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) Statistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return computeStatistics(m.settings.History)
}
