package persist

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"iprompt/internal/crypto"
	"iprompt/internal/prompts"
	"iprompt/internal/storage"
	"iprompt/internal/translation"
)

type memAdapter struct {
	mu      sync.Mutex
	doc     *storage.Document
	saves   []*storage.Document
	loadErr error
}

func (m *memAdapter) Load(context.Context) (*storage.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.doc, nil
}

func (m *memAdapter) Save(_ context.Context, doc *storage.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc = doc
	m.saves = append(m.saves, doc)
	return nil
}

func (m *memAdapter) Export(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.doc == nil {
		return nil, storage.ErrNoData
	}
	return json.MarshalIndent(m.doc, "", "  ")
}

func (m *memAdapter) Import(ctx context.Context, r io.Reader) (*storage.Document, error) {
	doc, err := storage.DecodeDocument(r, time.Now())
	if err != nil {
		return nil, err
	}
	return doc, m.Save(ctx, doc)
}

func (m *memAdapter) Usage(context.Context) (storage.Usage, error) {
	return storage.Usage{}, nil
}

func (m *memAdapter) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saves)
}

func (m *memAdapter) last() *storage.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doc
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func storedDoc() *storage.Document {
	return &storage.Document{
		Version:    storage.FormatVersion,
		Categories: []string{"dev"},
		Settings:   json.RawMessage(`{"theme":"dark"}`),
		TranslationSettings: json.RawMessage(`{
			"enabled": true,
			"provider": "litellm",
			"configs": {"litellm": {"provider": "anthropic/claude-3-haiku", "apiKey": "ak"}},
			"history": []
		}`),
		Prompts: []storage.PromptRecord{{
			ID:        "p1",
			Title:     "Review",
			Content:   "Review this code",
			Category:  "dev",
			Tags:      []string{"code"},
			CreatedAt: "2026-01-01T00:00:00.000Z",
			UpdatedAt: "not a time",
			Translations: map[string]storage.TranslationRecord{
				"zh": {Title: "审查", Content: "审查代码", TranslatedAt: "2026-01-02T00:00:00.000Z", IsOutdated: true},
			},
		}},
	}
}

func TestHydrateAppliesStoredState(t *testing.T) {
	now := time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)
	a := &memAdapter{doc: storedDoc()}
	store := prompts.NewStore(prompts.Config{})
	tr := translation.NewManager(translation.Config{})
	p := New(Config{Store: store, Adapter: a, Translator: tr, Now: func() time.Time { return now }})
	defer p.Close(context.Background())

	<-p.Start(context.Background())

	if !store.Hydrated() {
		t.Fatalf("expected hydrated store")
	}
	got, ok := store.ByID("p1")
	if !ok {
		t.Fatalf("expected p1 after hydration")
	}
	if !got.UpdatedAt.Equal(now) {
		t.Fatalf("expected bad timestamp to fall back to now, got %v", got.UpdatedAt)
	}
	if len(got.Versions) != 0 {
		t.Fatalf("expected empty versions, got %#v", got.Versions)
	}
	if !got.Translations["zh"].Outdated {
		t.Fatalf("expected outdated flag to survive")
	}

	s := tr.Settings()
	if !s.Enabled || s.Provider != "litellm" {
		t.Fatalf("unexpected settings %#v", s)
	}
	if c := s.Configs["litellm"]; c.Kind != "anthropic" || c.Model != "claude-3-haiku" {
		t.Fatalf("expected resolved config, got %#v", c)
	}
	if strings.Join(s.DefaultTargetLanguages, ",") != "en,zh" || !s.CacheEnabled {
		t.Fatalf("expected absent fields to keep defaults, got %#v", s)
	}
	if a.saveCount() != 0 {
		t.Fatalf("hydration must not write, got %d saves", a.saveCount())
	}
}

func TestHydrateLoadFailureStillHydrates(t *testing.T) {
	a := &memAdapter{loadErr: errors.New("disk gone")}
	store := prompts.NewStore(prompts.Config{})
	p := New(Config{Store: store, Adapter: a})
	defer p.Close(context.Background())

	p.Hydrate(context.Background())
	if !store.Hydrated() || store.Len() != 0 {
		t.Fatalf("expected empty hydrated store")
	}
}

func TestHydrateKeepsRecordsWithUnreadableTimestamps(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)
	bridge := storage.NewOSBridge(t.TempDir())
	raw := `{"version":"1.0.0","categories":[],"prompts":[` +
		`{"id":"keep","title":"Keep","content":"x","createdAt":{"$date":"2026-01-01"},"updatedAt":"2026-01-01T00:00:00.000Z"}]}`
	if err := bridge.WriteFile(ctx, storage.DataFileName, raw); err != nil {
		t.Fatalf("write data file: %v", err)
	}
	fs := storage.NewFileStore(bridge, storage.FileConfig{})

	store := prompts.NewStore(prompts.Config{})
	p := New(Config{Store: store, Adapter: fs, Throttle: 10 * time.Millisecond, Now: func() time.Time { return now }})
	if !p.Hydrate(ctx) {
		t.Fatalf("expected stored document to be found")
	}
	kept, ok := store.ByID("keep")
	if !ok || !kept.CreatedAt.Equal(now) {
		t.Fatalf("expected keep with fallback createdAt, got %#v", kept)
	}

	added := store.Add(prompts.Draft{Title: "New", Content: "y"})
	if err := p.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	doc, err := fs.Load(ctx)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	ids := map[string]bool{}
	for _, r := range doc.Prompts {
		ids[r.ID] = true
	}
	if len(ids) != 2 || !ids["keep"] || !ids[added.ID] {
		t.Fatalf("expected keep and %s persisted, got %v", added.ID, ids)
	}
}

func TestNoSaveBeforeHydration(t *testing.T) {
	a := &memAdapter{}
	store := prompts.NewStore(prompts.Config{})
	p := New(Config{Store: store, Adapter: a, Throttle: 10 * time.Millisecond})

	store.Add(prompts.Draft{Title: "early", Content: "x"})
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if a.saveCount() != 0 {
		t.Fatalf("expected no writes before hydration, got %d", a.saveCount())
	}
}

func TestThrottledSaveWritesLatest(t *testing.T) {
	a := &memAdapter{}
	store := prompts.NewStore(prompts.Config{})
	p := New(Config{Store: store, Adapter: a, Throttle: 100 * time.Millisecond})
	defer p.Close(context.Background())
	p.Hydrate(context.Background())

	for i := 0; i < 5; i++ {
		store.Add(prompts.Draft{Title: "t", Content: "c", Category: "dev"})
	}
	waitFor(t, func() bool {
		d := a.last()
		return d != nil && len(d.Prompts) == 5
	})
	if n := a.saveCount(); n < 1 || n > 2 {
		t.Fatalf("expected one or two writes, got %d", n)
	}
	if got := a.last().Categories; len(got) != 1 || got[0] != "dev" {
		t.Fatalf("expected derived categories, got %v", got)
	}
}

func TestCloseFlushesPending(t *testing.T) {
	a := &memAdapter{}
	store := prompts.NewStore(prompts.Config{})
	p := New(Config{Store: store, Adapter: a, Throttle: time.Hour})
	p.Hydrate(context.Background())

	store.Add(prompts.Draft{Title: "one", Content: "1"})
	store.Add(prompts.Draft{Title: "two", Content: "2"})
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if d := a.last(); d == nil || len(d.Prompts) != 2 {
		t.Fatalf("expected final write with two prompts, got %#v", d)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	a := &memAdapter{doc: storedDoc()}
	store := prompts.NewStore(prompts.Config{})
	tr := translation.NewManager(translation.Config{})
	p := New(Config{Store: store, Adapter: a, Translator: tr})
	p.Hydrate(context.Background())
	defer p.Close(context.Background())

	doc, err := p.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if string(doc.Settings) != `{"theme":"dark"}` {
		t.Fatalf("expected opaque settings preserved, got %s", doc.Settings)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded, err := storage.DecodeDocument(bytes.NewReader(raw), time.Now())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	store2 := prompts.NewStore(prompts.Config{})
	tr2 := translation.NewManager(translation.Config{})
	p2 := New(Config{Store: store2, Adapter: &memAdapter{}, Translator: tr2})
	p2.Deserialize(decoded)

	want, _ := store.ByID("p1")
	got, ok := store2.ByID("p1")
	if !ok {
		t.Fatalf("expected p1 after round trip")
	}
	if got.Title != want.Title || got.Content != want.Content || got.Category != want.Category {
		t.Fatalf("fields differ: %#v vs %#v", got, want)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) || got.Translations["zh"].Content != "审查代码" {
		t.Fatalf("timestamps or translations differ: %#v", got)
	}
	if tr2.Settings().Configs["litellm"].APIKey != "ak" {
		t.Fatalf("expected api key to round trip")
	}
}

func TestSealedAPIKeys(t *testing.T) {
	key, _ := base64.StdEncoding.DecodeString("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=")
	sealer, err := crypto.NewManager("k1", map[string][]byte{"k1": key})
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}

	a := &memAdapter{}
	store := prompts.NewStore(prompts.Config{})
	tr := translation.NewManager(translation.Config{})
	p := New(Config{Store: store, Adapter: a, Translator: tr, Sealer: sealer, Throttle: time.Hour})
	p.Hydrate(context.Background())

	tr.UpdateSettings(func(s *translation.Settings) {
		s.Provider = translation.ChatProviderID
		s.Configs[translation.ChatProviderID] = translation.ProviderConfig{Provider: "openai/gpt-4", APIKey: "sk-secret"}
	})
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	raw := string(a.last().TranslationSettings)
	if strings.Contains(raw, "sk-secret") || !strings.Contains(raw, crypto.SealedPrefix) {
		t.Fatalf("expected sealed api key, got %s", raw)
	}
	if tr.Settings().Configs[translation.ChatProviderID].APIKey != "sk-secret" {
		t.Fatalf("in-memory key must stay plaintext")
	}

	tr2 := translation.NewManager(translation.Config{})
	p2 := New(Config{Store: prompts.NewStore(prompts.Config{}), Adapter: a, Translator: tr2, Sealer: sealer})
	p2.Hydrate(context.Background())
	defer p2.Close(context.Background())
	if got := tr2.Settings().Configs[translation.ChatProviderID].APIKey; got != "sk-secret" {
		t.Fatalf("expected opened key, got %q", got)
	}

	tr3 := translation.NewManager(translation.Config{})
	p3 := New(Config{Store: prompts.NewStore(prompts.Config{}), Adapter: a, Translator: tr3})
	p3.Hydrate(context.Background())
	defer p3.Close(context.Background())
	if got := tr3.Settings().Configs[translation.ChatProviderID].APIKey; got != "" {
		t.Fatalf("expected unopenable key to be cleared, got %q", got)
	}
}

func TestImportReplacesOnlyOnSuccess(t *testing.T) {
	a := &memAdapter{}
	store := prompts.NewStore(prompts.Config{})
	p := New(Config{Store: store, Adapter: a, Throttle: time.Hour})
	p.Hydrate(context.Background())
	defer p.Close(context.Background())
	store.Add(prompts.Draft{Title: "keep", Content: "x"})

	if _, err := p.Import(context.Background(), strings.NewReader(`{"prompts":[]}`)); !errors.Is(err, storage.ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument, got %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("failed import must not touch the store")
	}

	payload := `{"version":"1.0.0","prompts":[{"id":"i1","title":"Imported","content":"c","createdAt":1767225600000,"updatedAt":"2026-01-01T00:00:00.000Z"}]}`
	if _, err := p.Import(context.Background(), strings.NewReader(payload)); err != nil {
		t.Fatalf("import: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected replaced collection, got %d", store.Len())
	}
	got, ok := store.ByID("i1")
	if !ok || !got.CreatedAt.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected imported record %#v", got)
	}
}
