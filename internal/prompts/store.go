package prompts

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Config struct {
	// MaxVersions caps the version list per prompt; 0 keeps every version.
	MaxVersions int
	Now         func() time.Time
	NewID       func() string
}

// Store is the in-memory prompt collection. Persistence hooks in through Subscribe.
type Store struct {
	mu          sync.RWMutex
	prompts     []Prompt
	search      string
	category    string
	hasCategory bool
	hydrated    bool

	maxVersions int
	now         func() time.Time
	newID       func() string

	listenersMu sync.Mutex
	listeners   []func()
}

func NewStore(cfg Config) *Store {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.MaxVersions < 0 {
		cfg.MaxVersions = 0
	}
	return &Store{
		prompts:     make([]Prompt, 0),
		maxVersions: cfg.MaxVersions,
		now:         cfg.Now,
		newID:       cfg.NewID,
	}
}

// Subscribe registers fn to run after every mutation of the prompt collection.
func (s *Store) Subscribe(fn func()) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) changed() {
	s.listenersMu.Lock()
	fns := append([]func(){}, s.listeners...)
	s.listenersMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (s *Store) Add(d Draft) Prompt {
	now := s.now()
	p := Prompt{
		ID:        s.newID(),
		Title:     d.Title,
		Content:   d.Content,
		Category:  d.Category,
		Tags:      append([]string(nil), d.Tags...),
		CreatedAt: now,
		UpdatedAt: now,
		Versions:  []Version{},
	}
	s.mu.Lock()
	s.prompts = append(s.prompts, p)
	s.mu.Unlock()
	s.changed()
	return p.clone()
}

// Update merges patch into the prompt with the given id. It reports false when no
// such prompt exists; that is not an error.
func (s *Store) Update(id string, patch Patch) bool {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.prompts[idx] = s.apply(s.prompts[idx], patch)
	s.mu.Unlock()
	s.changed()
	return true
}

func (s *Store) apply(p Prompt, patch Patch) Prompt {
	old := p
	out := p.clone()

	if patch.Content != nil && *patch.Content != "" && *patch.Content != old.Content {
		out.Versions = append(out.Versions, Version{
			ID:        s.newID(),
			Content:   old.Content,
			CreatedAt: old.UpdatedAt,
		})
		if s.maxVersions > 0 && len(out.Versions) > s.maxVersions {
			out.Versions = out.Versions[len(out.Versions)-s.maxVersions:]
		}
	}
	if patch.Title != nil {
		out.Title = *patch.Title
	}
	if patch.Content != nil {
		out.Content = *patch.Content
	}
	if patch.Category != nil {
		out.Category = *patch.Category
	}
	if patch.SetTags {
		out.Tags = append([]string(nil), patch.Tags...)
	}

	if out.Title != old.Title || out.Content != old.Content {
		for lang, t := range out.Translations {
			t.Outdated = true
			out.Translations[lang] = t
		}
	}

	out.UpdatedAt = s.now()
	return out
}

func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.prompts = append(s.prompts[:idx], s.prompts[idx+1:]...)
	s.mu.Unlock()
	s.changed()
	return true
}

// RestoreVersion makes a stored version the current content. The replaced content is
// itself kept as a new version.
func (s *Store) RestoreVersion(id, versionID string) bool {
	s.mu.RLock()
	idx := s.indexOf(id)
	var content string
	found := false
	if idx >= 0 {
		for _, v := range s.prompts[idx].Versions {
			if v.ID == versionID {
				content, found = v.Content, true
				break
			}
		}
	}
	s.mu.RUnlock()
	if !found {
		return false
	}
	return s.Update(id, Patch{Content: &content})
}

// SetTranslation stores or overwrites the entry for lang. Callers pass a fresh entry,
// so a re-translated language is no longer outdated.
func (s *Store) SetTranslation(id, lang string, t Translation) bool {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	p := s.prompts[idx].clone()
	if p.Translations == nil {
		p.Translations = make(map[string]Translation)
	}
	p.Translations[lang] = t
	s.prompts[idx] = p
	s.mu.Unlock()
	s.changed()
	return true
}

func (s *Store) DeleteTranslation(id, lang string) bool {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	if _, ok := s.prompts[idx].Translations[lang]; !ok {
		s.mu.Unlock()
		return false
	}
	p := s.prompts[idx].clone()
	delete(p.Translations, lang)
	s.prompts[idx] = p
	s.mu.Unlock()
	s.changed()
	return true
}

func (s *Store) SetSearchQuery(q string) {
	s.mu.Lock()
	s.search = q
	s.mu.Unlock()
}

func (s *Store) SetSelectedCategory(category string) {
	s.mu.Lock()
	s.category, s.hasCategory = category, true
	s.mu.Unlock()
}

func (s *Store) ClearSelectedCategory() {
	s.mu.Lock()
	s.category, s.hasCategory = "", false
	s.mu.Unlock()
}

// Filtered applies the search query and category selection. It returns nothing until
// the store has been hydrated.
func (s *Store) Filtered() []Prompt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hydrated {
		return []Prompt{}
	}

	q := strings.ToLower(s.search)
	out := make([]Prompt, 0, len(s.prompts))
	for _, p := range s.prompts {
		if !matchesSearch(p, q) || !s.matchesCategory(p) {
			continue
		}
		out = append(out, p.clone())
	}
	return out
}

func matchesSearch(p Prompt, q string) bool {
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(p.Title), q) || strings.Contains(strings.ToLower(p.Content), q) {
		return true
	}
	for _, tag := range p.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

func (s *Store) matchesCategory(p Prompt) bool {
	if !s.hasCategory || s.category == "" {
		return true
	}
	if s.category == Uncategorized && p.Category == "" {
		return true
	}
	return p.Category == s.category
}

func (s *Store) ByID(id string) (Prompt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return Prompt{}, false
	}
	return s.prompts[idx].clone(), true
}

// All returns a copy of the whole collection in insertion order.
func (s *Store) All() []Prompt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Prompt, len(s.prompts))
	for i, p := range s.prompts {
		out[i] = p.clone()
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.prompts)
}

// Categories lists distinct non-empty categories in first-seen order.
func (s *Store) Categories() []string {
	return DeriveCategories(s.All())
}

func DeriveCategories(list []Prompt) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, p := range list {
		if p.Category == "" {
			continue
		}
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		out = append(out, p.Category)
	}
	return out
}

// Outdated lists every translation flagged as outdated.
func (s *Store) Outdated() []OutdatedRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]OutdatedRef, 0)
	for _, p := range s.prompts {
		for lang, t := range p.Translations {
			if t.Outdated {
				out = append(out, OutdatedRef{PromptID: p.ID, Lang: lang})
			}
		}
	}
	return out
}

// Replace swaps the whole collection, as done by hydration and import.
func (s *Store) Replace(list []Prompt) {
	cp := make([]Prompt, len(list))
	for i, p := range list {
		cp[i] = p.clone()
		if cp[i].Versions == nil {
			cp[i].Versions = []Version{}
		}
	}
	s.mu.Lock()
	s.prompts = cp
	s.mu.Unlock()
	s.changed()
}

func (s *Store) Hydrated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hydrated
}

func (s *Store) MarkHydrated() {
	s.mu.Lock()
	s.hydrated = true
	s.mu.Unlock()
}

func (s *Store) indexOf(id string) int {
	for i := range s.prompts {
		if s.prompts[i].ID == id {
			return i
		}
	}
	return -1
}
