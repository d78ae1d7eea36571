package prompts

import "time"

// Uncategorized selects records without a category in Filtered.
const Uncategorized = "uncategorized"

type Prompt struct {
	ID           string                 `json:"id" yaml:"id"`
	Title        string                 `json:"title" yaml:"title"`
	Content      string                 `json:"content" yaml:"content"`
	Category     string                 `json:"category,omitempty" yaml:"category,omitempty"`
	Tags         []string               `json:"tags,omitempty" yaml:"tags,omitempty"`
	CreatedAt    time.Time              `json:"createdAt" yaml:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt" yaml:"updatedAt"`
	Versions     []Version              `json:"versions" yaml:"versions"`
	Translations map[string]Translation `json:"translations,omitempty" yaml:"translations,omitempty"`
}

// Version is a snapshot of a prompt's content taken before an edit replaced it.
type Version struct {
	ID        string    `json:"id" yaml:"id"`
	Content   string    `json:"content" yaml:"content"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
}

type Translation struct {
	Title        string    `json:"title" yaml:"title"`
	Content      string    `json:"content" yaml:"content"`
	TranslatedAt time.Time `json:"translatedAt" yaml:"translatedAt"`
	Provider     string    `json:"provider,omitempty" yaml:"provider,omitempty"`
	Outdated     bool      `json:"isOutdated" yaml:"isOutdated"`
}

// Draft holds the user-supplied fields of a new prompt.
type Draft struct {
	Title    string   `json:"title" yaml:"title"`
	Content  string   `json:"content" yaml:"content"`
	Category string   `json:"category,omitempty" yaml:"category,omitempty"`
	Tags     []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Patch is a partial update; nil fields are left untouched.
type Patch struct {
	Title    *string
	Content  *string
	Category *string
	Tags     []string
	SetTags  bool
}

type OutdatedRef struct {
	PromptID string `json:"promptId" yaml:"promptId"`
	Lang     string `json:"lang" yaml:"lang"`
}

func (p Prompt) clone() Prompt {
	out := p
	if p.Tags != nil {
		out.Tags = append([]string(nil), p.Tags...)
	}
	if p.Versions != nil {
		out.Versions = append([]Version(nil), p.Versions...)
	}
	if p.Translations != nil {
		out.Translations = make(map[string]Translation, len(p.Translations))
		for lang, t := range p.Translations {
			out.Translations[lang] = t
		}
	}
	return out
}
