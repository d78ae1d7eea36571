package persist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"iprompt/internal/crypto"
	"iprompt/internal/prompts"
	"iprompt/internal/storage"
	"iprompt/internal/translation"
)

func ToRecords(list []prompts.Prompt) []storage.PromptRecord {
	out := make([]storage.PromptRecord, 0, len(list))
	for _, p := range list {
		rec := storage.PromptRecord{
			ID:        p.ID,
			Title:     p.Title,
			Content:   p.Content,
			Category:  p.Category,
			Tags:      append([]string(nil), p.Tags...),
			CreatedAt: storage.Stamp(p.CreatedAt),
			UpdatedAt: storage.Stamp(p.UpdatedAt),
			Versions:  make([]storage.VersionRecord, 0, len(p.Versions)),
		}
		for _, v := range p.Versions {
			rec.Versions = append(rec.Versions, storage.VersionRecord{
				ID:        v.ID,
				Content:   v.Content,
				CreatedAt: storage.Stamp(v.CreatedAt),
			})
		}
		if len(p.Translations) > 0 {
			rec.Translations = make(map[string]storage.TranslationRecord, len(p.Translations))
			for lang, t := range p.Translations {
				rec.Translations[lang] = storage.TranslationRecord{
					Title:        t.Title,
					Content:      t.Content,
					TranslatedAt: storage.Stamp(t.TranslatedAt),
					Provider:     t.Provider,
					IsOutdated:   t.Outdated,
				}
			}
		}
		out = append(out, rec)
	}
	return out
}

// FromRecords converts stored records; unparsable timestamps become now.
func FromRecords(list []storage.PromptRecord, now time.Time) []prompts.Prompt {
	out := make([]prompts.Prompt, 0, len(list))
	for _, rec := range list {
		p := prompts.Prompt{
			ID:        rec.ID,
			Title:     rec.Title,
			Content:   rec.Content,
			Category:  rec.Category,
			Tags:      append([]string{}, rec.Tags...),
			CreatedAt: rec.CreatedAt.Time(now),
			UpdatedAt: rec.UpdatedAt.Time(now),
			Versions:  make([]prompts.Version, 0, len(rec.Versions)),
		}
		for _, v := range rec.Versions {
			p.Versions = append(p.Versions, prompts.Version{
				ID:        v.ID,
				Content:   v.Content,
				CreatedAt: v.CreatedAt.Time(now),
			})
		}
		if len(rec.Translations) > 0 {
			p.Translations = make(map[string]prompts.Translation, len(rec.Translations))
			for lang, t := range rec.Translations {
				p.Translations[lang] = prompts.Translation{
					Title:        t.Title,
					Content:      t.Content,
					TranslatedAt: t.TranslatedAt.Time(now),
					Provider:     t.Provider,
					Outdated:     t.IsOutdated,
				}
			}
		}
		out = append(out, p)
	}
	return out
}

// encodeSettings marshals s with every API key sealed under its provider id.
func encodeSettings(s translation.Settings, sealer *crypto.Manager) (json.RawMessage, error) {
	if sealer != nil {
		for id, c := range s.Configs {
			if c.APIKey == "" || crypto.IsSealed(c.APIKey) {
				continue
			}
			sealed, err := sealer.Seal(c.APIKey, id)
			if err != nil {
				return nil, fmt.Errorf("seal api key for %s: %w", id, err)
			}
			c.APIKey = sealed
			s.Configs[id] = c
		}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal translation settings: %w", err)
	}
	return b, nil
}

// decodeSettings starts from the defaults so absent fields keep them. Keys that cannot
// be opened are cleared and reported in the returned list.
func decodeSettings(raw json.RawMessage, sealer *crypto.Manager) (translation.Settings, []string, error) {
	s := translation.DefaultSettings()
	if b := bytes.TrimSpace(raw); len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return s, nil, nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return translation.DefaultSettings(), nil, fmt.Errorf("decode translation settings: %w", err)
	}
	var unopened []string
	for id, c := range s.Configs {
		plain, err := sealer.Open(c.APIKey, id)
		if err != nil {
			unopened = append(unopened, id)
			plain = ""
		}
		c.APIKey = plain
		s.Configs[id] = c
	}
	return s, unopened, nil
}
