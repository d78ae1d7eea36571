package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LegacySource reads the flat key-value entry written by the previous storage scheme.
type LegacySource interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Remove(ctx context.Context, key string) error
}

type RedisLegacy struct {
	client *redis.Client
}

func NewRedisLegacy(client *redis.Client) *RedisLegacy {
	return &RedisLegacy{client: client}
}

func (r *RedisLegacy) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get %q: %w", key, err)
	}
	return v, true, nil
}

func (r *RedisLegacy) Remove(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}

type legacyPayload struct {
	Prompts    json.RawMessage `json:"prompts"`
	Categories []string        `json:"categories"`
}

// ParseLegacy reads a legacy entry, either flat {"prompts": [...]} or wrapped as
// {"state": {"prompts": [...]}}. Categories are derived from the records, followed by any
// listed categories not already present.
func ParseLegacy(raw string, now time.Time) (*Document, error) {
	var outer struct {
		State json.RawMessage `json:"state"`
		legacyPayload
	}
	if err := json.Unmarshal([]byte(raw), &outer); err != nil {
		return nil, fmt.Errorf("parse legacy entry: %w", err)
	}

	payload := outer.legacyPayload
	if len(outer.State) > 0 {
		var inner legacyPayload
		if err := json.Unmarshal(outer.State, &inner); err == nil && len(inner.Prompts) > 0 {
			payload = inner
		}
	}

	doc := Empty(now)
	if len(payload.Prompts) > 0 && payload.Prompts[0] == '[' {
		if err := json.Unmarshal(payload.Prompts, &doc.Prompts); err != nil {
			return nil, fmt.Errorf("parse legacy prompts: %w", err)
		}
	}
	doc.normalize(now)
	doc.Categories = unionCategories(deriveRecordCategories(doc.Prompts), payload.Categories)
	return doc, nil
}

// MigrateLegacy moves the legacy entry under key into target when target holds no
// prompts. The legacy entry is removed only after the new document is written. It
// reports whether a migration happened; a missing entry is a no-op.
func MigrateLegacy(ctx context.Context, target Adapter, source LegacySource, key string) (bool, error) {
	if key == "" {
		key = LegacyKey
	}
	current, err := target.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load target: %w", err)
	}
	if current != nil && len(current.Prompts) > 0 {
		return false, nil
	}

	raw, found, err := source.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	doc, err := ParseLegacy(raw, time.Now())
	if err != nil {
		return false, err
	}
	if current != nil {
		doc.Settings = current.Settings
		doc.TranslationSettings = current.TranslationSettings
	}
	if err := target.Save(ctx, doc); err != nil {
		return false, fmt.Errorf("save migrated document: %w", err)
	}
	if f, ok := target.(flusher); ok {
		if err := f.Flush(ctx); err != nil {
			return false, fmt.Errorf("flush migrated document: %w", err)
		}
	}
	if err := source.Remove(ctx, key); err != nil {
		return true, fmt.Errorf("remove legacy entry: %w", err)
	}
	return true, nil
}

func deriveRecordCategories(list []PromptRecord) []string {
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

func unionCategories(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, c := range list {
			if c == "" {
				continue
			}
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}
