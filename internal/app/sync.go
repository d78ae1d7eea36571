package app

import (
	"context"
	"errors"
	"fmt"

	"iprompt/internal/persist"
	"iprompt/internal/storage"
)

var ErrNoLegacyData = errors.New("no legacy data found")

type SyncResult struct {
	Added    int `json:"added" yaml:"added"`
	Replaced int `json:"replaced" yaml:"replaced"`
}

// SyncLegacy merges the legacy entry into the current collection: records with a known
// id replace the current one, the rest are appended. The legacy entry is kept.
func (a *App) SyncLegacy(ctx context.Context) (SyncResult, error) {
	if a.legacy == nil {
		return SyncResult{}, errors.New("no legacy source configured")
	}
	raw, found, err := a.legacy.Get(ctx, a.legacyKey)
	if err != nil {
		return SyncResult{}, err
	}
	if !found {
		return SyncResult{}, ErrNoLegacyData
	}
	doc, err := storage.ParseLegacy(raw, a.now())
	if err != nil {
		return SyncResult{}, err
	}

	current := a.Store.All()
	index := make(map[string]int, len(current))
	for i, p := range current {
		index[p.ID] = i
	}

	var res SyncResult
	for _, p := range persist.FromRecords(doc.Prompts, a.now()) {
		if i, ok := index[p.ID]; ok {
			current[i] = p
			res.Replaced++
			continue
		}
		index[p.ID] = len(current)
		current = append(current, p)
		res.Added++
	}
	a.Store.Replace(current)

	if err := a.Persister.Flush(ctx); err != nil {
		return res, fmt.Errorf("save synced state: %w", err)
	}
	a.logger.Info().Int("added", res.Added).Int("replaced", res.Replaced).Msg("legacy data synced")
	return res, nil
}
