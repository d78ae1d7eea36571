package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"iprompt/internal/persist"
	"iprompt/internal/prompts"
	"iprompt/internal/storage"
	"iprompt/internal/translation"
	"iprompt/internal/worker"
)

var ErrPromptNotFound = errors.New("prompt not found")

type Deps struct {
	Store      *prompts.Store
	Adapter    storage.Adapter
	Translator *translation.Manager
	Persister  *persist.Persister
	Worker     *worker.Worker
	// Legacy is optional; when set, Start migrates the legacy entry before hydrating.
	Legacy      storage.LegacySource
	LegacyKey   string
	SeedSamples bool
	Logger      zerolog.Logger
	Now         func() time.Time
	// Closers run after the persister is closed, in order.
	Closers []func() error
}

// App holds the state shared by every command: the record store, the storage adapter,
// the persister that links them and the translation manager.
type App struct {
	Store      *prompts.Store
	Adapter    storage.Adapter
	Translator *translation.Manager
	Persister  *persist.Persister
	Worker     *worker.Worker

	legacy      storage.LegacySource
	legacyKey   string
	seedSamples bool
	logger      zerolog.Logger
	now         func() time.Time
	closers     []func() error
}

func New(d Deps) *App {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.LegacyKey == "" {
		d.LegacyKey = storage.LegacyKey
	}
	a := &App{
		Store:       d.Store,
		Adapter:     d.Adapter,
		Translator:  d.Translator,
		Persister:   d.Persister,
		Worker:      d.Worker,
		legacy:      d.Legacy,
		legacyKey:   d.LegacyKey,
		seedSamples: d.SeedSamples,
		logger:      d.Logger,
		now:         d.Now,
		closers:     d.Closers,
	}
	if a.Worker == nil {
		a.Worker = worker.New(worker.Config{Source: a.Store, Translator: a, Logger: d.Logger})
	}
	return a
}

// Start migrates legacy data when the adapter is empty, hydrates the store and seeds
// the sample prompts on first run.
func (a *App) Start(ctx context.Context) error {
	if a.legacy != nil {
		migrated, err := storage.MigrateLegacy(ctx, a.Adapter, a.legacy, a.legacyKey)
		if err != nil {
			a.logger.Error().Err(err).Msg("legacy migration failed")
		} else if migrated {
			a.logger.Info().Str("key", a.legacyKey).Msg("legacy data migrated")
		}
	}

	found := a.Persister.Hydrate(ctx)
	if !found && a.seedSamples && a.Store.Len() == 0 {
		n := a.SeedSamples()
		a.logger.Info().Int("prompts", n).Msg("sample prompts added")
	}
	return nil
}

// Close flushes pending state and releases the backends.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Persister.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TranslatePrompt translates the title and content of a prompt into lang and stores
// the result as a fresh entry.
func (a *App) TranslatePrompt(ctx context.Context, id, lang string) (prompts.Translation, error) {
	p, ok := a.Store.ByID(id)
	if !ok {
		return prompts.Translation{}, fmt.Errorf("%w: %s", ErrPromptNotFound, id)
	}

	var title, content string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		title, err = a.Translator.Translate(gctx, p.Title, lang)
		return err
	})
	g.Go(func() error {
		var err error
		content, err = a.Translator.Translate(gctx, p.Content, lang)
		return err
	})
	if err := g.Wait(); err != nil {
		return prompts.Translation{}, fmt.Errorf("translate %s to %s: %w", id, lang, err)
	}

	t := prompts.Translation{
		Title:        title,
		Content:      content,
		TranslatedAt: a.now(),
		Provider:     a.providerLabel(),
	}
	if !a.Store.SetTranslation(id, lang, t) {
		return prompts.Translation{}, fmt.Errorf("%w: %s", ErrPromptNotFound, id)
	}
	a.logger.Info().Str("prompt_id", id).Str("lang", lang).Msg("prompt translated")
	return t, nil
}

func (a *App) providerLabel() string {
	s := a.Translator.Settings()
	if cfg, ok := s.Configs[s.Provider]; ok && cfg.Selection() != "" {
		return cfg.Selection()
	}
	return s.Provider
}

// Retranslate refreshes every outdated translation.
func (a *App) Retranslate(ctx context.Context) worker.Result {
	return a.Worker.RunOnce(ctx)
}

// Export writes pending changes and returns the stored document as indented JSON.
func (a *App) Export(ctx context.Context) ([]byte, error) {
	if err := a.Persister.Flush(ctx); err != nil {
		return nil, err
	}
	return a.Adapter.Export(ctx)
}

func (a *App) Import(ctx context.Context, r io.Reader) (*storage.Document, error) {
	if err := a.Persister.Flush(ctx); err != nil {
		return nil, err
	}
	return a.Persister.Import(ctx, r)
}

func (a *App) Usage(ctx context.Context) (storage.Usage, error) {
	if err := a.Persister.Flush(ctx); err != nil {
		return storage.Usage{}, err
	}
	return a.Adapter.Usage(ctx)
}

func (a *App) CreateBackup(ctx context.Context) (string, error) {
	if err := a.Persister.Flush(ctx); err != nil {
		return "", err
	}
	return storage.CreateBackup(ctx, a.Adapter)
}

func (a *App) ListBackups(ctx context.Context) ([]storage.BackupInfo, error) {
	return storage.ListBackups(ctx, a.Adapter)
}

// RestoreBackup replaces the stored document with a backup and reloads it.
func (a *App) RestoreBackup(ctx context.Context, id string) error {
	if err := a.Persister.Flush(ctx); err != nil {
		return err
	}
	if err := storage.RestoreBackup(ctx, a.Adapter, id); err != nil {
		return err
	}
	doc, err := a.Adapter.Load(ctx)
	if err != nil {
		return fmt.Errorf("reload restored document: %w", err)
	}
	if doc != nil {
		a.Persister.Deserialize(doc)
	}
	return nil
}

// Migrate runs the legacy migration on demand.
func (a *App) Migrate(ctx context.Context) (bool, error) {
	if a.legacy == nil {
		return false, errors.New("no legacy source configured")
	}
	if err := a.Persister.Flush(ctx); err != nil {
		return false, err
	}
	migrated, err := storage.MigrateLegacy(ctx, a.Adapter, a.legacy, a.legacyKey)
	if err != nil || !migrated {
		return migrated, err
	}
	doc, err := a.Adapter.Load(ctx)
	if err != nil {
		return true, fmt.Errorf("reload migrated document: %w", err)
	}
	if doc != nil {
		a.Persister.Deserialize(doc)
	}
	return true, nil
}
