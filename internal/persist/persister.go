package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"iprompt/internal/crypto"
	"iprompt/internal/metrics"
	"iprompt/internal/prompts"
	"iprompt/internal/storage"
	"iprompt/internal/translation"
)

const DefaultThrottle = time.Second

type Config struct {
	Store   *prompts.Store
	Adapter storage.Adapter
	// Translator is optional; without it translation settings are not persisted.
	Translator *translation.Manager
	// Sealer encrypts API keys at rest when set.
	Sealer   *crypto.Manager
	Throttle time.Duration
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// Persister mirrors the record store and translation settings into a storage adapter.
// Nothing is written before hydration completes; afterwards every change schedules a
// save and writes are throttled to one per window with a trailing write of the latest
// state.
type Persister struct {
	store      *prompts.Store
	adapter    storage.Adapter
	translator *translation.Manager
	sealer     *crypto.Manager
	throttle   time.Duration
	logger     zerolog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time

	writeMu sync.Mutex

	mu       sync.Mutex
	hydrated bool
	dirty    bool
	lastSave time.Time
	settings json.RawMessage

	hydrateOnce sync.Once
	found       bool
	wake        chan struct{}
	stop        chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func New(cfg Config) *Persister {
	if cfg.Throttle <= 0 {
		cfg.Throttle = DefaultThrottle
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	p := &Persister{
		store:      cfg.Store,
		adapter:    cfg.Adapter,
		translator: cfg.Translator,
		sealer:     cfg.Sealer,
		throttle:   cfg.Throttle,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		now:        cfg.Now,
		wake:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
	}
	p.store.Subscribe(p.changed)
	if p.translator != nil {
		p.translator.Subscribe(p.changed)
	}
	return p
}

// Start hydrates in the background. The returned channel is closed once the store is
// hydrated.
func (p *Persister) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Hydrate(ctx)
	}()
	return done
}

// Hydrate loads the stored document into memory and starts the save loop. A load
// failure is logged and the store is still marked hydrated with its current contents.
// It reports whether a stored document was found.
func (p *Persister) Hydrate(ctx context.Context) bool {
	p.hydrateOnce.Do(func() {
		doc, err := p.adapter.Load(ctx)
		switch {
		case err != nil:
			p.logger.Error().Err(err).Msg("hydration failed, starting empty")
		case doc != nil:
			p.found = true
			p.Deserialize(doc)
			p.logger.Info().Int("prompts", len(doc.Prompts)).Msg("state hydrated")
		default:
			p.logger.Info().Msg("no stored state")
		}

		p.store.MarkHydrated()
		p.mu.Lock()
		p.hydrated = true
		p.mu.Unlock()
		if p.metrics != nil {
			p.metrics.Hydrations.Inc()
		}

		p.wg.Add(1)
		go p.loop()
	})
	return p.found
}

func (p *Persister) changed() {
	p.mu.Lock()
	if !p.hydrated {
		p.mu.Unlock()
		return
	}
	p.dirty = true
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Persister) loop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			return
		case <-p.wake:
		}

		p.mu.Lock()
		wait := time.Until(p.lastSave.Add(p.throttle))
		p.mu.Unlock()
		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-p.stop:
				t.Stop()
				return
			case <-t.C:
			}
		}

		if err := p.Flush(context.Background()); err != nil {
			p.logger.Error().Err(err).Msg("save failed")
		}
	}
}

// Flush writes the current state now if anything changed since the last write.
func (p *Persister) Flush(ctx context.Context) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.Lock()
	if !p.dirty {
		p.mu.Unlock()
		return nil
	}
	p.dirty = false
	p.mu.Unlock()

	doc, err := p.Serialize()
	if err == nil {
		err = p.adapter.Save(ctx, doc)
	}
	p.mu.Lock()
	p.lastSave = time.Now()
	if err != nil {
		p.dirty = true
	}
	p.mu.Unlock()

	if err != nil {
		if p.metrics != nil {
			p.metrics.StorageSaveFailures.Inc()
		}
		return fmt.Errorf("save document: %w", err)
	}
	if p.metrics != nil {
		p.metrics.StorageSaves.Inc()
	}
	return nil
}

// Close stops the save loop and writes any pending state, including writes queued in
// a batching adapter.
func (p *Persister) Close(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
	if err := p.Flush(ctx); err != nil {
		return err
	}
	if f, ok := p.adapter.(interface{ Flush(context.Context) error }); ok {
		return f.Flush(ctx)
	}
	return nil
}

// Serialize builds the storage document for the current in-memory state. Categories
// are derived from the records.
func (p *Persister) Serialize() (*storage.Document, error) {
	list := p.store.All()
	doc := &storage.Document{
		Version:      storage.FormatVersion,
		Prompts:      ToRecords(list),
		Categories:   prompts.DeriveCategories(list),
		LastModified: storage.FormatTime(p.now()),
	}

	p.mu.Lock()
	doc.Settings = append(json.RawMessage(nil), p.settings...)
	p.mu.Unlock()

	if p.translator != nil {
		raw, err := encodeSettings(p.translator.Settings(), p.sealer)
		if err != nil {
			return nil, err
		}
		doc.TranslationSettings = raw
	}
	return doc, nil
}

// Deserialize replaces the in-memory state with doc. Absent collections become empty
// and unreadable timestamps fall back to now.
func (p *Persister) Deserialize(doc *storage.Document) {
	p.mu.Lock()
	p.settings = append(json.RawMessage(nil), doc.Settings...)
	p.mu.Unlock()

	if p.translator != nil {
		s, unopened, err := decodeSettings(doc.TranslationSettings, p.sealer)
		if err != nil {
			p.logger.Warn().Err(err).Msg("translation settings reset to defaults")
		}
		for _, id := range unopened {
			p.logger.Warn().Str("provider", id).Msg("api key could not be opened, cleared")
		}
		p.translator.ApplySettings(s)
	}
	p.store.Replace(FromRecords(doc.Prompts, p.now()))
}

// Import hands r to the adapter and replaces the in-memory state only when the
// adapter accepted and stored it.
func (p *Persister) Import(ctx context.Context, r io.Reader) (*storage.Document, error) {
	doc, err := p.adapter.Import(ctx, r)
	if err != nil {
		return nil, err
	}
	p.Deserialize(doc)
	return doc, nil
}

// Adapter returns the underlying storage adapter.
func (p *Persister) Adapter() storage.Adapter {
	return p.adapter
}
