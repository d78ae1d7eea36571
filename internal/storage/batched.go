package storage

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const DefaultBatchWindow = 50 * time.Millisecond

type BatchConfig struct {
	Window time.Duration
	Logger zerolog.Logger
}

// Batched coalesces Save calls. Each Save replaces the pending document and restarts
// the window; the inner adapter sees one write per quiet window with the last document.
type Batched struct {
	inner  Adapter
	window time.Duration
	logger zerolog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending *Document
	timer   *time.Timer
	closed  bool
}

func NewBatched(inner Adapter, cfg BatchConfig) *Batched {
	if cfg.Window <= 0 {
		cfg.Window = DefaultBatchWindow
	}
	return &Batched{
		inner:  inner,
		window: cfg.Window,
		logger: cfg.Logger,
	}
}

func (b *Batched) Unwrap() Adapter {
	return b.inner
}

// Save queues doc and returns. After Close it writes through.
func (b *Batched) Save(ctx context.Context, doc *Document) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return b.inner.Save(ctx, doc)
	}
	b.pending = doc
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.window, b.fire)
	b.mu.Unlock()
	return nil
}

func (b *Batched) fire() {
	if err := b.Flush(context.Background()); err != nil {
		b.logger.Error().Err(err).Msg("batched write failed")
	}
}

// Flush writes the pending document, if any, before returning. A failed write stays
// pending and is retried by the next Flush or Close.
func (b *Batched) Flush(ctx context.Context) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	b.mu.Lock()
	doc := b.pending
	b.pending = nil
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()

	if doc == nil {
		return nil
	}
	if err := b.inner.Save(ctx, doc); err != nil {
		// keep the document for the next Flush or Close unless a newer one is queued
		b.mu.Lock()
		if b.pending == nil {
			b.pending = doc
		}
		b.mu.Unlock()
		return err
	}
	return nil
}

func (b *Batched) Load(ctx context.Context) (*Document, error) {
	if err := b.Flush(ctx); err != nil {
		return nil, err
	}
	return b.inner.Load(ctx)
}

func (b *Batched) Export(ctx context.Context) ([]byte, error) {
	if err := b.Flush(ctx); err != nil {
		return nil, err
	}
	return b.inner.Export(ctx)
}

// Import writes any pending document before the import replaces it.
func (b *Batched) Import(ctx context.Context, r io.Reader) (*Document, error) {
	if err := b.Flush(ctx); err != nil {
		return nil, err
	}
	return b.inner.Import(ctx, r)
}

func (b *Batched) Usage(ctx context.Context) (Usage, error) {
	if err := b.Flush(ctx); err != nil {
		return Usage{}, err
	}
	return b.inner.Usage(ctx)
}

func (b *Batched) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return b.Flush(ctx)
}
