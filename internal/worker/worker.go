package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"iprompt/internal/metrics"
	"iprompt/internal/prompts"
)

// Source lists translation entries that are out of date.
type Source interface {
	Outdated() []prompts.OutdatedRef
}

// Translator refreshes one translation entry of a prompt.
type Translator interface {
	TranslatePrompt(ctx context.Context, promptID, lang string) (prompts.Translation, error)
}

type Config struct {
	Source      Source
	Translator  Translator
	Concurrency int
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics
}

// Worker re-translates outdated entries with a fixed number of slots.
type Worker struct {
	source      Source
	translator  Translator
	concurrency int
	logger      zerolog.Logger
	metrics     *metrics.Metrics
}

type Result struct {
	Processed int `json:"processed" yaml:"processed"`
	Failed    int `json:"failed" yaml:"failed"`
}

func New(cfg Config) *Worker {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Worker{
		source:      cfg.Source,
		translator:  cfg.Translator,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
		metrics:     m,
	}
}

// RunOnce refreshes every entry outdated at call time and returns when all slots are
// idle or ctx is done.
func (w *Worker) RunOnce(ctx context.Context) Result {
	refs := w.source.Outdated()
	if len(refs) == 0 {
		return Result{}
	}

	jobs := make(chan prompts.OutdatedRef)
	var (
		mu  sync.Mutex
		res Result
		wg  sync.WaitGroup
	)
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			log := w.logger.With().Int("slot", slot).Logger()
			for ref := range jobs {
				_, err := w.translator.TranslatePrompt(ctx, ref.PromptID, ref.Lang)
				mu.Lock()
				if err != nil {
					res.Failed++
				} else {
					res.Processed++
				}
				mu.Unlock()
				if err != nil {
					w.metrics.RetranslateFailed.Inc()
					log.Error().Err(err).Str("prompt_id", ref.PromptID).Str("lang", ref.Lang).Msg("retranslation failed")
					continue
				}
				w.metrics.RetranslateDone.Inc()
			}
		}(i)
	}

feed:
	for _, ref := range refs {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- ref:
		}
	}
	close(jobs)
	wg.Wait()

	w.logger.Info().Int("processed", res.Processed).Int("failed", res.Failed).Msg("retranslation pass done")
	return res
}

// Start runs a pass every interval until ctx is cancelled.
func (w *Worker) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		w.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
