package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"iprompt/internal/metrics"
	"iprompt/internal/prompts"
)

type staticSource []prompts.OutdatedRef

func (s staticSource) Outdated() []prompts.OutdatedRef { return s }

type fakeTranslator struct {
	mu       sync.Mutex
	seen     map[string]bool
	inflight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeTranslator) TranslatePrompt(_ context.Context, id, lang string) (prompts.Translation, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	f.mu.Lock()
	f.seen[id+"/"+lang] = true
	f.mu.Unlock()
	if lang == "fail" {
		return prompts.Translation{}, errors.New("upstream down")
	}
	return prompts.Translation{Title: "t", Content: "c"}, nil
}

func testMetrics() *metrics.Metrics {
	counter := func(name string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: name})
	}
	return &metrics.Metrics{
		RetranslateDone:   counter("done"),
		RetranslateFailed: counter("failed"),
	}
}

func TestRunOnceProcessesAllWithBoundedSlots(t *testing.T) {
	src := staticSource{
		{PromptID: "a", Lang: "en"},
		{PromptID: "a", Lang: "fail"},
		{PromptID: "b", Lang: "zh"},
		{PromptID: "c", Lang: "ja"},
		{PromptID: "d", Lang: "fr"},
	}
	tr := &fakeTranslator{seen: map[string]bool{}}
	w := New(Config{Source: src, Translator: tr, Concurrency: 2, Logger: zerolog.Nop(), Metrics: testMetrics()})

	res := w.RunOnce(context.Background())
	if res.Processed != 4 || res.Failed != 1 {
		t.Fatalf("unexpected result %#v", res)
	}
	if len(tr.seen) != 5 {
		t.Fatalf("expected every ref visited, got %v", tr.seen)
	}
	if tr.peak.Load() > 2 {
		t.Fatalf("expected at most 2 concurrent translations, got %d", tr.peak.Load())
	}
}

func TestRunOnceNothingOutdated(t *testing.T) {
	w := New(Config{Source: staticSource{}, Translator: &fakeTranslator{seen: map[string]bool{}}, Metrics: testMetrics()})
	if res := w.RunOnce(context.Background()); res != (Result{}) {
		t.Fatalf("expected empty result, got %#v", res)
	}
}
