package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	StorageSaves        prometheus.Counter
	StorageSaveFailures prometheus.Counter
	Hydrations          prometheus.Counter
	TranslationsTotal   prometheus.Counter
	TranslationCacheHit prometheus.Counter
	TranslationFailures prometheus.Counter
	RetranslateDone     prometheus.Counter
	RetranslateFailed   prometheus.Counter
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			StorageSaves: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "iprompt",
				Name:      "storage_saves_total",
				Help:      "Total documents written to the storage backend",
			}),
			StorageSaveFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "iprompt",
				Name:      "storage_save_failures_total",
				Help:      "Total failed document writes",
			}),
			Hydrations: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "iprompt",
				Name:      "storage_hydrations_total",
				Help:      "Total hydrations from the storage backend",
			}),
			TranslationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "iprompt",
				Name:      "translations_upstream_total",
				Help:      "Total translations served by an upstream provider",
			}),
			TranslationCacheHit: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "iprompt",
				Name:      "translations_cache_hits_total",
				Help:      "Total translations served from history",
			}),
			TranslationFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "iprompt",
				Name:      "translations_failed_total",
				Help:      "Total translation attempts that failed",
			}),
			RetranslateDone: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "iprompt",
				Name:      "retranslate_processed_total",
				Help:      "Total outdated translations refreshed",
			}),
			RetranslateFailed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "iprompt",
				Name:      "retranslate_failed_total",
				Help:      "Total outdated translations that could not be refreshed",
			}),
		}
		prometheus.MustRegister(
			global.StorageSaves,
			global.StorageSaveFailures,
			global.Hydrations,
			global.TranslationsTotal,
			global.TranslationCacheHit,
			global.TranslationFailures,
			global.RetranslateDone,
			global.RetranslateFailed,
		)
	})
	return global
}
