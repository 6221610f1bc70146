// Package metrics holds the Prometheus collectors of the mention engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registry every collector below is registered with.
var Registry = prometheus.NewRegistry()

var (
	Reconciliations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mentions",
		Name:      "reconciliations_total",
		Help:      "Flat-text edits reconciled onto a document.",
	})
	DroppedMentions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mentions",
		Name:      "dropped_total",
		Help:      "Mentions demoted to text because their anchor was edited.",
	})
	InsertedMentions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mentions",
		Name:      "inserted_total",
		Help:      "Mentions committed from a completion, by category.",
	}, []string{"category"})
	Searches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mentions",
		Name:      "searches_total",
		Help:      "Entity searches by outcome (ok, error, stale).",
	}, []string{"outcome"})
	SearchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mentions",
		Name:      "search_duration_seconds",
		Help:      "Latency of entity searches.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	OpenDocuments = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mentions",
		Name:      "open_documents",
		Help:      "Documents currently open in the editor.",
	})
)

func init() {
	Registry.MustRegister(
		Reconciliations,
		DroppedMentions,
		InsertedMentions,
		Searches,
		SearchDuration,
		OpenDocuments,
	)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
