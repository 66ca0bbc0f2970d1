// Package metrics exposes Prometheus instrumentation for the ledger daemon.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BlocksMined = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dujyo_ledger_blocks_mined_total",
		Help: "Blocks mined and appended to the chain.",
	})

	MiningDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dujyo_ledger_mining_duration_seconds",
		Help:    "Wall-clock duration of nonce searches.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})

	Transactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dujyo_ledger_transactions_total",
		Help: "Submitted transactions by result (accepted|rejected).",
	}, []string{"result"})

	MempoolDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dujyo_ledger_mempool_depth",
		Help: "Transactions waiting in the pending pool.",
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dujyo_ledger_events_published_total",
		Help: "Chain events published to the broker by result (ok|fail).",
	}, []string{"result"})

	EventQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dujyo_ledger_event_queue_depth",
		Help: "Chain events waiting in the publisher queue.",
	})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
