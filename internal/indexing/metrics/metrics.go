package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsProcessed tracks processed logs by outcome
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_events_processed_total",
			Help: "Total number of event logs processed",
		},
		[]string{"result"},
	)

	// PollCycles tracks polling cycles by outcome
	PollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_poll_cycles_total",
			Help: "Total number of polling cycles",
		},
		[]string{"status"},
	)

	// PollCycleDuration tracks polling cycle duration
	PollCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "indexer_poll_cycle_duration_seconds",
			Help:    "Polling cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// RPCCallsTotal tracks RPC calls per provider and method
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_rpc_calls_total",
			Help: "Total number of RPC calls",
		},
		[]string{"provider", "method"},
	)

	// RPCErrorsTotal tracks RPC errors per provider
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"provider", "error_type"},
	)

	// RPCLatency tracks RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "indexer_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "method"},
	)

	// ChainLatestBlock tracks the latest block height reported by the node
	ChainLatestBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexer_chain_latest_block",
			Help: "Latest block height of the chain",
		},
	)

	// IndexerLatestBlock tracks the highest block seen in the ledger
	IndexerLatestBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexer_latest_block",
			Help: "Highest block number recorded in the event ledger",
		},
	)

	// BackfillEvents tracks backfill outcomes
	BackfillEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_backfill_events_total",
			Help: "Total number of events handled by backfill runs",
		},
		[]string{"status"},
	)
)
