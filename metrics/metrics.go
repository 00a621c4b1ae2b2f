package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecordsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatharvest_records_fetched_total",
			Help: "Total number of raw records fetched, by source",
		},
		[]string{"source"},
	)

	FetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatharvest_fetch_failures_total",
			Help: "Total number of source fetches that failed after retries",
		},
		[]string{"source"},
	)

	RecordsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "threatharvest_records_processed_total",
			Help: "Total number of records classified and scored",
		},
	)

	ClassificationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "threatharvest_classification_failures_total",
			Help: "Total number of records dropped due to classification errors",
		},
	)

	RecordsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatharvest_records_upserted_total",
			Help: "Total number of record upserts, by outcome (inserted or updated)",
		},
		[]string{"outcome"},
	)

	RecordsIntegrated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "threatharvest_records_integrated_total",
			Help: "Total number of records projected into the knowledge base",
		},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatharvest_runs_total",
			Help: "Total number of enrichment passes, by final status",
		},
		[]string{"status"},
	)

	PassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "threatharvest_pass_duration_seconds",
			Help:    "Wall-clock duration of complete enrichment passes",
			Buckets: prometheus.DefBuckets,
		},
	)

	WorkerPoolActiveWorkers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "threatharvest_worker_pool_active_workers",
			Help: "Number of workers in a pool",
		},
		[]string{"pool"},
	)

	WorkerPoolTasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatharvest_worker_pool_tasks_processed_total",
			Help: "Total number of tasks executed by a pool",
		},
		[]string{"pool"},
	)
)
