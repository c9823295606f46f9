package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	UpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renamebot_updates_total",
			Help: "Inputs handled by the operation state machine.",
		},
		[]string{"input"},
	)

	QuotaRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "renamebot_quota_rejections_total",
			Help: "Files rejected at intake because of the daily limit.",
		},
	)

	StaleWritesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "renamebot_stale_operation_writes_total",
			Help: "Operation writes dropped because a newer operation was stored.",
		},
	)

	TransfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renamebot_transfers_total",
			Help: "Finished transfer pipelines by outcome.",
		},
		[]string{"status"},
	)

	TransferBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renamebot_transfer_bytes_total",
			Help: "Bytes moved by transfer pipelines.",
		},
		[]string{"phase"},
	)

	TransferDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "renamebot_transfer_duration_seconds",
			Help:    "Wall time of transfer pipelines.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"kind"},
	)

	ActiveTransfers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "renamebot_active_transfers",
			Help: "Transfer pipelines currently running.",
		},
	)

	ThumbnailSourceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renamebot_thumbnail_source_total",
			Help: "Which tier supplied the thumbnail of an upload.",
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(
		UpdatesTotal,
		QuotaRejectionsTotal,
		StaleWritesTotal,
		TransfersTotal,
		TransferBytesTotal,
		TransferDuration,
		ActiveTransfers,
		ThumbnailSourceTotal,
	)
}
