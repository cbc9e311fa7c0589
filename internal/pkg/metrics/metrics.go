package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "beacon"

// Ingest results used as the "result" label.
const (
	ResultReceived        = "received"
	ResultRecorded        = "recorded"
	ResultRecordFailed    = "record_failed"
	ResultMalformed       = "malformed"
	ResultMissingDeviceID = "missing_device_id"
	ResultInsufficient    = "insufficient_fields"
)

var (
	// IngestTotal counts ingestions by mode and outcome. Modes outside the
	// known set are reported as OTHER.
	IngestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_total",
			Help:      "Telemetry submissions by mode and result.",
		},
		[]string{"transport", "mode", "result"},
	)

	IngestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Time from submission to acknowledgement.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"transport"},
	)

	PersistFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Event store appends that failed or timed out.",
		},
	)

	// BroadcastDroppedTotal counts messages skipped for a peer whose queue was full or closed.
	BroadcastDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_dropped_total",
			Help:      "Live messages dropped per peer role.",
		},
		[]string{"role"},
	)

	// BroadcastSupersededTotal counts broadcasts skipped because a newer
	// record of the same device had already been fanned out.
	BroadcastSupersededTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_superseded_total",
			Help:      "Broadcasts skipped in favour of a newer record of the same device.",
		},
	)

	LivePeers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_peers",
			Help:      "Registered live peers by role.",
		},
		[]string{"role"},
	)

	RelayTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_total",
			Help:      "Relayed commands by result.",
		},
		[]string{"command", "result"},
	)

	MirrorErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_errors_total",
			Help:      "Broadcast mirror write failures.",
		},
		[]string{"sink"},
	)

	SeededDevices = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "seeded_devices",
			Help:      "Devices whose state was loaded from the event store at startup.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		IngestTotal,
		IngestLatency,
		PersistFailuresTotal,
		BroadcastDroppedTotal,
		BroadcastSupersededTotal,
		LivePeers,
		RelayTotal,
		MirrorErrorsTotal,
		SeededDevices,
	)
}

// ObserveIngest records one ingestion outcome.
func ObserveIngest(transport, mode, result string, elapsed time.Duration) {
	IngestTotal.WithLabelValues(transport, mode, result).Inc()
	IngestLatency.WithLabelValues(transport).Observe(elapsed.Seconds())
}
