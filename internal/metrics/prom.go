package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "qscore_build_info",
			Help:        "Build information",
			ConstLabels: prometheus.Labels{"component": "server"},
		},
		[]string{"date", "sha", "version"},
	)

	handlerInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "qscore_handler_info",
			Help: "Bound scoring handler and execution policy",
		},
		[]string{"handler", "mode", "exclusive"},
	)

	requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qscore_requests_total",
			Help: "Scoring requests by transport and outcome",
		},
		[]string{"transport", "outcome"},
	)

	documents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qscore_documents_scored_total",
			Help: "Documents scored successfully",
		},
	)

	scoringDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qscore_scoring_duration_seconds",
			Help:    "Time spent inside the scoring handler",
			Buckets: prometheus.DefBuckets,
		},
	)

	gateWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qscore_gate_wait_seconds",
			Help:    "Time spent waiting for the exclusive scoring lock",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		},
	)

	connectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "qscore_connections_active",
			Help: "Open client connections",
		},
	)

	connectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qscore_connections_total",
			Help: "Accepted client connections",
		},
	)

	inflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "qscore_requests_inflight",
			Help: "Requests currently being dispatched",
		},
	)
)

// Register registers all qscore collectors with r.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, handlerInfo, requests, documents, scoringDuration, gateWait,
		connectionsActive, connectionsTotal, inflight)
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// SetHandlerInfo records the bound handler.
func SetHandlerInfo(name, mode string, exclusive bool) {
	ex := "false"
	if exclusive {
		ex = "true"
	}
	handlerInfo.WithLabelValues(name, mode, ex).Set(1)
}

// RecordRequest counts one finished request. outcome is "success" or a wire
// error code.
func RecordRequest(transport, outcome string, docs int) {
	requests.WithLabelValues(transport, outcome).Inc()
	if outcome == "success" {
		documents.Add(float64(docs))
	}
}

// ObserveScoring records time spent in the handler.
func ObserveScoring(d time.Duration) { scoringDuration.Observe(d.Seconds()) }

// ObserveGateWait records time spent waiting for the exclusive lock.
func ObserveGateWait(d time.Duration) { gateWait.Observe(d.Seconds()) }

// ConnOpened and ConnClosed track client connections.
func ConnOpened() {
	connectionsTotal.Inc()
	connectionsActive.Inc()
}

func ConnClosed() { connectionsActive.Dec() }

// RequestStart and RequestEnd track in-flight dispatches.
func RequestStart() { inflight.Inc() }

func RequestEnd() { inflight.Dec() }
