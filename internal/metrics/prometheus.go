package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type prometheusObserver struct {
	onlineGauge     prometheus.Gauge
	eventCounter    prometheus.Counter
	enqueuedCounter prometheus.Counter
	attemptSummary  *prometheus.SummaryVec
	depthGauge      *prometheus.GaugeVec
}

var (
	onlineGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ibis_stream_online_clients",
		Help: "Number of connected event stream clients",
	})
	eventCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ibis_sync_events_total",
		Help: "Total number of sync events broadcast",
	})
	enqueuedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ibis_queue_enqueued_total",
		Help: "Total number of items accepted into the sync queue",
	})
	attemptSummary = promauto.NewSummaryVec(prometheus.SummaryOpts{
		Name: "ibis_delivery_attempt_seconds",
		Help: "Duration of delivery attempts by outcome",
	}, []string{"outcome"})
	depthGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ibis_queue_depth",
		Help: "Current number of queue items by status",
	}, []string{"status"})
)

// NewPrometheusObserver returns the process-wide observer; it satisfies both
// HubObserver and QueueObserver.
func NewPrometheusObserver() *prometheusObserver {
	return &prometheusObserver{
		onlineGauge:     onlineGauge,
		eventCounter:    eventCounter,
		enqueuedCounter: enqueuedCounter,
		attemptSummary:  attemptSummary,
		depthGauge:      depthGauge,
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func (p *prometheusObserver) IncOnline() {
	p.onlineGauge.Inc()
}

func (p *prometheusObserver) DecOnline() {
	p.onlineGauge.Dec()
}

func (p *prometheusObserver) RecordEvent() {
	p.eventCounter.Inc()
}

func (p *prometheusObserver) IncEnqueued() {
	p.enqueuedCounter.Inc()
}

func (p *prometheusObserver) RecordAttempt(outcome string, seconds float64) {
	p.attemptSummary.WithLabelValues(outcome).Observe(seconds)
}

func (p *prometheusObserver) SetQueueDepth(status string, n int64) {
	p.depthGauge.WithLabelValues(status).Set(float64(n))
}
