package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"webhook-migrate/internal/failure"
	"webhook-migrate/internal/models"
	"webhook-migrate/internal/pipeline"
)

const namespace = "webhook_migrate"

// Collector records pipeline progress as prometheus metrics.
type Collector struct {
	uploads  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	sweeps   prometheus.Counter
	pending  prometheus.Gauge
	failed   prometheus.Counter
}

var _ pipeline.Observer = (*Collector)(nil)

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Upload calls by request kind and outcome.",
		}, []string{"kind", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_duration_seconds",
			Help:      "Latency of upload calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Upload sweeps started.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_requests",
			Help:      "Requests without a successful upload at the start of the current sweep.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failed_requests_total",
			Help:      "Requests still failing when a run ended.",
		}),
	}
	reg.MustRegister(c.uploads, c.duration, c.sweeps, c.pending, c.failed)
	return c
}

func (c *Collector) SweepStarted(_, pending int) {
	c.sweeps.Inc()
	c.pending.Set(float64(pending))
}

func (c *Collector) UploadFinished(r *models.Request, err error, elapsed time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = string(failure.KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	c.uploads.WithLabelValues(string(r.Kind), outcome).Inc()
	c.duration.WithLabelValues(string(r.Kind)).Observe(elapsed.Seconds())
}

func (c *Collector) RunFinished(p pipeline.Partition) {
	c.pending.Set(0)
	c.failed.Add(float64(len(p.Failed)))
}
