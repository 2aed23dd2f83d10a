package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "travelchat"

// Recorder exports upload pipeline and chat gateway metrics to Prometheus.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	uploads         *prometheus.CounterVec
	uploadDuration  prometheus.Histogram
	storageOutcomes *prometheus.CounterVec
	storedBytes     prometheus.Counter
	chatRequests    *prometheus.CounterVec
	chatAttempts    prometheus.Counter
	sweptObjects    *prometheus.CounterVec
}

// NewRecorder registers all collectors on reg (prometheus.DefaultRegisterer when nil).
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Uploads by terminal stage (succeeded, validation, processing, storage).",
		}, []string{"result"}),
		uploadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_duration_seconds",
			Help:      "End-to-end latency of the upload pipeline.",
			Buckets:   prometheus.DefBuckets,
		}),
		storageOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_outcomes_total",
			Help:      "Storage decision table outcomes.",
		}, []string{"outcome"}),
		storedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stored_bytes_total",
			Help:      "Cumulative size of transcoded images persisted.",
		}),
		chatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat gateway calls by result (success, timeout, provisioning, unavailable).",
		}, []string{"result"}),
		chatAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_upstream_attempts_total",
			Help:      "Individual calls made to the generative endpoint, retries included.",
		}),
		sweptObjects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_swept_total",
			Help:      "Stored uploads removed by the retention sweeper.",
		}, []string{"result"}),
	}

	collectors := []prometheus.Collector{
		r.uploads, r.uploadDuration, r.storageOutcomes, r.storedBytes,
		r.chatRequests, r.chatAttempts, r.sweptObjects,
	}
	for i, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				collectors[i] = are.ExistingCollector
				continue
			}
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return r, nil
}

// ObserveUpload records the terminal stage and latency of one pipeline run.
func (r *Recorder) ObserveUpload(result string, duration time.Duration) {
	if r == nil {
		return
	}
	r.uploads.WithLabelValues(result).Inc()
	r.uploadDuration.Observe(duration.Seconds())
}

// ObserveStorage records a storage outcome and, on success, the bytes written.
func (r *Recorder) ObserveStorage(outcome string, size int64) {
	if r == nil {
		return
	}
	r.storageOutcomes.WithLabelValues(outcome).Inc()
	if size > 0 {
		r.storedBytes.Add(float64(size))
	}
}

// ObserveChat records the final result of a chat gateway call.
func (r *Recorder) ObserveChat(result string) {
	if r == nil {
		return
	}
	r.chatRequests.WithLabelValues(result).Inc()
}

// ObserveChatAttempt counts one upstream call.
func (r *Recorder) ObserveChatAttempt() {
	if r == nil {
		return
	}
	r.chatAttempts.Inc()
}

// ObserveSweep counts a retention deletion.
func (r *Recorder) ObserveSweep(err error) {
	if r == nil {
		return
	}
	if err != nil {
		r.sweptObjects.WithLabelValues("error").Inc()
		return
	}
	r.sweptObjects.WithLabelValues("deleted").Inc()
}
