package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels detections that ran every detector.
	OutcomeSuccess = "success"
	// OutcomeInsufficient labels detections rejected for too few data points.
	OutcomeInsufficient = "insufficient_data"

	// AlertEmitted labels alerts that reached subscribers.
	AlertEmitted = "emitted"
	// AlertSuppressed labels alerts held back by the metric cooldown.
	AlertSuppressed = "suppressed"
)

var (
	detectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "koperasi_anomaly",
			Name:      "detections_total",
			Help:      "Total number of detection runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	anomaliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "koperasi_anomaly",
			Name:      "anomalies_total",
			Help:      "Anomalies found after de-duplication, partitioned by severity.",
		},
		[]string{"severity"},
	)

	alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "koperasi_anomaly",
			Name:      "alerts_total",
			Help:      "Alert decisions, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	subscriberFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "koperasi_anomaly",
			Name:      "subscriber_failures_total",
			Help:      "Alert subscribers that returned an error or panicked.",
		},
	)

	detectionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "koperasi_anomaly",
			Name:      "detection_seconds",
			Help:      "Detection latency in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
	)
)

// Register attaches koperasi-anomaly collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		detectionsTotal,
		anomaliesTotal,
		alertsTotal,
		subscriberFailuresTotal,
		detectionDurationSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveDetection records a detection duration and outcome label.
func ObserveDetection(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeInsufficient {
		label = OutcomeSuccess
	}
	detectionsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	detectionDurationSeconds.Observe(duration.Seconds())
}

// ObserveAnomalies adds count anomalies of the given severity.
func ObserveAnomalies(severity string, count int) {
	if count <= 0 {
		return
	}
	anomaliesTotal.WithLabelValues(severity).Add(float64(count))
}

// ObserveAlert records an alert decision.
func ObserveAlert(outcome string) {
	if outcome != AlertSuppressed {
		outcome = AlertEmitted
	}
	alertsTotal.WithLabelValues(outcome).Inc()
}

// ObserveSubscriberFailure counts a failing alert subscriber.
func ObserveSubscriberFailure() {
	subscriberFailuresTotal.Inc()
}
