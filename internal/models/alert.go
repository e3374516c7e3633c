package models

import "time"

// Alert is emitted when a combined detection finds anomalies outside the metric's cooldown window.
type Alert struct {
	ID         string
	Metric     string
	Timestamp  time.Time
	Severity   Severity
	Anomalies  []Anomaly
	Confidence float64
	Summary    string
	Message    string
}

// MetricDigest summarises stored alerts for one metric.
type MetricDigest struct {
	Metric         string
	AlertCount     int
	CriticalCount  int
	Prevalence     float64
	MeanConfidence float64
	LastSeen       time.Time
	TopMethods     []string
}
