package detectors

import (
	"sort"

	"github.com/koperasi/anomaly-engine/internal/models"
	"github.com/koperasi/anomaly-engine/internal/stats"
)

const (
	// DefaultIQRMultiplier is the Tukey fence multiplier.
	DefaultIQRMultiplier = 1.5
	iqrCriticalDeviation = 2.0
	iqrMaxConfidence     = 0.85
	iqrConfidenceFactor  = 8.0
)

// IQRDetector flags values outside the interquartile fences.
type IQRDetector struct {
	multiplier float64
}

// NewIQRDetector constructs a detector; a non-positive multiplier falls back to the default.
func NewIQRDetector(multiplier float64) *IQRDetector {
	if multiplier <= 0 {
		multiplier = DefaultIQRMultiplier
	}
	return &IQRDetector{multiplier: multiplier}
}

// Detect computes Q1/Q3 on a sorted copy and flags values strictly outside the fences.
// Deviation is measured in IQR units from the nearer fence; with a zero IQR any value
// outside the fences has an infinite deviation.
func (d *IQRDetector) Detect(series models.Series) models.DetectionResult {
	result := models.DetectionResult{Method: models.MethodIQR}
	if len(series) == 0 {
		return result
	}

	values := series.Values()
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	q1 := stats.Percentile(sorted, 25)
	q3 := stats.Percentile(sorted, 75)
	iqr := q3 - q1
	lower := q1 - d.multiplier*iqr
	upper := q3 + d.multiplier*iqr
	result.Statistics = map[string]float64{
		"q1":          q1,
		"q3":          q3,
		"iqr":         iqr,
		"lower_bound": lower,
		"upper_bound": upper,
	}

	for i, v := range values {
		var distance float64
		switch {
		case v < lower:
			distance = lower - v
		case v > upper:
			distance = v - upper
		default:
			continue
		}
		deviation := distance / iqr
		severity := models.SeverityWarning
		if deviation > iqrCriticalDeviation {
			severity = models.SeverityCritical
		}
		result.Anomalies = append(result.Anomalies, models.Anomaly{
			Index:     i,
			Value:     v,
			Timestamp: series.TimestampAt(i),
			Severity:  severity,
			Method:    models.MethodIQR,
			Methods:   []string{models.MethodIQR},
			Deviation: deviation,
		})
	}

	result.Confidence = ratioConfidence(len(result.Anomalies), len(values), iqrConfidenceFactor, iqrMaxConfidence)
	return result
}
