package detectors

import (
	"github.com/koperasi/anomaly-engine/internal/models"
)

// Violation types reported by the threshold detector.
const (
	ViolationBelowCritical = "below_critical"
	ViolationAboveCritical = "above_critical"
	ViolationBelowMinimum  = "below_minimum"
	ViolationAboveMaximum  = "above_maximum"
)

// ThresholdLookup resolves the threshold registered for a metric.
type ThresholdLookup interface {
	Get(metric string) (models.Threshold, bool)
}

// ThresholdDetector checks values against a metric's registered bounds.
type ThresholdDetector struct {
	lookup ThresholdLookup
}

// NewThresholdDetector constructs a detector backed by lookup (may be nil).
func NewThresholdDetector(lookup ThresholdLookup) *ThresholdDetector {
	return &ThresholdDetector{lookup: lookup}
}

// Detect flags every value violating the critical bound first, then min/max.
// Confidence is 1 when anything is flagged.
func (d *ThresholdDetector) Detect(series models.Series, metric string) models.DetectionResult {
	result := models.DetectionResult{Method: models.MethodThreshold}
	if d.lookup == nil || len(series) == 0 {
		return result
	}
	threshold, ok := d.lookup.Get(metric)
	if !ok || !threshold.Enabled() {
		return result
	}

	for i, p := range series {
		severity, violation, bound, hit := Evaluate(threshold, p.Value)
		if !hit {
			continue
		}
		result.Anomalies = append(result.Anomalies, models.Anomaly{
			Index:         i,
			Value:         p.Value,
			Timestamp:     p.Timestamp,
			Severity:      severity,
			Method:        models.MethodThreshold,
			Methods:       []string{models.MethodThreshold},
			ViolationType: violation,
			Bound:         bound,
		})
	}

	if len(result.Anomalies) > 0 {
		result.Confidence = 1
	}
	return result
}

// Evaluate checks a single value. It returns the severity, violation type and the bound
// that was crossed, plus whether any bound was violated.
func Evaluate(threshold models.Threshold, value float64) (models.Severity, string, float64, bool) {
	if c := threshold.Critical; c != nil {
		if c.Min != nil && value < *c.Min {
			return models.SeverityCritical, ViolationBelowCritical, *c.Min, true
		}
		if c.Max != nil && value > *c.Max {
			return models.SeverityCritical, ViolationAboveCritical, *c.Max, true
		}
	}
	if threshold.Min != nil && value < *threshold.Min {
		return models.SeverityWarning, ViolationBelowMinimum, *threshold.Min, true
	}
	if threshold.Max != nil && value > *threshold.Max {
		return models.SeverityWarning, ViolationAboveMaximum, *threshold.Max, true
	}
	return models.SeverityUnknown, "", 0, false
}
