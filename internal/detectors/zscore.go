// Package detectors implements the four independent anomaly detectors. Each one is a pure
// function of its input series and never mutates it.
package detectors

import (
	"math"

	"github.com/koperasi/anomaly-engine/internal/models"
	"github.com/koperasi/anomaly-engine/internal/stats"
)

const (
	// DefaultZScoreThreshold flags values more than 2.5 standard deviations from the mean.
	DefaultZScoreThreshold = 2.5
	zScoreCritical         = 3.0
	zScoreMaxConfidence    = 0.9
	zScoreConfidenceFactor = 10.0
)

// ZScoreDetector flags values far from the population mean.
type ZScoreDetector struct {
	threshold float64
}

// NewZScoreDetector constructs a detector; a non-positive threshold falls back to the default.
func NewZScoreDetector(threshold float64) *ZScoreDetector {
	if threshold <= 0 {
		threshold = DefaultZScoreThreshold
	}
	return &ZScoreDetector{threshold: threshold}
}

// Detect scores every point and returns those beyond the threshold.
func (d *ZScoreDetector) Detect(series models.Series) models.DetectionResult {
	result := models.DetectionResult{Method: models.MethodZScore}
	if len(series) == 0 {
		return result
	}

	values := series.Values()
	mean := stats.Mean(values)
	stdDev := stats.StandardDeviation(values, mean)
	result.Statistics = map[string]float64{
		"mean":      mean,
		"std_dev":   stdDev,
		"threshold": d.threshold,
	}
	if !(stdDev > 0) {
		return result
	}

	for i, v := range values {
		z := math.Abs(v-mean) / stdDev
		if z <= d.threshold {
			continue
		}
		severity := models.SeverityWarning
		if z > zScoreCritical {
			severity = models.SeverityCritical
		}
		result.Anomalies = append(result.Anomalies, models.Anomaly{
			Index:     i,
			Value:     v,
			Timestamp: series.TimestampAt(i),
			Severity:  severity,
			Method:    models.MethodZScore,
			Methods:   []string{models.MethodZScore},
			ZScore:    z,
		})
	}

	result.Confidence = ratioConfidence(len(result.Anomalies), len(values), zScoreConfidenceFactor, zScoreMaxConfidence)
	return result
}

// ratioConfidence scales the flagged share of the series and caps it.
func ratioConfidence(flagged, total int, factor, ceiling float64) float64 {
	if flagged == 0 || total == 0 {
		return 0
	}
	return math.Min(ceiling, float64(flagged)/float64(total)*factor)
}
