package detectors

import (
	"math"

	"github.com/koperasi/anomaly-engine/internal/models"
	"github.com/koperasi/anomaly-engine/internal/stats"
)

const (
	// DefaultTrendChangeThreshold is the minimum slope change that counts as a break.
	DefaultTrendChangeThreshold = 0.2
	trendCriticalChange         = 0.5
	trendMinPoints              = 5
	trendMaxWindow              = 5
	trendMaxConfidence          = 0.8
	trendConfidenceFactor       = 5.0
)

// TrendDetector flags points where the local slope changes sharply.
type TrendDetector struct {
	changeThreshold float64
}

// NewTrendDetector constructs a detector; a non-positive threshold falls back to the default.
func NewTrendDetector(changeThreshold float64) *TrendDetector {
	if changeThreshold <= 0 {
		changeThreshold = DefaultTrendChangeThreshold
	}
	return &TrendDetector{changeThreshold: changeThreshold}
}

// Detect compares the OLS slope of the window ending before i with the window starting at i.
func (d *TrendDetector) Detect(series models.Series) models.DetectionResult {
	result := models.DetectionResult{Method: models.MethodTrendChange}
	n := len(series)
	if n < trendMinPoints {
		return result
	}

	values := series.Values()
	window := WindowSize(n)
	result.Statistics = map[string]float64{
		"window_size": float64(window),
		"threshold":   d.changeThreshold,
	}

	for i := window; i < n-window; i++ {
		before := stats.LinearTrendSlope(values[i-window : i])
		after := stats.LinearTrendSlope(values[i : i+window])
		change := math.Abs(after - before)
		if change <= d.changeThreshold {
			continue
		}
		severity := models.SeverityWarning
		if change > trendCriticalChange {
			severity = models.SeverityCritical
		}
		result.Anomalies = append(result.Anomalies, models.Anomaly{
			Index:       i,
			Value:       values[i],
			Timestamp:   series.TimestampAt(i),
			Severity:    severity,
			Method:      models.MethodTrendChange,
			Methods:     []string{models.MethodTrendChange},
			TrendChange: change,
			SlopeBefore: before,
			SlopeAfter:  after,
		})
	}

	result.Confidence = ratioConfidence(len(result.Anomalies), n, trendConfidenceFactor, trendMaxConfidence)
	return result
}

// WindowSize returns min(5, floor(n/3)).
func WindowSize(n int) int {
	w := n / 3
	if w > trendMaxWindow {
		w = trendMaxWindow
	}
	return w
}
