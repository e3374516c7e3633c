package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/koperasi/anomaly-engine/internal/models"
	"github.com/koperasi/anomaly-engine/internal/stats"
)

const multiMethodBonus = 0.1

// Combine merges per-method results into one result with unique indices. When two detectors
// flag the same index the strictly more severe anomaly wins; either way the surviving value
// lists every contributing method. Inputs are not modified.
func Combine(results ...models.DetectionResult) models.DetectionResult {
	merged := make(map[int]models.Anomaly)
	confidences := make(map[string]float64, len(results))

	for _, result := range results {
		confidences[result.Method] = result.Confidence
		for _, incoming := range result.Anomalies {
			existing, ok := merged[incoming.Index]
			if !ok {
				merged[incoming.Index] = withMethods(incoming, methodsOf(incoming))
				continue
			}
			methods := appendMethod(existing.Methods, incoming.Method)
			if incoming.Severity > existing.Severity {
				merged[incoming.Index] = withMethods(incoming, methods)
			} else {
				merged[incoming.Index] = withMethods(existing, methods)
			}
		}
	}

	anomalies := make([]models.Anomaly, 0, len(merged))
	for _, a := range merged {
		anomalies = append(anomalies, a)
	}
	sort.Slice(anomalies, func(i, j int) bool {
		return anomalies[i].Index < anomalies[j].Index
	})

	combined := models.DetectionResult{
		Anomalies:         anomalies,
		Method:            models.MethodCombined,
		Confidence:        OverallConfidence(confidenceList(results)),
		MethodConfidences: confidences,
	}
	combined.Summary = Summary(combined)
	return combined
}

// OverallConfidence averages the non-zero confidences and adds a bonus when more than one
// method contributed. The result is clamped to [0,1].
func OverallConfidence(confidences []float64) float64 {
	total := 0.0
	contributing := 0
	for _, c := range confidences {
		if c > 0 {
			total += c
			contributing++
		}
	}
	if contributing == 0 {
		return 0
	}
	overall := total / float64(contributing)
	if contributing > 1 {
		overall += multiMethodBonus
	}
	return stats.Clamp(overall, 0, 1)
}

// Summary renders the anomaly counts of a result.
func Summary(result models.DetectionResult) string {
	total := len(result.Anomalies)
	if total == 0 {
		return "No anomalies detected"
	}
	critical := result.CountBySeverity(models.SeverityCritical)
	warning := result.CountBySeverity(models.SeverityWarning)
	return fmt.Sprintf("Detected %d %s (%d critical, %d %s)",
		total, plural(total, "anomaly", "anomalies"),
		critical,
		warning, plural(warning, "warning", "warnings"))
}

// AlertMessage renders the notification text for metric.
func AlertMessage(metric string, result models.DetectionResult) string {
	critical := result.CountBySeverity(models.SeverityCritical)
	warning := result.CountBySeverity(models.SeverityWarning)

	parts := make([]string, 0, 2)
	if critical > 0 {
		parts = append(parts, fmt.Sprintf("%d critical %s", critical, plural(critical, "anomaly", "anomalies")))
	}
	if warning > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", warning, plural(warning, "warning", "warnings")))
	}
	if len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%d %s", len(result.Anomalies), plural(len(result.Anomalies), "anomaly", "anomalies")))
	}
	return fmt.Sprintf("Anomaly detected in %s: %s (confidence: %.0f%%)",
		metric, strings.Join(parts, " and "), result.Confidence*100)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func confidenceList(results []models.DetectionResult) []float64 {
	out := make([]float64, 0, len(results))
	for _, r := range results {
		out = append(out, r.Confidence)
	}
	return out
}

func methodsOf(a models.Anomaly) []string {
	if len(a.Methods) > 0 {
		return a.Methods
	}
	return []string{a.Method}
}

// withMethods copies a and gives it its own methods slice.
func withMethods(a models.Anomaly, methods []string) models.Anomaly {
	a.Methods = append([]string(nil), methods...)
	return a
}

func appendMethod(methods []string, method string) []string {
	for _, m := range methods {
		if m == method {
			return methods
		}
	}
	out := make([]string, 0, len(methods)+1)
	out = append(out, methods...)
	return append(out, method)
}
