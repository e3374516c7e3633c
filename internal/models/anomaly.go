package models

import (
	"fmt"
	"strings"
	"time"
)

// Detection method names reported on results and anomalies.
const (
	MethodZScore           = "z_score"
	MethodIQR              = "iqr"
	MethodThreshold        = "threshold"
	MethodTrendChange      = "trend_change"
	MethodCombined         = "combined"
	MethodInsufficientData = "insufficient_data"
)

// Severity is an ordered impact level: Info < Warning < Critical.
type Severity int

const (
	SeverityUnknown Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParseSeverity maps the text form back to a Severity.
func ParseSeverity(value string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "info":
		return SeverityInfo, nil
	case "warning":
		return SeverityWarning, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return SeverityUnknown, fmt.Errorf("unknown severity %q", value)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Point is a single observation. A zero Timestamp means the caller supplied a bare number.
type Point struct {
	Value     float64
	Timestamp time.Time
}

// Series is an ordered sequence of observations; the slice index identifies a point.
type Series []Point

// SeriesFromValues wraps bare numbers into a Series without timestamps.
func SeriesFromValues(values []float64) Series {
	series := make(Series, len(values))
	for i, v := range values {
		series[i] = Point{Value: v}
	}
	return series
}

// Values returns a fresh slice of the observation values.
func (s Series) Values() []float64 {
	values := make([]float64, len(s))
	for i, p := range s {
		values[i] = p.Value
	}
	return values
}

// TimestampAt returns the timestamp of the point at index, or the zero time.
func (s Series) TimestampAt(index int) time.Time {
	if index < 0 || index >= len(s) {
		return time.Time{}
	}
	return s[index].Timestamp
}

// Anomaly is a flagged observation. Method-specific fields are zero when not applicable.
type Anomaly struct {
	Index     int
	Value     float64
	Timestamp time.Time
	Severity  Severity
	Method    string
	// Methods lists every detector that flagged this index, in the order they were merged.
	Methods []string

	ZScore        float64
	Deviation     float64
	ViolationType string
	Bound         float64
	TrendChange   float64
	SlopeBefore   float64
	SlopeAfter    float64
}

// HasMethod reports whether method contributed to the anomaly.
func (a Anomaly) HasMethod(method string) bool {
	for _, m := range a.Methods {
		if m == method {
			return true
		}
	}
	return a.Method == method
}

// DetectionResult is the output of a single detector or of the combined run.
type DetectionResult struct {
	Anomalies         []Anomaly
	Method            string
	Confidence        float64
	Statistics        map[string]float64
	MethodConfidences map[string]float64
	Summary           string
}

// CountBySeverity returns how many anomalies carry the given severity.
func (r DetectionResult) CountBySeverity(sev Severity) int {
	count := 0
	for _, a := range r.Anomalies {
		if a.Severity == sev {
			count++
		}
	}
	return count
}

// MaxSeverity returns the highest severity present, or SeverityUnknown for an empty result.
func (r DetectionResult) MaxSeverity() Severity {
	max := SeverityUnknown
	for _, a := range r.Anomalies {
		if a.Severity > max {
			max = a.Severity
		}
	}
	return max
}
