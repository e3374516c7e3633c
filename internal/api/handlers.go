package api

import (
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/koperasi/anomaly-engine/internal/engine"
	"github.com/koperasi/anomaly-engine/internal/models"
	"github.com/koperasi/anomaly-engine/internal/stats"
	"github.com/koperasi/anomaly-engine/internal/utils"
)

// Recognised keys of the options object.
const (
	OptionZScoreThreshold      = "zScoreThreshold"
	OptionIQRMultiplier        = "iqrMultiplier"
	OptionTrendChangeThreshold = "trendChangeThreshold"
	OptionMinDataPoints        = "minDataPoints"
	OptionAlertCooldown        = "alertCooldown"
)

// FromStructDetectRequest maps {metric, series, options} into a domain DetectRequest.
func FromStructDetectRequest(in *structpb.Struct) (models.DetectRequest, error) {
	fields, err := fieldsOf(in, "metric", "series", "options")
	if err != nil {
		return models.DetectRequest{}, err
	}
	metric, err := requiredString(fields, "metric")
	if err != nil {
		return models.DetectRequest{}, err
	}
	seriesValue, ok := fields["series"]
	if !ok {
		return models.DetectRequest{}, fmt.Errorf("series is required")
	}
	series, err := FromValueSeries(seriesValue)
	if err != nil {
		return models.DetectRequest{}, err
	}

	var overrides models.ConfigOverrides
	if v, ok := fields["options"]; ok && !isNull(v) {
		opts := v.GetStructValue()
		if opts == nil {
			return models.DetectRequest{}, fmt.Errorf("options must be an object")
		}
		if overrides, err = FromStructOverrides(opts); err != nil {
			return models.DetectRequest{}, err
		}
	}

	return models.DetectRequest{Metric: metric, Series: series, Options: overrides}, nil
}

// FromValueSeries accepts a list whose items are numbers or {value, timestamp} objects.
func FromValueSeries(v *structpb.Value) (models.Series, error) {
	list := v.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("series must be a list")
	}
	series := make(models.Series, 0, len(list.GetValues()))
	for i, item := range list.GetValues() {
		switch kind := item.GetKind().(type) {
		case *structpb.Value_NumberValue:
			if !isFinite(kind.NumberValue) {
				return nil, fmt.Errorf("series[%d] must be finite", i)
			}
			series = append(series, models.Point{Value: kind.NumberValue})
		case *structpb.Value_StructValue:
			point, err := pointFromStruct(kind.StructValue)
			if err != nil {
				return nil, fmt.Errorf("series[%d]: %w", i, err)
			}
			series = append(series, point)
		default:
			return nil, fmt.Errorf("series[%d] must be a number or an object", i)
		}
	}
	return series, nil
}

func pointFromStruct(s *structpb.Struct) (models.Point, error) {
	fields, err := fieldsOf(s, "value", "timestamp")
	if err != nil {
		return models.Point{}, err
	}
	value, ok, err := optionalNumber(fields, "value")
	if err != nil {
		return models.Point{}, err
	}
	if !ok {
		return models.Point{}, fmt.Errorf("value is required")
	}
	if !isFinite(value) {
		return models.Point{}, fmt.Errorf("value must be finite")
	}
	point := models.Point{Value: value}
	if ts, ok := fields["timestamp"]; ok && !isNull(ts) {
		parsed, err := utils.ParseRFC3339(ts.GetStringValue())
		if err != nil {
			return models.Point{}, fmt.Errorf("timestamp: %w", err)
		}
		point.Timestamp = parsed
	}
	return point, nil
}

// FromStructOverrides maps the options object into ConfigOverrides, rejecting unknown keys.
// alertCooldown accepts milliseconds or a duration string such as "5m".
func FromStructOverrides(in *structpb.Struct) (models.ConfigOverrides, error) {
	fields, err := fieldsOf(in, OptionZScoreThreshold, OptionIQRMultiplier, OptionTrendChangeThreshold,
		OptionMinDataPoints, OptionAlertCooldown)
	if err != nil {
		return models.ConfigOverrides{}, err
	}

	var out models.ConfigOverrides
	for _, key := range []string{OptionZScoreThreshold, OptionIQRMultiplier, OptionTrendChangeThreshold} {
		v, ok, err := optionalNumber(fields, key)
		if err != nil {
			return models.ConfigOverrides{}, err
		}
		if !ok {
			continue
		}
		if v <= 0 || !isFinite(v) {
			return models.ConfigOverrides{}, fmt.Errorf("%s must be a positive number", key)
		}
		value := v
		switch key {
		case OptionZScoreThreshold:
			out.ZScoreThreshold = &value
		case OptionIQRMultiplier:
			out.IQRMultiplier = &value
		case OptionTrendChangeThreshold:
			out.TrendChangeThreshold = &value
		}
	}

	if v, ok, err := optionalNumber(fields, OptionMinDataPoints); err != nil {
		return models.ConfigOverrides{}, err
	} else if ok {
		if v < 1 || v != math.Trunc(v) {
			return models.ConfigOverrides{}, fmt.Errorf("%s must be a positive integer", OptionMinDataPoints)
		}
		n := int(v)
		out.MinDataPoints = &n
	}

	if v, ok := fields[OptionAlertCooldown]; ok && !isNull(v) {
		cooldown, err := durationValue(v)
		if err != nil {
			return models.ConfigOverrides{}, fmt.Errorf("%s: %w", OptionAlertCooldown, err)
		}
		out.AlertCooldown = &cooldown
	}
	return out, nil
}

func durationValue(v *structpb.Value) (time.Duration, error) {
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		if kind.NumberValue < 0 || !isFinite(kind.NumberValue) {
			return 0, fmt.Errorf("must be a non-negative number of milliseconds")
		}
		return time.Duration(kind.NumberValue * float64(time.Millisecond)), nil
	case *structpb.Value_StringValue:
		d, err := time.ParseDuration(kind.StringValue)
		if err != nil {
			return 0, err
		}
		if d < 0 {
			return 0, fmt.Errorf("must not be negative")
		}
		return d, nil
	default:
		return 0, fmt.Errorf("must be milliseconds or a duration string")
	}
}

// FromStructThreshold maps {metric, min, max, critical, enabled} into a threshold. A numeric
// critical is a lower bound; an object critical carries min and max. A missing enabled
// means enabled.
func FromStructThreshold(in *structpb.Struct) (string, models.Threshold, error) {
	fields, err := fieldsOf(in, "metric", "min", "max", "critical", "enabled")
	if err != nil {
		return "", models.Threshold{}, err
	}
	metric, err := requiredString(fields, "metric")
	if err != nil {
		return "", models.Threshold{}, err
	}

	var threshold models.Threshold
	if threshold.Min, err = optionalBound(fields, "min"); err != nil {
		return "", models.Threshold{}, err
	}
	if threshold.Max, err = optionalBound(fields, "max"); err != nil {
		return "", models.Threshold{}, err
	}

	if v, ok := fields["critical"]; ok && !isNull(v) {
		switch kind := v.GetKind().(type) {
		case *structpb.Value_NumberValue:
			threshold.Critical = &models.CriticalBound{Min: models.Float(kind.NumberValue)}
		case *structpb.Value_StructValue:
			critical, err := fieldsOf(kind.StructValue, "min", "max")
			if err != nil {
				return "", models.Threshold{}, fmt.Errorf("critical: %w", err)
			}
			bound := &models.CriticalBound{}
			if bound.Min, err = optionalBound(critical, "min"); err != nil {
				return "", models.Threshold{}, fmt.Errorf("critical: %w", err)
			}
			if bound.Max, err = optionalBound(critical, "max"); err != nil {
				return "", models.Threshold{}, fmt.Errorf("critical: %w", err)
			}
			threshold.Critical = bound
		default:
			return "", models.Threshold{}, fmt.Errorf("critical must be a number or an object")
		}
	}

	if v, ok := fields["enabled"]; ok && !isNull(v) {
		enabled, isBool := v.GetKind().(*structpb.Value_BoolValue)
		if !isBool {
			return "", models.Threshold{}, fmt.Errorf("enabled must be a boolean")
		}
		threshold.Disabled = !enabled.BoolValue
	}
	return metric, threshold, nil
}

// FromStructMetric extracts the required metric field.
func FromStructMetric(in *structpb.Struct) (string, error) {
	fields, err := fieldsOf(in, "metric")
	if err != nil {
		return "", err
	}
	return requiredString(fields, "metric")
}

// FromStructOptionalMetric extracts an optional metric field.
func FromStructOptionalMetric(in *structpb.Struct) (string, error) {
	fields, err := fieldsOf(in, "metric")
	if err != nil {
		return "", err
	}
	return optionalString(fields, "metric")
}

// FromStructListAlertsRequest maps {metric, severity, start, end, pageSize, pageToken}.
func FromStructListAlertsRequest(in *structpb.Struct) (models.ListAlertsRequest, error) {
	fields, err := fieldsOf(in, "metric", "severity", "start", "end", "pageSize", "pageToken")
	if err != nil {
		return models.ListAlertsRequest{}, err
	}
	var req models.ListAlertsRequest
	if req.Metric, err = optionalString(fields, "metric"); err != nil {
		return req, err
	}
	sev, err := optionalString(fields, "severity")
	if err != nil {
		return req, err
	}
	if sev != "" {
		if req.Severity, err = models.ParseSeverity(sev); err != nil {
			return req, err
		}
	}
	for key, dst := range map[string]*time.Time{"start": &req.Start, "end": &req.End} {
		raw, err := optionalString(fields, key)
		if err != nil {
			return req, err
		}
		if raw == "" {
			continue
		}
		if *dst, err = utils.ParseRFC3339(raw); err != nil {
			return req, fmt.Errorf("%s: %w", key, err)
		}
	}
	size, ok, err := optionalNumber(fields, "pageSize")
	if err != nil {
		return req, err
	}
	if ok {
		if size < 0 || size != math.Trunc(size) {
			return req, fmt.Errorf("pageSize must be a non-negative integer")
		}
		req.PageSize = int(size)
	}
	if req.PageToken, err = optionalString(fields, "pageToken"); err != nil {
		return req, err
	}
	return req, nil
}

// FromStructDigestRequest maps {limit, window}; window is a duration string and defaults to
// fallback when absent.
func FromStructDigestRequest(in *structpb.Struct, fallback time.Duration) (int, time.Duration, error) {
	fields, err := fieldsOf(in, "limit", "window")
	if err != nil {
		return 0, 0, err
	}
	limit := 0
	if v, ok, err := optionalNumber(fields, "limit"); err != nil {
		return 0, 0, err
	} else if ok {
		if v < 0 || v != math.Trunc(v) {
			return 0, 0, fmt.Errorf("limit must be a non-negative integer")
		}
		limit = int(v)
	}
	window := fallback
	if v, ok := fields["window"]; ok && !isNull(v) {
		if window, err = durationValue(v); err != nil {
			return 0, 0, fmt.Errorf("window: %w", err)
		}
	}
	return limit, window, nil
}

// ToStructDetectionResult converts a detection result into its wire form.
func ToStructDetectionResult(res models.DetectionResult) (*structpb.Struct, error) {
	anomalies := make([]interface{}, 0, len(res.Anomalies))
	for _, a := range res.Anomalies {
		anomalies = append(anomalies, anomalyMap(a))
	}
	out := map[string]interface{}{
		"anomalies":  anomalies,
		"method":     res.Method,
		"confidence": res.Confidence,
		"statistics": floatMap(res.Statistics),
	}
	if res.MethodConfidences != nil {
		out["methodConfidences"] = floatMap(res.MethodConfidences)
	}
	if res.Summary != "" {
		out["summary"] = res.Summary
	}
	return structpb.NewStruct(out)
}

// ToStructAlert converts an alert into its wire form.
func ToStructAlert(alert models.Alert) (*structpb.Struct, error) {
	return structpb.NewStruct(alertMap(alert))
}

// ToStructThreshold converts a threshold into its wire form.
func ToStructThreshold(metric string, t models.Threshold) (*structpb.Struct, error) {
	out := map[string]interface{}{
		"metric":  metric,
		"enabled": t.Enabled(),
	}
	if t.Min != nil {
		out["min"] = *t.Min
	}
	if t.Max != nil {
		out["max"] = *t.Max
	}
	if t.Critical != nil {
		critical := map[string]interface{}{}
		if t.Critical.Min != nil {
			critical["min"] = *t.Critical.Min
		}
		if t.Critical.Max != nil {
			critical["max"] = *t.Critical.Max
		}
		out["critical"] = critical
	}
	return structpb.NewStruct(out)
}

// ToStructConfig converts the detector configuration into its wire form. The cooldown is
// reported in milliseconds.
func ToStructConfig(cfg engine.Config) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		OptionZScoreThreshold:      cfg.ZScoreThreshold,
		OptionIQRMultiplier:        cfg.IQRMultiplier,
		OptionTrendChangeThreshold: cfg.TrendChangeThreshold,
		OptionMinDataPoints:        cfg.MinDataPoints,
		OptionAlertCooldown:        cfg.AlertCooldown.Milliseconds(),
	})
}

// ToStructLastAlert reports the last alert time of metric, if any.
func ToStructLastAlert(metric string, last time.Time, ok bool) (*structpb.Struct, error) {
	out := map[string]interface{}{"metric": metric, "found": ok}
	if ok {
		out["timestamp"] = utils.FormatRFC3339(last)
	}
	return structpb.NewStruct(out)
}

// ToStructListAlertsResponse converts stored alerts into their wire form.
func ToStructListAlertsResponse(resp models.ListAlertsResponse) (*structpb.Struct, error) {
	alerts := make([]interface{}, 0, len(resp.Alerts))
	for _, a := range resp.Alerts {
		alerts = append(alerts, alertMap(a))
	}
	return structpb.NewStruct(map[string]interface{}{
		"alerts":        alerts,
		"nextPageToken": resp.NextPageToken,
	})
}

// ToStructDigest converts metric digests into their wire form.
func ToStructDigest(digests []models.MetricDigest) (*structpb.Struct, error) {
	items := make([]interface{}, 0, len(digests))
	for _, d := range digests {
		items = append(items, map[string]interface{}{
			"metric":         d.Metric,
			"alertCount":     d.AlertCount,
			"criticalCount":  d.CriticalCount,
			"prevalence":     d.Prevalence,
			"meanConfidence": d.MeanConfidence,
			"lastSeen":       utils.FormatRFC3339(d.LastSeen),
			"topMethods":     stringList(d.TopMethods),
		})
	}
	return structpb.NewStruct(map[string]interface{}{"metrics": items})
}

func alertMap(alert models.Alert) map[string]interface{} {
	anomalies := make([]interface{}, 0, len(alert.Anomalies))
	for _, a := range alert.Anomalies {
		anomalies = append(anomalies, anomalyMap(a))
	}
	return map[string]interface{}{
		"id":         alert.ID,
		"metric":     alert.Metric,
		"timestamp":  utils.FormatRFC3339(alert.Timestamp),
		"severity":   alert.Severity.String(),
		"anomalies":  anomalies,
		"confidence": alert.Confidence,
		"summary":    alert.Summary,
		"message":    alert.Message,
	}
}

func anomalyMap(a models.Anomaly) map[string]interface{} {
	out := map[string]interface{}{
		"index":    a.Index,
		"value":    a.Value,
		"severity": a.Severity.String(),
		"method":   a.Method,
	}
	if !a.Timestamp.IsZero() {
		out["timestamp"] = utils.FormatRFC3339(a.Timestamp)
	}
	if len(a.Methods) > 0 {
		out["methods"] = stringList(a.Methods)
	}
	if a.ZScore != 0 {
		out["zScore"] = a.ZScore
	}
	if a.Deviation != 0 {
		out["deviation"] = stats.Finite(a.Deviation)
	}
	if a.ViolationType != "" {
		out["violationType"] = a.ViolationType
		out["threshold"] = a.Bound
	}
	if a.TrendChange != 0 {
		out["trendChange"] = a.TrendChange
		out["slopeBefore"] = a.SlopeBefore
		out["slopeAfter"] = a.SlopeAfter
	}
	return out
}

func floatMap(in map[string]float64) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = stats.Finite(v)
	}
	return out
}

func stringList(values []string) []interface{} {
	out := make([]interface{}, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return out
}

func fieldsOf(in *structpb.Struct, allowed ...string) (map[string]*structpb.Value, error) {
	if in == nil {
		return nil, fmt.Errorf("request is nil")
	}
	fields := in.GetFields()
	for key := range fields {
		if !contains(allowed, key) {
			return nil, fmt.Errorf("unknown field %q", key)
		}
	}
	return fields, nil
}

func requiredString(fields map[string]*structpb.Value, key string) (string, error) {
	s, err := optionalString(fields, key)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return s, nil
}

func optionalString(fields map[string]*structpb.Value, key string) (string, error) {
	v, ok := fields[key]
	if !ok || isNull(v) {
		return "", nil
	}
	s, isString := v.GetKind().(*structpb.Value_StringValue)
	if !isString {
		return "", fmt.Errorf("%s must be a string", key)
	}
	return s.StringValue, nil
}

func optionalNumber(fields map[string]*structpb.Value, key string) (float64, bool, error) {
	v, ok := fields[key]
	if !ok || isNull(v) {
		return 0, false, nil
	}
	n, isNumber := v.GetKind().(*structpb.Value_NumberValue)
	if !isNumber {
		return 0, false, fmt.Errorf("%s must be a number", key)
	}
	return n.NumberValue, true, nil
}

func optionalBound(fields map[string]*structpb.Value, key string) (*float64, error) {
	v, ok, err := optionalNumber(fields, key)
	if err != nil || !ok {
		return nil, err
	}
	return models.Float(v), nil
}

func isNull(v *structpb.Value) bool {
	if v == nil {
		return true
	}
	_, null := v.GetKind().(*structpb.Value_NullValue)
	return null || v.GetKind() == nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

// FromStructUpdateConfig maps {options} into ConfigOverrides.
func FromStructUpdateConfig(in *structpb.Struct) (models.ConfigOverrides, error) {
	fields, err := fieldsOf(in, "options")
	if err != nil {
		return models.ConfigOverrides{}, err
	}
	v, ok := fields["options"]
	if !ok || isNull(v) {
		return models.ConfigOverrides{}, fmt.Errorf("options is required")
	}
	opts := v.GetStructValue()
	if opts == nil {
		return models.ConfigOverrides{}, fmt.Errorf("options must be an object")
	}
	return FromStructOverrides(opts)
}
