package digest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/koperasi/anomaly-engine/internal/models"
)

type stubSource struct {
	alerts []models.Alert
	err    error
	since  time.Time
}

func (s *stubSource) AlertsSince(_ context.Context, since time.Time) ([]models.Alert, error) {
	s.since = since
	return s.alerts, s.err
}

func alertAt(metric string, sev models.Severity, conf float64, at time.Time, methods ...string) models.Alert {
	return models.Alert{
		Metric:     metric,
		Severity:   sev,
		Confidence: conf,
		Timestamp:  at,
		Anomalies:  []models.Anomaly{{Index: 1, Method: methods[0], Methods: methods, Severity: sev}},
	}
}

func TestBuildAggregatesPerMetric(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	alerts := []models.Alert{
		alertAt("default_rate", models.SeverityCritical, 0.9, base, models.MethodThreshold, models.MethodZScore),
		alertAt("default_rate", models.SeverityWarning, 0.5, base.Add(time.Hour), models.MethodZScore),
		alertAt("default_rate", models.SeverityCritical, 0.7, base.Add(2*time.Hour), models.MethodThreshold),
		alertAt("cash_balance", models.SeverityCritical, 0.8, base.Add(30*time.Minute), models.MethodIQR),
	}

	digests := Build(alerts)
	if len(digests) != 2 {
		t.Fatalf("expected 2 digests, got %d", len(digests))
	}
	top := digests[0]
	if top.Metric != "default_rate" || top.AlertCount != 3 || top.CriticalCount != 2 {
		t.Fatalf("unexpected top digest: %+v", top)
	}
	if top.Prevalence != 0.75 {
		t.Fatalf("expected prevalence 0.75, got %v", top.Prevalence)
	}
	if diff := top.MeanConfidence - 0.7; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected mean confidence 0.7, got %v", top.MeanConfidence)
	}
	if !top.LastSeen.Equal(base.Add(2 * time.Hour)) {
		t.Fatalf("unexpected last seen %v", top.LastSeen)
	}
	if len(top.TopMethods) != 2 || top.TopMethods[0] != models.MethodThreshold || top.TopMethods[1] != models.MethodZScore {
		t.Fatalf("unexpected top methods %v", top.TopMethods)
	}
}

func TestBuildEmpty(t *testing.T) {
	if digests := Build(nil); digests != nil {
		t.Fatalf("expected nil digests, got %+v", digests)
	}
}

func TestBuilderDigestLimit(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	source := &stubSource{alerts: []models.Alert{
		alertAt("default_rate", models.SeverityCritical, 0.9, base, models.MethodThreshold),
		alertAt("cash_balance", models.SeverityCritical, 0.8, base, models.MethodIQR),
		alertAt("cash_balance", models.SeverityWarning, 0.6, base, models.MethodIQR),
	}}
	builder := NewBuilder(nil, source)

	digests, err := builder.Digest(context.Background(), base.Add(-24*time.Hour), 1)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if len(digests) != 1 || digests[0].Metric != "cash_balance" {
		t.Fatalf("unexpected digests: %+v", digests)
	}
	if !source.since.Equal(base.Add(-24 * time.Hour)) {
		t.Fatalf("since not forwarded: %v", source.since)
	}
}

func TestBuilderDigestErrors(t *testing.T) {
	if _, err := NewBuilder(nil, nil).Digest(context.Background(), time.Time{}, 0); err == nil {
		t.Fatalf("expected error without source")
	}
	source := &stubSource{err: errors.New("disk full")}
	if _, err := NewBuilder(nil, source).Digest(context.Background(), time.Time{}, 0); err == nil {
		t.Fatalf("expected source error")
	}
}
