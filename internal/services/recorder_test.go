package services

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/koperasi/anomaly-engine/internal/engine"
	"github.com/koperasi/anomaly-engine/internal/models"
	"github.com/koperasi/anomaly-engine/internal/repo"
)

func TestRecordAlertsPersistsZeroSpreadSeries(t *testing.T) {
	store, err := repo.NewAlertStore(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	detector, err := engine.NewDetector(nil, engine.DefaultConfig(), nil, nil, nil)
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	RecordAlerts(detector, store, time.Second)

	// Q1 == Q3 == 100, so the IQR fences collapse and both 150s sit infinitely far out.
	values := []float64{100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 150, 150}
	result := detector.DetectAnomalies(context.Background(), models.SeriesFromValues(values), "flat_volume")

	var sawInfinite bool
	for _, a := range result.Anomalies {
		if math.IsInf(a.Deviation, 1) {
			sawInfinite = true
		}
	}
	if !sawInfinite {
		t.Fatalf("expected an infinite IQR deviation in %+v", result.Anomalies)
	}

	resp, err := store.ListAlerts(context.Background(), models.ListAlertsRequest{Metric: "flat_volume"})
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if len(resp.Alerts) != 1 {
		t.Fatalf("expected the emitted alert to be stored, got %d", len(resp.Alerts))
	}
	if len(resp.Alerts[0].Anomalies) != len(result.Anomalies) {
		t.Fatalf("stored %d anomalies, detected %d", len(resp.Alerts[0].Anomalies), len(result.Anomalies))
	}
}
