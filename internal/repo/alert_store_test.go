package repo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/koperasi/anomaly-engine/internal/models"
	"github.com/koperasi/anomaly-engine/internal/utils"
)

func newTestStore(t *testing.T) *AlertStore {
	t.Helper()
	store, err := NewAlertStore(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleAlert(id, metric string, sev models.Severity, at time.Time) models.Alert {
	return models.Alert{
		ID:         id,
		Metric:     metric,
		Timestamp:  at,
		Severity:   sev,
		Confidence: 0.72,
		Summary:    "Detected 1 anomaly (1 critical, 0 warnings)",
		Message:    "Anomaly detected in " + metric + ": 1 critical anomaly (confidence: 72%)",
		Anomalies: []models.Anomaly{{
			Index:    5,
			Value:    800,
			Severity: sev,
			Method:   models.MethodZScore,
			Methods:  []string{models.MethodZScore, models.MethodIQR},
			ZScore:   4.36,
		}},
	}
}

func TestAlertStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)

	if err := store.SaveAlert(ctx, sampleAlert("a-1", "cash_balance", models.SeverityCritical, at)); err != nil {
		t.Fatalf("save alert: %v", err)
	}

	resp, err := store.ListAlerts(ctx, models.ListAlertsRequest{Metric: "cash_balance"})
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if len(resp.Alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(resp.Alerts))
	}
	got := resp.Alerts[0]
	if got.ID != "a-1" || got.Severity != models.SeverityCritical || !got.Timestamp.Equal(at) {
		t.Fatalf("unexpected alert: %+v", got)
	}
	if len(got.Anomalies) != 1 || got.Anomalies[0].Index != 5 || !got.Anomalies[0].HasMethod(models.MethodIQR) {
		t.Fatalf("anomalies not preserved: %+v", got.Anomalies)
	}
	if resp.NextPageToken != "" {
		t.Fatalf("unexpected next page token %q", resp.NextPageToken)
	}
}

func TestAlertStoreFiltersAndPaging(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		sev := models.SeverityWarning
		if i%2 == 0 {
			sev = models.SeverityCritical
		}
		alert := sampleAlert(fmt.Sprintf("dr-%d", i), "default_rate", sev, base.Add(time.Duration(i)*time.Hour))
		if err := store.SaveAlert(ctx, alert); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if err := store.SaveAlert(ctx, sampleAlert("cb-0", "cash_balance", models.SeverityCritical, base)); err != nil {
		t.Fatalf("save: %v", err)
	}

	first, err := store.ListAlerts(ctx, models.ListAlertsRequest{Metric: "default_rate", PageSize: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(first.Alerts) != 2 || first.Alerts[0].ID != "dr-4" || first.NextPageToken != "2" {
		t.Fatalf("unexpected first page: ids=%v token=%q", alertIDs(first.Alerts), first.NextPageToken)
	}

	second, err := store.ListAlerts(ctx, models.ListAlertsRequest{Metric: "default_rate", PageSize: 2, PageToken: first.NextPageToken})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(second.Alerts) != 2 || second.Alerts[0].ID != "dr-2" {
		t.Fatalf("unexpected second page: %v", alertIDs(second.Alerts))
	}

	critical, err := store.ListAlerts(ctx, models.ListAlertsRequest{Severity: models.SeverityCritical})
	if err != nil {
		t.Fatalf("list critical: %v", err)
	}
	if len(critical.Alerts) != 4 {
		t.Fatalf("expected 4 critical alerts, got %v", alertIDs(critical.Alerts))
	}

	windowed, err := store.ListAlerts(ctx, models.ListAlertsRequest{
		Metric: "default_rate",
		Start:  base.Add(time.Hour),
		End:    base.Add(3 * time.Hour),
	})
	if err != nil {
		t.Fatalf("list window: %v", err)
	}
	if len(windowed.Alerts) != 3 {
		t.Fatalf("expected 3 alerts in window, got %v", alertIDs(windowed.Alerts))
	}

	since, err := store.AlertsSince(ctx, base.Add(4*time.Hour))
	if err != nil {
		t.Fatalf("alerts since: %v", err)
	}
	if len(since) != 1 || since[0].ID != "dr-4" {
		t.Fatalf("unexpected alerts since: %v", alertIDs(since))
	}
}

func TestAlertStoreRejectsBadPageToken(t *testing.T) {
	store := newTestStore(t)
	for _, token := range []string{"abc", "-3"} {
		_, err := store.ListAlerts(context.Background(), models.ListAlertsRequest{PageToken: token})
		if !errors.Is(err, utils.ErrInvalidPageToken) {
			t.Fatalf("token %q: expected ErrInvalidPageToken, got %v", token, err)
		}
		if utils.OpOf(err) != utils.OpListAlerts {
			t.Fatalf("token %q: unexpected op %q", token, utils.OpOf(err))
		}
	}
}

func TestAlertStoreThresholds(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := models.Threshold{Min: models.Float(10), Critical: &models.CriticalBound{Min: models.Float(5)}}
	if err := store.SaveThreshold(ctx, "transaction_volume", first); err != nil {
		t.Fatalf("save threshold: %v", err)
	}
	updated := models.Threshold{Max: models.Float(7), Disabled: true}
	if err := store.SaveThreshold(ctx, "transaction_volume", updated); err != nil {
		t.Fatalf("update threshold: %v", err)
	}

	loaded, err := store.LoadThresholds(ctx)
	if err != nil {
		t.Fatalf("load thresholds: %v", err)
	}
	got, ok := loaded["transaction_volume"]
	if !ok {
		t.Fatalf("threshold missing: %+v", loaded)
	}
	if got.Min != nil || got.Max == nil || *got.Max != 7 || got.Enabled() {
		t.Fatalf("unexpected threshold: %+v", got)
	}
}

func alertIDs(alerts []models.Alert) []string {
	ids := make([]string, 0, len(alerts))
	for _, a := range alerts {
		ids = append(ids, a.ID)
	}
	return ids
}

func TestAlertStoreSavesInfiniteDeviation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 3, 7, 0, 0, 0, time.UTC)

	alert := sampleAlert("flat-1", "transaction_volume", models.SeverityCritical, at)
	alert.Anomalies = []models.Anomaly{{
		Index:     10,
		Value:     150,
		Severity:  models.SeverityCritical,
		Method:    models.MethodIQR,
		Methods:   []string{models.MethodIQR},
		Deviation: math.Inf(1),
	}}
	if err := store.SaveAlert(ctx, alert); err != nil {
		t.Fatalf("save alert with infinite deviation: %v", err)
	}
	if !math.IsInf(alert.Anomalies[0].Deviation, 1) {
		t.Fatalf("caller's anomalies were modified")
	}

	resp, err := store.ListAlerts(ctx, models.ListAlertsRequest{Metric: "transaction_volume"})
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if len(resp.Alerts) != 1 || len(resp.Alerts[0].Anomalies) != 1 {
		t.Fatalf("expected stored alert with one anomaly, got %+v", resp.Alerts)
	}
	if got := resp.Alerts[0].Anomalies[0].Deviation; got != math.MaxFloat64 {
		t.Fatalf("expected deviation clamped to MaxFloat64, got %v", got)
	}
}
