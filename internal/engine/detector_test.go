package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koperasi/anomaly-engine/internal/cache"
	"github.com/koperasi/anomaly-engine/internal/models"
	"github.com/koperasi/anomaly-engine/internal/thresholds"
)

// savingsDeposits holds daily deposits in [90,110] with one bulk deposit at index 5.
var savingsDeposits = []float64{98, 102, 95, 105, 100, 800, 97, 103, 99, 101, 96, 104, 100, 92, 108, 94, 106, 91, 109, 100}

func newTestDetector(t *testing.T, history AlertHistory) (*Detector, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	d, err := NewDetector(nil, DefaultConfig(), thresholds.NewStore(), history, mock)
	require.NoError(t, err)
	return d, mock
}

type alertRecorder struct {
	alerts []models.Alert
}

func (r *alertRecorder) handle(alert models.Alert) error {
	r.alerts = append(r.alerts, alert)
	return nil
}

func TestDetectAnomaliesFlagsBulkDeposit(t *testing.T) {
	d, mock := newTestDetector(t, nil)
	rec := &alertRecorder{}
	d.Subscribe("savings_deposits", rec.handle)

	res := d.DetectAnomalies(context.Background(), models.SeriesFromValues(savingsDeposits), "savings_deposits")

	assert.Equal(t, models.MethodCombined, res.Method)
	assert.GreaterOrEqual(t, res.Confidence, 0.5)
	assert.LessOrEqual(t, res.Confidence, 1.0)

	seen := make(map[int]bool)
	var bulk *models.Anomaly
	for i := range res.Anomalies {
		a := res.Anomalies[i]
		require.False(t, seen[a.Index], "duplicate index %d", a.Index)
		seen[a.Index] = true
		if a.Index == 5 {
			bulk = &res.Anomalies[i]
		}
	}
	require.NotNil(t, bulk)
	assert.Equal(t, models.SeverityCritical, bulk.Severity)
	assert.Equal(t, models.MethodZScore, bulk.Method)
	assert.True(t, bulk.HasMethod(models.MethodIQR))

	require.Len(t, rec.alerts, 1)
	alert := rec.alerts[0]
	assert.NotEmpty(t, alert.ID)
	assert.Equal(t, "savings_deposits", alert.Metric)
	assert.Equal(t, mock.Now(), alert.Timestamp)
	assert.Equal(t, models.SeverityCritical, alert.Severity)
	assert.Equal(t, res.Summary, alert.Summary)
	assert.Contains(t, alert.Message, "Anomaly detected in savings_deposits: ")
}

func TestDetectAnomaliesInsufficientData(t *testing.T) {
	d, _ := newTestDetector(t, nil)
	rec := &alertRecorder{}
	d.Subscribe("cash_balance", rec.handle)

	res := d.DetectAnomalies(context.Background(), models.SeriesFromValues([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9}), "cash_balance")
	assert.Equal(t, models.MethodInsufficientData, res.Method)
	assert.Empty(t, res.Anomalies)
	assert.Zero(t, res.Confidence)
	assert.Empty(t, rec.alerts)
}

func TestDetectOverridesApplyPerCall(t *testing.T) {
	d, _ := newTestDetector(t, nil)
	minPoints := 30
	res := d.Detect(context.Background(), models.DetectRequest{
		Metric:  "savings_deposits",
		Series:  models.SeriesFromValues(savingsDeposits),
		Options: models.ConfigOverrides{MinDataPoints: &minPoints},
	})
	assert.Equal(t, models.MethodInsufficientData, res.Method)
	assert.Equal(t, DefaultMinDataPoints, d.Config().MinDataPoints)
}

func TestDetectAnomaliesUniformSeries(t *testing.T) {
	d, _ := newTestDetector(t, nil)
	rec := &alertRecorder{}
	d.SubscribeAll(rec.handle)

	values := make([]float64, 20)
	for i := range values {
		values[i] = 100
	}
	res := d.DetectAnomalies(context.Background(), models.SeriesFromValues(values), "member_count")
	assert.Empty(t, res.Anomalies)
	assert.Zero(t, res.Confidence)
	assert.Equal(t, "No anomalies detected", res.Summary)
	assert.Empty(t, rec.alerts)
}

func TestDetectAnomaliesDeterministic(t *testing.T) {
	first, _ := newTestDetector(t, nil)
	second, _ := newTestDetector(t, nil)
	series := models.SeriesFromValues(savingsDeposits)

	a := first.DetectAnomalies(context.Background(), series, "savings_deposits")
	b := second.DetectAnomalies(context.Background(), series, "savings_deposits")
	assert.Equal(t, a, b)
}

func TestDetectAnomaliesDoesNotMutateSeries(t *testing.T) {
	d, _ := newTestDetector(t, nil)
	series := models.SeriesFromValues(savingsDeposits)
	before := append(models.Series(nil), series...)

	d.DetectAnomalies(context.Background(), series, "savings_deposits")
	assert.Equal(t, before, series)
}

func TestDetectAnomaliesThresholdBreach(t *testing.T) {
	d, _ := newTestDetector(t, nil)
	values := []float64{3.1, 3.0, 2.9, 3.2, 3.1, 3.0, 2.8, 3.1, 12.5, 3.0, 2.9, 3.1}

	res := d.DetectAnomalies(context.Background(), models.SeriesFromValues(values), thresholds.MetricDefaultRate)
	var breach *models.Anomaly
	for i := range res.Anomalies {
		if res.Anomalies[i].Index == 8 {
			breach = &res.Anomalies[i]
		}
	}
	require.NotNil(t, breach)
	assert.Equal(t, models.SeverityCritical, breach.Severity)
	assert.True(t, breach.HasMethod(models.MethodThreshold))
	assert.Equal(t, 1.0, res.MethodConfidences[models.MethodThreshold])
}

func TestAlertCooldown(t *testing.T) {
	d, mock := newTestDetector(t, nil)
	rec := &alertRecorder{}
	d.Subscribe("savings_deposits", rec.handle)
	series := models.SeriesFromValues(savingsDeposits)
	ctx := context.Background()

	first := d.DetectAnomalies(ctx, series, "savings_deposits")
	mock.Add(time.Minute)
	second := d.DetectAnomalies(ctx, series, "savings_deposits")

	require.Len(t, rec.alerts, 1)
	assert.Equal(t, first.Anomalies, second.Anomalies, "suppressed calls still return the full result")

	last, ok, err := d.LastAlert(ctx, "savings_deposits")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec.alerts[0].Timestamp, last)

	mock.Add(4 * time.Minute)
	d.DetectAnomalies(ctx, series, "savings_deposits")
	assert.Len(t, rec.alerts, 2)
}

func TestClearAlertHistory(t *testing.T) {
	d, _ := newTestDetector(t, nil)
	rec := &alertRecorder{}
	d.Subscribe("savings_deposits", rec.handle)
	series := models.SeriesFromValues(savingsDeposits)
	ctx := context.Background()

	d.DetectAnomalies(ctx, series, "savings_deposits")
	require.NoError(t, d.ClearAlertHistory(ctx, "savings_deposits"))
	_, ok, _ := d.LastAlert(ctx, "savings_deposits")
	assert.False(t, ok)

	d.DetectAnomalies(ctx, series, "savings_deposits")
	assert.Len(t, rec.alerts, 2)
}

func TestCooldownSharedThroughCache(t *testing.T) {
	mock := clock.NewMock()
	provider := cache.NewMemoryProvider(mock)
	series := models.SeriesFromValues(savingsDeposits)

	var delivered int
	for i := 0; i < 2; i++ {
		d, err := NewDetector(nil, DefaultConfig(), nil, NewCacheHistory(provider), mock)
		require.NoError(t, err)
		d.Subscribe("savings_deposits", func(models.Alert) error {
			delivered++
			return nil
		})
		d.DetectAnomalies(context.Background(), series, "savings_deposits")
	}
	assert.Equal(t, 1, delivered)
}

type failingHistory struct{}

func (failingHistory) TryAcquire(context.Context, string, time.Time, time.Duration) (bool, error) {
	return false, errors.New("valkey down")
}

func (failingHistory) Last(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, errors.New("valkey down")
}

func (failingHistory) Clear(context.Context, string) error { return errors.New("valkey down") }

func TestHistoryFailureStillAlerts(t *testing.T) {
	d, _ := newTestDetector(t, failingHistory{})
	rec := &alertRecorder{}
	d.Subscribe("savings_deposits", rec.handle)

	d.DetectAnomalies(context.Background(), models.SeriesFromValues(savingsDeposits), "savings_deposits")
	assert.Len(t, rec.alerts, 1)
}

func TestSubscriberFailuresAreIsolated(t *testing.T) {
	d, _ := newTestDetector(t, nil)
	rec := &alertRecorder{}
	d.Subscribe("savings_deposits", func(models.Alert) error { panic("dashboard gone") })
	d.Subscribe("savings_deposits", func(models.Alert) error { return errors.New("mail relay refused") })
	d.Subscribe("savings_deposits", rec.handle)

	res := d.DetectAnomalies(context.Background(), models.SeriesFromValues(savingsDeposits), "savings_deposits")
	assert.NotEmpty(t, res.Anomalies)
	assert.Len(t, rec.alerts, 1)
}

func TestUnsubscribe(t *testing.T) {
	d, _ := newTestDetector(t, nil)
	rec := &alertRecorder{}
	all := &alertRecorder{}
	sub := d.Subscribe("savings_deposits", rec.handle)
	catchAll := d.SubscribeAll(all.handle)
	require.Equal(t, 1, d.SubscriberCount("savings_deposits"))

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Zero(t, d.SubscriberCount("savings_deposits"))

	ctx := context.Background()
	d.DetectAnomalies(ctx, models.SeriesFromValues(savingsDeposits), "savings_deposits")
	assert.Empty(t, rec.alerts)
	assert.Len(t, all.alerts, 1)

	catchAll.Unsubscribe()
	require.NoError(t, d.ClearAlertHistory(ctx, "savings_deposits"))
	d.DetectAnomalies(ctx, models.SeriesFromValues(savingsDeposits), "savings_deposits")
	assert.Len(t, all.alerts, 1)
}

func TestUpdateConfig(t *testing.T) {
	d, _ := newTestDetector(t, nil)

	z := 3.0
	cfg, err := d.UpdateConfig(models.ConfigOverrides{ZScoreThreshold: &z})
	require.NoError(t, err)
	assert.Equal(t, 3.0, cfg.ZScoreThreshold)
	assert.Equal(t, DefaultConfig().IQRMultiplier, cfg.IQRMultiplier)

	bad := -1
	_, err = d.UpdateConfig(models.ConfigOverrides{ZScoreThreshold: &z, MinDataPoints: &bad})
	require.Error(t, err)
	assert.Equal(t, DefaultMinDataPoints, d.Config().MinDataPoints)
}

func TestNewDetectorRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IQRMultiplier = 0
	_, err := NewDetector(nil, cfg, nil, nil, nil)
	assert.Error(t, err)
}

func TestSetThreshold(t *testing.T) {
	d, _ := newTestDetector(t, nil)
	d.SetThreshold("shu_distribution", models.Threshold{Max: models.Float(200)})

	got, ok := d.Threshold("shu_distribution")
	require.True(t, ok)
	require.NotNil(t, got.Max)
	assert.Equal(t, 200.0, *got.Max)
	assert.True(t, got.Enabled())
}
