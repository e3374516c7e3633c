package services

import (
	"context"
	"time"

	"github.com/koperasi/anomaly-engine/internal/engine"
	"github.com/koperasi/anomaly-engine/internal/models"
)

// AlertSaver persists emitted alerts.
type AlertSaver interface {
	SaveAlert(ctx context.Context, alert models.Alert) error
}

// RecordAlerts subscribes saver to every alert the detector emits. Each write is bounded by
// timeout; failures surface through the detector's subscriber error handling.
func RecordAlerts(detector *engine.Detector, saver AlertSaver, timeout time.Duration) *engine.Subscription {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return detector.SubscribeAll(func(alert models.Alert) error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return saver.SaveAlert(ctx, alert)
	})
}
