package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/koperasi/anomaly-engine/internal/detectors"
	"github.com/koperasi/anomaly-engine/internal/metrics"
	"github.com/koperasi/anomaly-engine/internal/models"
	"github.com/koperasi/anomaly-engine/internal/thresholds"
)

// AlertHandler receives alerts emitted by the detector. A returned error is logged and counted;
// it does not affect other handlers.
type AlertHandler func(models.Alert) error

// Detector runs every detection method over a series, merges the findings and raises
// cooldown-limited alerts to subscribers.
type Detector struct {
	logger     *slog.Logger
	clock      clock.Clock
	thresholds *thresholds.Store
	history    AlertHistory

	mu  sync.RWMutex
	cfg Config

	subMu       sync.RWMutex
	nextSubID   uint64
	subscribers map[string][]*Subscription
	catchAll    []*Subscription
}

// Subscription is a registered alert handler.
type Subscription struct {
	id       uint64
	metric   string
	all      bool
	handler  AlertHandler
	detector *Detector
	once     sync.Once
}

// NewDetector constructs a detector. Nil collaborators fall back to the seeded threshold
// store, an in-memory history and the wall clock.
func NewDetector(
	logger *slog.Logger,
	cfg Config,
	store *thresholds.Store,
	history AlertHistory,
	clk clock.Clock,
) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("detector config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = thresholds.NewStore()
	}
	if history == nil {
		history = NewMemoryHistory()
	}
	if clk == nil {
		clk = clock.New()
	}

	return &Detector{
		logger:      logger,
		clock:       clk,
		thresholds:  store,
		history:     history,
		cfg:         cfg,
		subscribers: make(map[string][]*Subscription),
	}, nil
}

// DetectAnomalies runs detection with the current configuration.
func (d *Detector) DetectAnomalies(ctx context.Context, series models.Series, metric string) models.DetectionResult {
	return d.Detect(ctx, models.DetectRequest{Metric: metric, Series: series})
}

// Detect runs the four detectors over req.Series using the current configuration with
// req.Options applied for this call, merges the results and evaluates alerting.
func (d *Detector) Detect(ctx context.Context, req models.DetectRequest) models.DetectionResult {
	start := d.clock.Now()
	cfg := d.Config().Apply(req.Options)
	n := len(req.Series)

	if n < cfg.MinDataPoints {
		metrics.ObserveDetection(d.clock.Since(start), metrics.OutcomeInsufficient)
		return models.DetectionResult{
			Anomalies:  []models.Anomaly{},
			Method:     models.MethodInsufficientData,
			Confidence: 0,
			Statistics: map[string]float64{
				"data_points":     float64(n),
				"min_data_points": float64(cfg.MinDataPoints),
			},
		}
	}

	combined := Combine(
		detectors.NewZScoreDetector(cfg.ZScoreThreshold).Detect(req.Series),
		detectors.NewIQRDetector(cfg.IQRMultiplier).Detect(req.Series),
		detectors.NewThresholdDetector(d.thresholds).Detect(req.Series, req.Metric),
		detectors.NewTrendDetector(cfg.TrendChangeThreshold).Detect(req.Series),
	)
	combined.Statistics = map[string]float64{"data_points": float64(n)}

	metrics.ObserveDetection(d.clock.Since(start), metrics.OutcomeSuccess)
	for _, sev := range []models.Severity{models.SeverityInfo, models.SeverityWarning, models.SeverityCritical} {
		metrics.ObserveAnomalies(sev.String(), combined.CountBySeverity(sev))
	}

	if len(combined.Anomalies) > 0 {
		d.evaluateAlert(ctx, req.Metric, combined, cfg)
	}
	return combined
}

func (d *Detector) evaluateAlert(ctx context.Context, metric string, result models.DetectionResult, cfg Config) {
	now := d.clock.Now()
	acquired, err := d.history.TryAcquire(ctx, metric, now, cfg.AlertCooldown)
	if err != nil {
		// An unreachable history must not swallow alerts.
		d.logger.Warn("alert history unavailable, emitting without cooldown",
			slog.String("metric", metric), slog.Any("error", err))
		acquired = true
	}
	if !acquired {
		metrics.ObserveAlert(metrics.AlertSuppressed)
		d.logger.Debug("alert suppressed by cooldown", slog.String("metric", metric))
		return
	}

	alert := models.Alert{
		ID:         uuid.NewString(),
		Metric:     metric,
		Timestamp:  now,
		Severity:   result.MaxSeverity(),
		Anomalies:  append([]models.Anomaly(nil), result.Anomalies...),
		Confidence: result.Confidence,
		Summary:    result.Summary,
		Message:    AlertMessage(metric, result),
	}
	metrics.ObserveAlert(metrics.AlertEmitted)
	d.logger.Info("anomaly alert",
		slog.String("metric", metric),
		slog.String("severity", alert.Severity.String()),
		slog.Int("anomalies", len(alert.Anomalies)),
		slog.Float64("confidence", alert.Confidence))

	d.notify(alert)
}

func (d *Detector) notify(alert models.Alert) {
	d.subMu.RLock()
	handlers := make([]*Subscription, 0, len(d.subscribers[alert.Metric])+len(d.catchAll))
	handlers = append(handlers, d.subscribers[alert.Metric]...)
	handlers = append(handlers, d.catchAll...)
	d.subMu.RUnlock()

	for _, sub := range handlers {
		d.invoke(sub, alert)
	}
}

func (d *Detector) invoke(sub *Subscription, alert models.Alert) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ObserveSubscriberFailure()
			d.logger.Error("alert subscriber panicked",
				slog.String("metric", alert.Metric), slog.Any("panic", r))
		}
	}()
	if err := sub.handler(alert); err != nil {
		metrics.ObserveSubscriberFailure()
		d.logger.Error("alert subscriber failed",
			slog.String("metric", alert.Metric), slog.Any("error", err))
	}
}

// Subscribe registers handler for alerts on metric. Handlers run synchronously in
// registration order.
func (d *Detector) Subscribe(metric string, handler AlertHandler) *Subscription {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	d.nextSubID++
	sub := &Subscription{id: d.nextSubID, metric: metric, handler: handler, detector: d}
	d.subscribers[metric] = append(d.subscribers[metric], sub)
	return sub
}

// SubscribeAll registers handler for alerts on every metric. Catch-all handlers run after
// the metric-specific ones.
func (d *Detector) SubscribeAll(handler AlertHandler) *Subscription {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	d.nextSubID++
	sub := &Subscription{id: d.nextSubID, all: true, handler: handler, detector: d}
	d.catchAll = append(d.catchAll, sub)
	return sub
}

// SubscriberCount returns the number of handlers registered for metric, excluding catch-all.
func (d *Detector) SubscriberCount(metric string) int {
	d.subMu.RLock()
	defer d.subMu.RUnlock()
	return len(d.subscribers[metric])
}

// Unsubscribe removes the handler. Calling it more than once is harmless.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		d := s.detector
		d.subMu.Lock()
		defer d.subMu.Unlock()
		if s.all {
			d.catchAll = without(d.catchAll, s.id)
			return
		}
		remaining := without(d.subscribers[s.metric], s.id)
		if len(remaining) == 0 {
			delete(d.subscribers, s.metric)
			return
		}
		d.subscribers[s.metric] = remaining
	})
}

func without(subs []*Subscription, id uint64) []*Subscription {
	out := make([]*Subscription, 0, len(subs))
	for _, sub := range subs {
		if sub.id != id {
			out = append(out, sub)
		}
	}
	return out
}

// SetThreshold installs or replaces the threshold for metric.
func (d *Detector) SetThreshold(metric string, threshold models.Threshold) {
	d.thresholds.Set(metric, threshold)
}

// Threshold returns the threshold configured for metric.
func (d *Detector) Threshold(metric string) (models.Threshold, bool) {
	return d.thresholds.Get(metric)
}

// Thresholds exposes the backing threshold store.
func (d *Detector) Thresholds() *thresholds.Store {
	return d.thresholds
}

// Config returns a copy of the current configuration.
func (d *Detector) Config() Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// UpdateConfig merges the non-nil overrides into the configuration. The update is rejected
// as a whole when the merged configuration is invalid.
func (d *Detector) UpdateConfig(overrides models.ConfigOverrides) (Config, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	next := d.cfg.Apply(overrides)
	if err := next.Validate(); err != nil {
		return d.cfg, err
	}
	d.cfg = next
	return next, nil
}

// LastAlert returns the time of the most recent alert emitted for metric.
func (d *Detector) LastAlert(ctx context.Context, metric string) (time.Time, bool, error) {
	return d.history.Last(ctx, metric)
}

// ClearAlertHistory forgets the last alert time for metric so the next detection may alert
// immediately.
func (d *Detector) ClearAlertHistory(ctx context.Context, metric string) error {
	return d.history.Clear(ctx, metric)
}
