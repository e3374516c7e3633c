package digest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/koperasi/anomaly-engine/internal/models"
)

const topMethodLimit = 3

// Source supplies stored alerts.
type Source interface {
	AlertsSince(ctx context.Context, since time.Time) ([]models.Alert, error)
}

// Builder summarises alert history per metric.
type Builder struct {
	source Source
	logger *slog.Logger
}

// NewBuilder constructs a Builder; source may be nil, in which case Digest fails.
func NewBuilder(logger *slog.Logger, source Source) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{source: source, logger: logger}
}

// Digest loads alerts newer than since and returns at most limit metric digests, most
// prevalent first. A non-positive limit returns every metric.
func (b *Builder) Digest(ctx context.Context, since time.Time, limit int) ([]models.MetricDigest, error) {
	if b.source == nil {
		return nil, fmt.Errorf("alert source not configured")
	}
	alerts, err := b.source.AlertsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("load alerts: %w", err)
	}
	digests := Build(alerts)
	if limit > 0 && len(digests) > limit {
		digests = digests[:limit]
	}
	b.logger.Debug("alert digest built", slog.Int("alerts", len(alerts)), slog.Int("metrics", len(digests)))
	return digests, nil
}

// Build aggregates alerts per metric. Prevalence is the metric's share of all alerts.
func Build(alerts []models.Alert) []models.MetricDigest {
	if len(alerts) == 0 {
		return nil
	}

	byMetric := make(map[string]*metricAggregate)
	for _, alert := range alerts {
		agg := ensureAggregate(byMetric, alert.Metric)
		agg.count++
		agg.confidence += alert.Confidence
		if alert.Severity == models.SeverityCritical {
			agg.critical++
		}
		if alert.Timestamp.After(agg.lastSeen) {
			agg.lastSeen = alert.Timestamp
		}
		for _, anomaly := range alert.Anomalies {
			methods := anomaly.Methods
			if len(methods) == 0 {
				methods = []string{anomaly.Method}
			}
			for _, method := range methods {
				agg.methods[method]++
			}
		}
	}

	digests := make([]models.MetricDigest, 0, len(byMetric))
	for metric, agg := range byMetric {
		digests = append(digests, models.MetricDigest{
			Metric:         metric,
			AlertCount:     agg.count,
			CriticalCount:  agg.critical,
			Prevalence:     float64(agg.count) / float64(len(alerts)),
			MeanConfidence: agg.confidence / float64(agg.count),
			LastSeen:       agg.lastSeen,
			TopMethods:     agg.topMethods(topMethodLimit),
		})
	}

	sort.Slice(digests, func(i, j int) bool {
		if digests[i].AlertCount != digests[j].AlertCount {
			return digests[i].AlertCount > digests[j].AlertCount
		}
		return digests[i].Metric < digests[j].Metric
	})
	return digests
}

type metricAggregate struct {
	count      int
	critical   int
	confidence float64
	lastSeen   time.Time
	methods    map[string]int
}

func ensureAggregate(m map[string]*metricAggregate, metric string) *metricAggregate {
	if metric == "" {
		metric = "unknown"
	}
	agg, ok := m[metric]
	if !ok {
		agg = &metricAggregate{methods: make(map[string]int)}
		m[metric] = agg
	}
	return agg
}

func (agg *metricAggregate) topMethods(limit int) []string {
	methods := make([]string, 0, len(agg.methods))
	for method := range agg.methods {
		methods = append(methods, method)
	}
	sort.Slice(methods, func(i, j int) bool {
		if agg.methods[methods[i]] != agg.methods[methods[j]] {
			return agg.methods[methods[i]] > agg.methods[methods[j]]
		}
		return methods[i] < methods[j]
	})
	if len(methods) > limit {
		methods = methods[:limit]
	}
	return methods
}
