package watch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/koperasi/anomaly-engine/internal/models"
)

// SeriesSource fetches the observations of a metric within a time window.
type SeriesSource interface {
	FetchSeries(ctx context.Context, metric string, start, end time.Time) (models.Series, error)
}

// Detector runs anomaly detection over a series.
type Detector interface {
	DetectAnomalies(ctx context.Context, series models.Series, metric string) models.DetectionResult
}

// Job re-evaluates Metric every Interval over the trailing Lookback window.
type Job struct {
	Metric   string
	Interval time.Duration
	Lookback time.Duration
}

// Scheduler periodically refreshes detection for a fixed set of metrics, the way a dashboard
// re-runs detection on every auto-refresh.
type Scheduler struct {
	logger   *slog.Logger
	clock    clock.Clock
	source   SeriesSource
	detector Detector
	jobs     []Job
}

// NewScheduler constructs a scheduler. A nil clock uses wall time.
func NewScheduler(logger *slog.Logger, clk clock.Clock, source SeriesSource, detector Detector, jobs []Job) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{
		logger:   logger,
		clock:    clk,
		source:   source,
		detector: detector,
		jobs:     append([]Job(nil), jobs...),
	}
}

// Run starts one loop per job and blocks until ctx is cancelled. Each job runs once
// immediately and then on every tick.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.source == nil || s.detector == nil {
		return fmt.Errorf("watch scheduler requires a series source and a detector")
	}
	for _, job := range s.jobs {
		if job.Interval <= 0 {
			return fmt.Errorf("watch job %q: interval must be positive", job.Metric)
		}
	}

	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.loop(ctx, job)
		}(job)
	}
	s.logger.Info("watch scheduler started", slog.Int("jobs", len(s.jobs)))
	wg.Wait()
	return nil
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	ticker := s.clock.Ticker(job.Interval)
	defer ticker.Stop()

	s.runLogged(ctx, job)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runLogged(ctx, job)
		}
	}
}

func (s *Scheduler) runLogged(ctx context.Context, job Job) {
	result, err := s.RunOnce(ctx, job)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("watch job failed", slog.String("metric", job.Metric), slog.Any("error", err))
		}
		return
	}
	s.logger.Debug("watch job evaluated",
		slog.String("metric", job.Metric),
		slog.String("method", result.Method),
		slog.Int("anomalies", len(result.Anomalies)))
}

// RunOnce fetches the job's window ending now and runs detection over it.
func (s *Scheduler) RunOnce(ctx context.Context, job Job) (models.DetectionResult, error) {
	end := s.clock.Now()
	series, err := s.source.FetchSeries(ctx, job.Metric, end.Add(-job.Lookback), end)
	if err != nil {
		return models.DetectionResult{}, fmt.Errorf("fetch %s: %w", job.Metric, err)
	}
	return s.detector.DetectAnomalies(ctx, series, job.Metric), nil
}
