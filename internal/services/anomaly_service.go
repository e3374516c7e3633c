package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/koperasi/anomaly-engine/internal/api"
	"github.com/koperasi/anomaly-engine/internal/engine"
	anomalyv1 "github.com/koperasi/anomaly-engine/internal/grpc/anomalyv1"
	"github.com/koperasi/anomaly-engine/internal/models"
	"github.com/koperasi/anomaly-engine/internal/utils"
)

// DefaultDigestWindow bounds GetAlertDigest when the request names no window.
const DefaultDigestWindow = 30 * 24 * time.Hour

const watchBuffer = 16

// AlertRepository defines storage operations for alert history and thresholds.
type AlertRepository interface {
	ListAlerts(ctx context.Context, req models.ListAlertsRequest) (models.ListAlertsResponse, error)
	SaveThreshold(ctx context.Context, metric string, threshold models.Threshold) error
}

// DigestBuilder summarises recent alerts per metric.
type DigestBuilder interface {
	Digest(ctx context.Context, since time.Time, limit int) ([]models.MetricDigest, error)
}

// AnomalyService implements the gRPC AnomalyEngine service.
type AnomalyService struct {
	anomalyv1.UnimplementedAnomalyEngineServer

	logger    *slog.Logger
	detector  *engine.Detector
	alerts    AlertRepository
	digests   DigestBuilder
	clock     clock.Clock
	latencies *utils.LatencyTracker
}

// NewAnomalyService constructs the service facade. alerts and digests may be nil when
// persistence is disabled; the dependent methods then fail with FailedPrecondition. clk
// anchors the digest window and defaults to the wall clock.
func NewAnomalyService(logger *slog.Logger, detector *engine.Detector, alerts AlertRepository, digests DigestBuilder, clk clock.Clock) *AnomalyService {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.New()
	}
	return &AnomalyService{
		logger:    logger,
		detector:  detector,
		alerts:    alerts,
		digests:   digests,
		clock:     clk,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// DetectAnomalies runs every detector over the supplied series.
func (s *AnomalyService) DetectAnomalies(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if s.detector == nil {
		return nil, status.Error(codes.FailedPrecondition, "detector not configured")
	}

	domainReq, err := api.FromStructDetectRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	s.logger.Debug("DetectAnomalies called", slog.String("metric", domainReq.Metric), slog.Int("points", len(domainReq.Series)))

	start := time.Now()
	result := s.detector.Detect(ctx, domainReq)
	s.latencies.Observe(time.Since(start))
	if total := s.latencies.Total(); total%100 == 0 {
		snap := s.latencies.Snapshot()
		s.logger.Info("detection latency",
			slog.Duration("p50", snap.P50),
			slog.Duration("p95", snap.P95),
			slog.Duration("max", snap.Max),
			slog.Int("samples", snap.Samples),
		)
	}

	return toResponse(api.ToStructDetectionResult(result))
}

// SetThreshold persists and installs a metric threshold.
func (s *AnomalyService) SetThreshold(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if s.detector == nil {
		return nil, status.Error(codes.FailedPrecondition, "detector not configured")
	}

	metric, threshold, err := api.FromStructThreshold(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if s.alerts != nil {
		if err := s.alerts.SaveThreshold(ctx, metric, threshold); err != nil {
			s.logger.Error("persist threshold failed", slog.String("metric", metric), slog.Any("error", err))
			return nil, status.Error(codes.Internal, "failed to persist threshold")
		}
	}
	s.detector.SetThreshold(metric, threshold)
	s.logger.Info("threshold updated", slog.String("metric", metric), slog.Bool("enabled", threshold.Enabled()))

	return toResponse(api.ToStructThreshold(metric, threshold))
}

// GetThreshold returns the threshold configured for a metric.
func (s *AnomalyService) GetThreshold(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.detector == nil {
		return nil, status.Error(codes.FailedPrecondition, "detector not configured")
	}
	metric, err := api.FromStructMetric(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	threshold, ok := s.detector.Threshold(metric)
	if !ok {
		return nil, status.Error(codes.NotFound, fmt.Sprintf("no threshold for metric %q", metric))
	}
	return toResponse(api.ToStructThreshold(metric, threshold))
}

// GetConfig returns the current detector configuration.
func (s *AnomalyService) GetConfig(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.detector == nil {
		return nil, status.Error(codes.FailedPrecondition, "detector not configured")
	}
	if len(req.GetFields()) > 0 {
		return nil, status.Error(codes.InvalidArgument, "GetConfig takes no fields")
	}
	return toResponse(api.ToStructConfig(s.detector.Config()))
}

// UpdateConfig merges the supplied options into the detector configuration.
func (s *AnomalyService) UpdateConfig(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.detector == nil {
		return nil, status.Error(codes.FailedPrecondition, "detector not configured")
	}
	overrides, err := api.FromStructUpdateConfig(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	cfg, err := s.detector.UpdateConfig(overrides)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	s.logger.Info("detector config updated",
		slog.Float64("z_score_threshold", cfg.ZScoreThreshold),
		slog.Float64("iqr_multiplier", cfg.IQRMultiplier),
		slog.Float64("trend_change_threshold", cfg.TrendChangeThreshold),
		slog.Int("min_data_points", cfg.MinDataPoints),
		slog.Duration("alert_cooldown", cfg.AlertCooldown))
	return toResponse(api.ToStructConfig(cfg))
}

// GetLastAlert reports when a metric last raised an alert.
func (s *AnomalyService) GetLastAlert(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.detector == nil {
		return nil, status.Error(codes.FailedPrecondition, "detector not configured")
	}
	metric, err := api.FromStructMetric(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	last, ok, err := s.detector.LastAlert(ctx, metric)
	if err != nil {
		s.logger.Error("read alert history failed", slog.String("metric", metric), slog.Any("error", err))
		return nil, status.Error(codes.Unavailable, "alert history unavailable")
	}
	return toResponse(api.ToStructLastAlert(metric, last, ok))
}

// ClearAlertHistory resets the cooldown of a metric.
func (s *AnomalyService) ClearAlertHistory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.detector == nil {
		return nil, status.Error(codes.FailedPrecondition, "detector not configured")
	}
	metric, err := api.FromStructMetric(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.detector.ClearAlertHistory(ctx, metric); err != nil {
		s.logger.Error("clear alert history failed", slog.String("metric", metric), slog.Any("error", err))
		return nil, status.Error(codes.Unavailable, "alert history unavailable")
	}
	return toResponse(structpb.NewStruct(map[string]interface{}{"metric": metric, "cleared": true}))
}

// ListAlerts returns stored alerts.
func (s *AnomalyService) ListAlerts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if s.alerts == nil {
		return nil, status.Error(codes.FailedPrecondition, "alert store not configured")
	}

	domainReq, err := api.FromStructListAlertsRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	resp, err := s.alerts.ListAlerts(ctx, domainReq)
	if err != nil {
		if errors.Is(err, utils.ErrInvalidPageToken) {
			return nil, status.Error(codes.InvalidArgument, utils.ErrInvalidPageToken.Error())
		}
		s.logger.Error("list alerts failed", slog.String("op", utils.OpOf(err)), slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to list alerts")
	}
	return toResponse(api.ToStructListAlertsResponse(resp))
}

// GetAlertDigest summarises recent alerts per metric.
func (s *AnomalyService) GetAlertDigest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if s.digests == nil {
		return nil, status.Error(codes.FailedPrecondition, "alert store not configured")
	}

	limit, window, err := api.FromStructDigestRequest(req, DefaultDigestWindow)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	digests, err := s.digests.Digest(ctx, s.clock.Now().Add(-window), limit)
	if err != nil {
		s.logger.Error("alert digest failed", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to build alert digest")
	}
	return toResponse(api.ToStructDigest(digests))
}

// WatchAlerts streams alerts for one metric, or for every metric when none is given, until
// the client disconnects.
func (s *AnomalyService) WatchAlerts(req *structpb.Struct, stream anomalyv1.AnomalyEngine_WatchAlertsServer) error {
	if s.detector == nil {
		return status.Error(codes.FailedPrecondition, "detector not configured")
	}
	metric, err := api.FromStructOptionalMetric(req)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	alerts := make(chan models.Alert, watchBuffer)
	forward := func(alert models.Alert) error {
		select {
		case alerts <- alert:
			return nil
		default:
			return fmt.Errorf("watch stream for %q is lagging, alert %s dropped", metric, alert.ID)
		}
	}

	var sub *engine.Subscription
	if metric == "" {
		sub = s.detector.SubscribeAll(forward)
	} else {
		sub = s.detector.Subscribe(metric, forward)
	}
	defer sub.Unsubscribe()

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case alert := <-alerts:
			msg, err := api.ToStructAlert(alert)
			if err != nil {
				return status.Error(codes.Internal, err.Error())
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

func toResponse(out *structpb.Struct, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	return out, nil
}
