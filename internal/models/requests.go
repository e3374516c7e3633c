package models

import "time"

// DetectRequest is a detection call received over the API.
type DetectRequest struct {
	Metric string
	Series Series
	// Options overrides the detector configuration for this call only.
	Options ConfigOverrides
}

// ConfigOverrides carries optional per-field configuration values; nil fields are left unchanged.
type ConfigOverrides struct {
	ZScoreThreshold      *float64
	IQRMultiplier        *float64
	TrendChangeThreshold *float64
	MinDataPoints        *int
	AlertCooldown        *time.Duration
}

// IsZero reports whether no override is set.
func (o ConfigOverrides) IsZero() bool {
	return o.ZScoreThreshold == nil && o.IQRMultiplier == nil && o.TrendChangeThreshold == nil &&
		o.MinDataPoints == nil && o.AlertCooldown == nil
}

// ListAlertsRequest captures filters for stored alert history.
type ListAlertsRequest struct {
	Metric    string
	Severity  Severity
	Start     time.Time
	End       time.Time
	PageSize  int
	PageToken string
}

// ListAlertsResponse contains alert records and pagination state.
type ListAlertsResponse struct {
	Alerts        []Alert
	NextPageToken string
}
