package engine

import (
	"fmt"
	"time"

	"github.com/koperasi/anomaly-engine/internal/detectors"
	"github.com/koperasi/anomaly-engine/internal/models"
)

// Default detector settings.
const (
	DefaultMinDataPoints = 10
	DefaultAlertCooldown = 5 * time.Minute
)

// Config holds the recognised detector options.
type Config struct {
	ZScoreThreshold      float64
	IQRMultiplier        float64
	TrendChangeThreshold float64
	MinDataPoints        int
	AlertCooldown        time.Duration
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		ZScoreThreshold:      detectors.DefaultZScoreThreshold,
		IQRMultiplier:        detectors.DefaultIQRMultiplier,
		TrendChangeThreshold: detectors.DefaultTrendChangeThreshold,
		MinDataPoints:        DefaultMinDataPoints,
		AlertCooldown:        DefaultAlertCooldown,
	}
}

// Apply returns a copy of c with every non-nil override set.
func (c Config) Apply(o models.ConfigOverrides) Config {
	if o.ZScoreThreshold != nil {
		c.ZScoreThreshold = *o.ZScoreThreshold
	}
	if o.IQRMultiplier != nil {
		c.IQRMultiplier = *o.IQRMultiplier
	}
	if o.TrendChangeThreshold != nil {
		c.TrendChangeThreshold = *o.TrendChangeThreshold
	}
	if o.MinDataPoints != nil {
		c.MinDataPoints = *o.MinDataPoints
	}
	if o.AlertCooldown != nil {
		c.AlertCooldown = *o.AlertCooldown
	}
	return c
}

// Validate rejects values the detectors cannot use.
func (c Config) Validate() error {
	switch {
	case c.ZScoreThreshold <= 0:
		return fmt.Errorf("zScoreThreshold must be positive, got %v", c.ZScoreThreshold)
	case c.IQRMultiplier <= 0:
		return fmt.Errorf("iqrMultiplier must be positive, got %v", c.IQRMultiplier)
	case c.TrendChangeThreshold <= 0:
		return fmt.Errorf("trendChangeThreshold must be positive, got %v", c.TrendChangeThreshold)
	case c.MinDataPoints < 1:
		return fmt.Errorf("minDataPoints must be at least 1, got %d", c.MinDataPoints)
	case c.AlertCooldown < 0:
		return fmt.Errorf("alertCooldown must not be negative, got %s", c.AlertCooldown)
	}
	return nil
}
