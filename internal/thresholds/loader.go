package thresholds

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/koperasi/anomaly-engine/internal/models"
)

// FileSpec is the YAML root structure of a threshold overrides file.
type FileSpec struct {
	Thresholds map[string]Spec `yaml:"thresholds"`
}

// Spec is the YAML (and API) shape of one threshold. A missing enabled flag means enabled.
type Spec struct {
	Min      *float64      `yaml:"min"`
	Max      *float64      `yaml:"max"`
	Critical *CriticalSpec `yaml:"critical"`
	Enabled  *bool         `yaml:"enabled"`
}

// CriticalSpec accepts either a bare number (lower bound) or a {min, max} mapping.
type CriticalSpec struct {
	Min *float64 `yaml:"min"`
	Max *float64 `yaml:"max"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *CriticalSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var v float64
		if err := node.Decode(&v); err != nil {
			return fmt.Errorf("critical: %w", err)
		}
		c.Min = &v
		return nil
	case yaml.MappingNode:
		var raw struct {
			Min *float64 `yaml:"min"`
			Max *float64 `yaml:"max"`
		}
		if err := node.Decode(&raw); err != nil {
			return fmt.Errorf("critical: %w", err)
		}
		c.Min, c.Max = raw.Min, raw.Max
		return nil
	default:
		return fmt.Errorf("critical: expected number or mapping at line %d", node.Line)
	}
}

// Threshold converts the spec into the domain threshold.
func (s Spec) Threshold() models.Threshold {
	threshold := models.Threshold{
		Min:      s.Min,
		Max:      s.Max,
		Disabled: s.Enabled != nil && !*s.Enabled,
	}
	if s.Critical != nil && (s.Critical.Min != nil || s.Critical.Max != nil) {
		threshold.Critical = &models.CriticalBound{Min: s.Critical.Min, Max: s.Critical.Max}
	}
	return threshold.Clone()
}

// SpecFromThreshold is the inverse of Spec.Threshold.
func SpecFromThreshold(t models.Threshold) Spec {
	enabled := t.Enabled()
	spec := Spec{Min: t.Min, Max: t.Max, Enabled: &enabled}
	if t.Critical != nil {
		spec.Critical = &CriticalSpec{Min: t.Critical.Min, Max: t.Critical.Max}
	}
	return spec
}

// LoadFile reads threshold overrides from path and applies them to store. A missing file
// is not an error; it returns zero applied entries.
func LoadFile(path string, store *Store, logger *slog.Logger) (int, error) {
	if path == "" || store == nil {
		return 0, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug("threshold file not found", slog.String("path", path))
			return 0, nil
		}
		return 0, fmt.Errorf("read thresholds: %w", err)
	}

	var file FileSpec
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("parse thresholds: %w", err)
	}
	for metric, spec := range file.Thresholds {
		if metric == "" {
			continue
		}
		store.Set(metric, spec.Threshold())
	}
	logger.Info("threshold overrides loaded", slog.String("path", path), slog.Int("count", len(file.Thresholds)))
	return len(file.Thresholds), nil
}
