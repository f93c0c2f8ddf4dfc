// Package config loads tracker tuning from JSON files.
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/LdDl/mot-counter/mot"
	"github.com/pkg/errors"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// TuningConfig is the JSON representation of tracker configuration.
// Omitted fields keep values of mot.DefaultTrackerConfig.
type TuningConfig struct {
	// Association and lifecycle
	MinIoU            *float64 `json:"min_iou,omitempty"`
	MaxAge            *int     `json:"max_age,omitempty"`
	MinHitStreak      *int     `json:"min_hit_streak,omitempty"`
	MaxHistory        *int     `json:"max_history,omitempty"`
	MatchingAlgorithm *string  `json:"matching_algorithm,omitempty"` // "kuhn_munkres" or "hungarian"
	MotionModel       *string  `json:"motion_model,omitempty"`       // "area_aspect" or "width_height"

	// Estimator noise
	MeasurementNoisePos   *float64 `json:"measurement_noise_pos,omitempty"`
	MeasurementNoiseShape *float64 `json:"measurement_noise_shape,omitempty"`
	InitialVariancePos    *float64 `json:"initial_variance_pos,omitempty"`
	InitialVarianceVel    *float64 `json:"initial_variance_vel,omitempty"`
	ProcessNoisePos       *float64 `json:"process_noise_pos,omitempty"`
	ProcessNoiseVel       *float64 `json:"process_noise_vel,omitempty"`
	ProcessNoiseAreaVel   *float64 `json:"process_noise_area_vel,omitempty"`
	AccelerationStdDev    *float64 `json:"acceleration_std_dev,omitempty"`

	// Counting
	GateAxis *string     `json:"gate_axis,omitempty"` // "x" or "y"
	Gate     *GateConfig `json:"gate,omitempty"`
	ROI      *RectConfig `json:"roi,omitempty"`
}

// GateConfig describes counting policy
type GateConfig struct {
	Kind string `json:"kind"` // "line", "radius", "extent" or "none"

	// line
	Line      float64 `json:"line,omitempty"`
	Direction string  `json:"direction,omitempty"` // "increasing", "decreasing" or "either"

	// radius
	BufferPoint   *[2]float64 `json:"buffer_point,omitempty"`
	TriggerRadius float64     `json:"gate_trigger_radius,omitempty"`

	// extent
	MinTravel float64 `json:"min_travel,omitempty"`
}

// RectConfig is a top-left based rectangle
type RectConfig struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// Unknown fields are rejected so typos do not silently fall back to defaults.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, errors.Errorf("config file must have .json extension, got %q", ext)
	}
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat config file")
	}
	if fileInfo.Size() > maxFileSize {
		return nil, errors.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return ParseTuningConfig(data)
}

// ParseTuningConfig decodes TuningConfig from JSON bytes
func ParseTuningConfig(data []byte) (*TuningConfig, error) {
	cfg := &TuningConfig{}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config JSON")
	}
	return cfg, nil
}

func (c *TuningConfig) GetMinIoU() float64 {
	if c.MinIoU == nil {
		return mot.DefaultTrackerConfig().MinIoU
	}
	return *c.MinIoU
}

func (c *TuningConfig) GetMaxAge() int {
	if c.MaxAge == nil {
		return mot.DefaultTrackerConfig().MaxAge
	}
	return *c.MaxAge
}

func (c *TuningConfig) GetMinHitStreak() int {
	if c.MinHitStreak == nil {
		return mot.DefaultTrackerConfig().MinHitStreak
	}
	return *c.MinHitStreak
}

func (c *TuningConfig) GetMaxHistory() int {
	if c.MaxHistory == nil {
		return mot.DefaultTrackerConfig().MaxHistory
	}
	return *c.MaxHistory
}

// TrackerConfig converts tuning into tracker configuration. The result is validated
func (c *TuningConfig) TrackerConfig() (mot.TrackerConfig, error) {
	cfg := mot.DefaultTrackerConfig()
	cfg.MinIoU = c.GetMinIoU()
	cfg.MaxAge = c.GetMaxAge()
	cfg.MinHitStreak = c.GetMinHitStreak()
	cfg.MaxHistory = c.GetMaxHistory()

	if c.MatchingAlgorithm != nil {
		switch strings.ToLower(*c.MatchingAlgorithm) {
		case "kuhn_munkres", "":
			cfg.Algorithm = mot.MatchingAlgorithmKuhnMunkres
		case "hungarian":
			cfg.Algorithm = mot.MatchingAlgorithmHungarian
		default:
			return cfg, errors.Wrapf(mot.ErrInvalidConfig, "unknown matching algorithm %q", *c.MatchingAlgorithm)
		}
	}
	if c.MotionModel != nil {
		switch strings.ToLower(*c.MotionModel) {
		case "area_aspect", "":
			cfg.Model = mot.ModelAreaAspect
		case "width_height":
			cfg.Model = mot.ModelWidthHeight
		default:
			return cfg, errors.Wrapf(mot.ErrInvalidConfig, "unknown motion model %q", *c.MotionModel)
		}
	}
	if c.GateAxis != nil {
		switch strings.ToLower(*c.GateAxis) {
		case "y", "":
			cfg.GateAxis = mot.AxisY
		case "x":
			cfg.GateAxis = mot.AxisX
		default:
			return cfg, errors.Wrapf(mot.ErrInvalidConfig, "unknown gate axis %q", *c.GateAxis)
		}
	}

	setIfPresent(&cfg.Estimator.MeasurementNoisePos, c.MeasurementNoisePos)
	setIfPresent(&cfg.Estimator.MeasurementNoiseShape, c.MeasurementNoiseShape)
	setIfPresent(&cfg.Estimator.InitialVariancePos, c.InitialVariancePos)
	setIfPresent(&cfg.Estimator.InitialVarianceVel, c.InitialVarianceVel)
	setIfPresent(&cfg.Estimator.ProcessNoisePos, c.ProcessNoisePos)
	setIfPresent(&cfg.Estimator.ProcessNoiseVel, c.ProcessNoiseVel)
	setIfPresent(&cfg.Estimator.ProcessNoiseAreaVel, c.ProcessNoiseAreaVel)
	setIfPresent(&cfg.Estimator.AccelerationStdDev, c.AccelerationStdDev)

	if c.Gate != nil {
		gate, err := c.Gate.Policy()
		if err != nil {
			return cfg, err
		}
		cfg.Gate = gate
	}
	if c.ROI != nil {
		roi := mot.NewRect(c.ROI.X, c.ROI.Y, c.ROI.Width, c.ROI.Height)
		cfg.ROI = &roi
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Policy builds counting policy. Kind "none" (or empty) gives nil policy
func (g *GateConfig) Policy() (mot.CountingPolicy, error) {
	switch strings.ToLower(g.Kind) {
	case "", "none":
		return nil, nil
	case "line":
		direction := mot.DirectionIncreasing
		switch strings.ToLower(g.Direction) {
		case "", "increasing":
		case "decreasing":
			direction = mot.DirectionDecreasing
		case "either":
			direction = mot.DirectionEither
		default:
			return nil, errors.Wrapf(mot.ErrInvalidConfig, "unknown gate direction %q", g.Direction)
		}
		return mot.LineGate{Line: g.Line, Direction: direction}, nil
	case "radius":
		if g.BufferPoint == nil {
			return nil, errors.Wrap(mot.ErrInvalidConfig, "radius gate requires buffer_point")
		}
		if g.TriggerRadius <= 0 {
			return nil, errors.Wrapf(mot.ErrInvalidConfig, "gate_trigger_radius must be positive, got %v", g.TriggerRadius)
		}
		return mot.RadiusGate{
			BufferPoint:   mot.NewPoint(g.BufferPoint[0], g.BufferPoint[1]),
			TriggerRadius: g.TriggerRadius,
		}, nil
	case "extent":
		if g.MinTravel <= 0 {
			return nil, errors.Wrapf(mot.ErrInvalidConfig, "min_travel must be positive, got %v", g.MinTravel)
		}
		return mot.ExtentGate{MinTravel: g.MinTravel}, nil
	default:
		return nil, errors.Wrapf(mot.ErrInvalidConfig, "unknown gate kind %q", g.Kind)
	}
}

func setIfPresent(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}
