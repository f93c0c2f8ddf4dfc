package mot

import (
	"math"

	"github.com/pkg/errors"
)

// Axis is the image axis the counting gate is evaluated along
type Axis uint8

const (
	// AxisY is vertical axis (objects falling or moving along a conveyor from top to bottom)
	AxisY Axis = iota
	// AxisX is horizontal axis
	AxisX
)

func (a Axis) String() string {
	if a == AxisX {
		return "x"
	}
	return "y"
}

// coordinate picks point's coordinate along axis
func (a Axis) coordinate(p Point) float64 {
	if a == AxisX {
		return p.X
	}
	return p.Y
}

// EstimatorParams holds noise parameters of built-in motion estimators.
// Variances are in squared pixels (position) and squared pixels^2 (area).
type EstimatorParams struct {
	// Measurement noise variance for center coordinates
	MeasurementNoisePos float64
	// Measurement noise variance for area and aspect ratio (or width and height). Blob detector makes these noisier than position
	MeasurementNoiseShape float64
	// Initial variance of observed state components
	InitialVariancePos float64
	// Initial variance of velocities. Velocity is not observed at creation, so it should be large
	InitialVarianceVel float64
	// Process noise variance for observed state components
	ProcessNoisePos float64
	// Process noise variance for center velocities
	ProcessNoiseVel float64
	// Process noise variance for area velocity
	ProcessNoiseAreaVel float64
	// Acceleration standard deviation for ModelWidthHeight
	AccelerationStdDev float64
}

// DefaultEstimatorParams returns parameters suitable for small rigid parts at high frame rates
func DefaultEstimatorParams() EstimatorParams {
	return EstimatorParams{
		MeasurementNoisePos:   1.0,
		MeasurementNoiseShape: 10.0,
		InitialVariancePos:    10.0,
		InitialVarianceVel:    10000.0,
		ProcessNoisePos:       1.0,
		ProcessNoiseVel:       0.01,
		ProcessNoiseAreaVel:   0.0001,
		AccelerationStdDev:    2.0,
	}
}

// Validate checks that every variance is positive and finite
func (params EstimatorParams) Validate() error {
	checks := []struct {
		name  string
		value float64
	}{
		{"measurement noise (position)", params.MeasurementNoisePos},
		{"measurement noise (shape)", params.MeasurementNoiseShape},
		{"initial variance (position)", params.InitialVariancePos},
		{"initial variance (velocity)", params.InitialVarianceVel},
		{"process noise (position)", params.ProcessNoisePos},
		{"process noise (velocity)", params.ProcessNoiseVel},
		{"process noise (area velocity)", params.ProcessNoiseAreaVel},
		{"acceleration std dev", params.AccelerationStdDev},
	}
	for _, check := range checks {
		if !(check.value > 0) || math.IsInf(check.value, 0) {
			return errors.Wrapf(ErrInvalidConfig, "%s must be positive and finite, got %v", check.name, check.value)
		}
	}
	return nil
}

// TrackerConfig holds configuration of TrackManager
type TrackerConfig struct {
	// Minimum IoU between detection and predicted box to be matched. Must be in [0, 1]
	MinIoU float64
	// Number of consecutive frames without match after which track is removed. Must be positive
	MaxAge int
	// Consecutive matches (creation frame included) required for track to become confirmed
	MinHitStreak int
	// Max number of predicted boxes kept while track is unmatched
	MaxHistory int
	// Algorithm for the assignment problem
	Algorithm MatchingAlgorithm
	// Motion model of built-in estimators
	Model MotionModel
	// Noise parameters of built-in estimators
	Estimator EstimatorParams
	// Axis along which trajectory extremes are accumulated
	GateAxis Axis
	// Counting predicate. Nil means tracks are never counted
	Gate CountingPolicy
	// Optional region of interest. Nil means whole frame
	ROI *Rectangle
}

// DefaultTrackerConfig returns default tracker parameters.
// Gate is not set: caller should provide counting policy for its scene
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MinIoU:       0.3,
		MaxAge:       1,
		MinHitStreak: 3,
		MaxHistory:   30,
		Algorithm:    MatchingAlgorithmKuhnMunkres,
		Model:        ModelAreaAspect,
		Estimator:    DefaultEstimatorParams(),
		GateAxis:     AxisY,
	}
}

// Validate checks configuration. Every error returned wraps ErrInvalidConfig
func (cfg TrackerConfig) Validate() error {
	if math.IsNaN(cfg.MinIoU) || cfg.MinIoU < 0 || cfg.MinIoU > 1 {
		return errors.Wrapf(ErrInvalidConfig, "min IoU must be in [0, 1], got %v", cfg.MinIoU)
	}
	if cfg.MaxAge <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "max age must be positive, got %d", cfg.MaxAge)
	}
	if cfg.MinHitStreak < 1 {
		return errors.Wrapf(ErrInvalidConfig, "min hit streak must be at least 1, got %d", cfg.MinHitStreak)
	}
	if cfg.MaxHistory < 1 {
		return errors.Wrapf(ErrInvalidConfig, "max history must be at least 1, got %d", cfg.MaxHistory)
	}
	switch cfg.Algorithm {
	case MatchingAlgorithmKuhnMunkres, MatchingAlgorithmHungarian:
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown matching algorithm %d", cfg.Algorithm)
	}
	switch cfg.Model {
	case ModelAreaAspect, ModelWidthHeight:
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown motion model %d", cfg.Model)
	}
	if cfg.GateAxis != AxisX && cfg.GateAxis != AxisY {
		return errors.Wrapf(ErrInvalidConfig, "unknown gate axis %d", cfg.GateAxis)
	}
	if cfg.ROI != nil && (cfg.ROI.Width <= 0 || cfg.ROI.Height <= 0) {
		return errors.Wrapf(ErrInvalidConfig, "region of interest must have positive size, got %vx%v", cfg.ROI.Width, cfg.ROI.Height)
	}
	return cfg.Estimator.Validate()
}
