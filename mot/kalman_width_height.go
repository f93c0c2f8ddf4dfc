package mot

import (
	"math"

	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/pkg/errors"
)

// WidthHeightFilter is a motion estimator using 8-D Kalman filter for full bounding box dynamics.
// State vector: [cx, cy, w, h, vx, vy, vw, vh] - center position, size, and velocities.
// It implements MotionEstimator interface.
type WidthHeightFilter struct {
	tracker *kalman_filter.KalmanBBox
	params  EstimatorParams
	current Box
}

// NewWidthHeightFilter creates filter with state initialized from the first measurement
func NewWidthHeightFilter(initial Box, params EstimatorParams) *WidthHeightFilter {
	return &WidthHeightFilter{
		tracker: newKalmanBBox(initial, params),
		params:  params,
		current: initial,
	}
}

func newKalmanBBox(initial Box, params EstimatorParams) *kalman_filter.KalmanBBox {
	// No control input: constant velocity model
	uCx := 0.0
	uCy := 0.0
	uW := 0.0
	uH := 0.0
	stdDevMCx := math.Sqrt(params.MeasurementNoisePos)
	stdDevMCy := math.Sqrt(params.MeasurementNoisePos)
	stdDevMW := math.Sqrt(params.MeasurementNoiseShape)
	stdDevMH := math.Sqrt(params.MeasurementNoiseShape)
	return kalman_filter.NewKalmanBBox(
		1.0, uCx, uCy, uW, uH,
		params.AccelerationStdDev, stdDevMCx, stdDevMCy, stdDevMW, stdDevMH,
		kalman_filter.WithStateBBox(initial.X, initial.Y, initial.Width, initial.Height),
	)
}

// Predict executes Kalman filter prediction step.
// When predicted width or height is not positive the filter restarts from the last box with zero velocities.
func (wh *WidthHeightFilter) Predict() (Box, error) {
	wh.tracker.Predict()
	cx, cy, w, h := wh.tracker.GetState()
	for _, v := range [4]float64{cx, cy, w, h} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return wh.current, errors.Wrap(ErrEstimatorFault, "non-finite predicted state")
		}
	}
	if w <= 0 || h <= 0 {
		wh.tracker = newKalmanBBox(wh.current, wh.params)
		return wh.current, nil
	}
	wh.current = Box{X: cx, Y: cy, Width: w, Height: h}
	return wh.current, nil
}

// Update executes Kalman filter update step with measured box
func (wh *WidthHeightFilter) Update(measurement Box) error {
	err := wh.tracker.Update(measurement.X, measurement.Y, measurement.Width, measurement.Height)
	if err != nil {
		return errors.Wrapf(ErrEstimatorFault, "can't update box filter: %v", err)
	}
	cx, cy, w, h := wh.tracker.GetState()
	wh.current = Box{X: cx, Y: cy, Width: maxFloat64(w, 0), Height: maxFloat64(h, 0)}
	return nil
}

// CurrentBox returns smoothed bounding box
func (wh *WidthHeightFilter) CurrentBox() Box {
	return wh.current
}

// Velocity returns current velocity estimates of the center
func (wh *WidthHeightFilter) Velocity() (float64, float64) {
	vx, vy, _, _ := wh.tracker.GetVelocity()
	return vx, vy
}
