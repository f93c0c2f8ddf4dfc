package mot

// MotionEstimator keeps kinematic state of a single object across frames.
// When an error is returned the estimator keeps reporting its last valid box.
type MotionEstimator interface {
	// Predict advances state by one frame and returns predicted box
	Predict() (Box, error)
	// Update corrects state with measured box
	Update(measurement Box) error
	// CurrentBox returns box derived from current state
	CurrentBox() Box
	// Velocity returns current center velocity (pixels per frame)
	Velocity() (float64, float64)
}

// EstimatorFactory creates estimator initialized with the first measurement of an object
type EstimatorFactory func(initial Box) MotionEstimator

// MotionModel is for selecting state parametrization of built-in estimators
type MotionModel uint16

const (
	// ModelAreaAspect tracks [cx, cy, area, aspect_ratio] and velocities of cx, cy, area
	ModelAreaAspect MotionModel = iota
	// ModelWidthHeight tracks [cx, cy, w, h] and their velocities
	ModelWidthHeight
)

func (m MotionModel) String() string {
	switch m {
	case ModelAreaAspect:
		return "area_aspect"
	case ModelWidthHeight:
		return "width_height"
	default:
		return "unknown"
	}
}

// newEstimatorFactory returns factory for built-in estimator of given model
func newEstimatorFactory(model MotionModel, params EstimatorParams) EstimatorFactory {
	switch model {
	case ModelWidthHeight:
		return func(initial Box) MotionEstimator {
			return NewWidthHeightFilter(initial, params)
		}
	default:
		return func(initial Box) MotionEstimator {
			return NewAreaAspectFilter(initial, params)
		}
	}
}
