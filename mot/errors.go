package mot

import "github.com/pkg/errors"

var (
	// ErrInvalidConfig is returned (wrapped) when tracker configuration can't be used
	ErrInvalidConfig = errors.New("invalid tracker configuration")
	// ErrInvalidDetection marks measurement which has non-finite coordinates or non-positive size
	ErrInvalidDetection = errors.New("invalid detection")
	// ErrEstimatorFault marks numerical failure inside motion estimator (singular innovation covariance, NaN state)
	ErrEstimatorFault = errors.New("motion estimator fault")
)
