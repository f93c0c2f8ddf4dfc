package mot

import (
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/blas/gonum"
)

// Backend is the linear algebra implementation matrices of motion estimators are computed with.
// It is resolved once before tracking starts.
type Backend uint8

const (
	// BackendSoftware is gonum's pure Go BLAS
	BackendSoftware Backend = iota
	// BackendAccelerated is a native BLAS registered via blas64.Use (e.g. netlib/OpenBLAS)
	BackendAccelerated
)

func (b Backend) String() string {
	switch b {
	case BackendSoftware:
		return "software"
	case BackendAccelerated:
		return "accelerated"
	default:
		return "unknown"
	}
}

// ProbeBackend inspects which BLAS implementation is registered in gonum.
// Call it once at startup: the answer does not change unless blas64.Use is called again.
func ProbeBackend() Backend {
	switch blas64.Implementation().(type) {
	case gonum.Implementation, *gonum.Implementation:
		return BackendSoftware
	default:
		return BackendAccelerated
	}
}
