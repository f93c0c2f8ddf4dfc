package mot

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	stateDim       = 7
	measurementDim = 4
)

// AreaAspectFilter is a constant velocity Kalman filter for a bounding box.
// State vector: [cx, cy, s, r, vcx, vcy, vs] where s is area and r is aspect ratio (w/h).
// Aspect ratio is considered constant, so it has no velocity component.
// It implements MotionEstimator interface.
type AreaAspectFilter struct {
	x *mat.VecDense // state
	p *mat.Dense    // state covariance
	f *mat.Dense    // transition
	h *mat.Dense    // observation
	q *mat.Dense    // process noise
	r *mat.Dense    // measurement noise
}

// NewAreaAspectFilter creates filter with state initialized from the first measurement.
// Velocities start at zero with high variance since they are not observed yet.
func NewAreaAspectFilter(initial Box, params EstimatorParams) *AreaAspectFilter {
	f := mat.NewDense(stateDim, stateDim, nil)
	for i := 0; i < stateDim; i++ {
		f.Set(i, i, 1.0)
	}
	// position += velocity
	for i := 0; i < 3; i++ {
		f.Set(i, measurementDim+i, 1.0)
	}

	h := mat.NewDense(measurementDim, stateDim, nil)
	for i := 0; i < measurementDim; i++ {
		h.Set(i, i, 1.0)
	}

	r := mat.NewDense(measurementDim, measurementDim, nil)
	r.Set(0, 0, params.MeasurementNoisePos)
	r.Set(1, 1, params.MeasurementNoisePos)
	r.Set(2, 2, params.MeasurementNoiseShape)
	r.Set(3, 3, params.MeasurementNoiseShape)

	p := mat.NewDense(stateDim, stateDim, nil)
	for i := 0; i < measurementDim; i++ {
		p.Set(i, i, params.InitialVariancePos)
	}
	for i := measurementDim; i < stateDim; i++ {
		p.Set(i, i, params.InitialVarianceVel)
	}

	q := mat.NewDense(stateDim, stateDim, nil)
	for i := 0; i < measurementDim; i++ {
		q.Set(i, i, params.ProcessNoisePos)
	}
	q.Set(4, 4, params.ProcessNoiseVel)
	q.Set(5, 5, params.ProcessNoiseVel)
	q.Set(6, 6, params.ProcessNoiseAreaVel)

	x := mat.NewVecDense(stateDim, nil)
	z := toMeasurement(initial)
	for i := 0; i < measurementDim; i++ {
		x.SetVec(i, z.AtVec(i))
	}

	return &AreaAspectFilter{
		x: x,
		p: p,
		f: f,
		h: h,
		q: q,
		r: r,
	}
}

// Predict executes Kalman filter's prediction step.
// Area velocity is dropped when it would make predicted area non-positive.
func (kf *AreaAspectFilter) Predict() (Box, error) {
	var x mat.VecDense
	x.CloneFromVec(kf.x)
	if x.AtVec(6)+x.AtVec(2) <= 0 {
		x.SetVec(6, 0)
	}

	var xPred mat.VecDense
	xPred.MulVec(kf.f, &x)

	var fp, pPred mat.Dense
	fp.Mul(kf.f, kf.p)
	pPred.Mul(&fp, kf.f.T())
	pPred.Add(&pPred, kf.q)

	if !finiteVec(&xPred) || !finiteMat(&pPred) {
		return kf.CurrentBox(), errors.Wrap(ErrEstimatorFault, "non-finite predicted state")
	}
	kf.x = &xPred
	kf.p = &pPred
	return kf.CurrentBox(), nil
}

// Update executes Kalman filter's correction step with a new measurement
func (kf *AreaAspectFilter) Update(measurement Box) error {
	z := toMeasurement(measurement)

	var hx, y mat.VecDense
	hx.MulVec(kf.h, kf.x)
	y.SubVec(z, &hx)

	// Innovation covariance S = H*P*H' + R
	var pht, hpht mat.Dense
	pht.Mul(kf.p, kf.h.T())
	hpht.Mul(kf.h, &pht)
	s := mat.NewSymDense(measurementDim, nil)
	for i := 0; i < measurementDim; i++ {
		for j := i; j < measurementDim; j++ {
			s.SetSym(i, j, 0.5*(hpht.At(i, j)+hpht.At(j, i))+kf.r.At(i, j))
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(s); !ok {
		return errors.Wrap(ErrEstimatorFault, "innovation covariance is not positive definite")
	}

	// K' = S^-1 * (P*H')' since both P and S are symmetric
	var kt mat.Dense
	if err := chol.SolveTo(&kt, pht.T()); err != nil {
		return errors.Wrapf(ErrEstimatorFault, "can't solve for Kalman gain: %v", err)
	}
	k := kt.T()

	var ky, xNew mat.VecDense
	ky.MulVec(k, &y)
	xNew.AddVec(kf.x, &ky)

	// P = (I - K*H) * P
	var kh, ikh, pNew mat.Dense
	kh.Mul(k, kf.h)
	ikh.Sub(eye(stateDim), &kh)
	pNew.Mul(&ikh, kf.p)
	symmetrize(&pNew)

	if !finiteVec(&xNew) || !finiteMat(&pNew) {
		return errors.Wrap(ErrEstimatorFault, "non-finite corrected state")
	}
	kf.x = &xNew
	kf.p = &pNew
	return nil
}

// CurrentBox returns box derived from state vector
func (kf *AreaAspectFilter) CurrentBox() Box {
	return fromState(kf.x.AtVec(0), kf.x.AtVec(1), kf.x.AtVec(2), kf.x.AtVec(3))
}

// Velocity returns current estimation of center velocity
func (kf *AreaAspectFilter) Velocity() (float64, float64) {
	return kf.x.AtVec(4), kf.x.AtVec(5)
}

// uncertainty is the trace of state covariance
func (kf *AreaAspectFilter) uncertainty() float64 {
	return mat.Trace(kf.p)
}

// toMeasurement converts box to [cx, cy, s, r]
func toMeasurement(b Box) *mat.VecDense {
	r := 0.0
	if b.Height != 0 {
		r = b.Width / b.Height
	}
	return mat.NewVecDense(measurementDim, []float64{b.X, b.Y, b.Width * b.Height, r})
}

// fromState converts [cx, cy, s, r] to box: w = sqrt(s*r), h = s/w
func fromState(cx, cy, s, r float64) Box {
	w := 0.0
	if prod := s * r; prod > 0 {
		w = math.Sqrt(prod)
	}
	h := 0.0
	if w > 0 {
		h = s / w
	}
	return Box{X: cx, Y: cy, Width: w, Height: h}
}

func eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1.0)
	}
	return m
}

func symmetrize(m *mat.Dense) {
	n, _ := m.Dims()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := 0.5 * (m.At(i, j) + m.At(j, i))
			m.Set(i, j, v)
			m.Set(j, i, v)
		}
	}
}

func finiteVec(v *mat.VecDense) bool {
	for i := 0; i < v.Len(); i++ {
		if f := v.AtVec(i); math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

func finiteMat(m *mat.Dense) bool {
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if f := m.At(i, j); math.IsNaN(f) || math.IsInf(f, 0) {
				return false
			}
		}
	}
	return true
}
