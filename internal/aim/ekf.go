package aim

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrSingularInnovation is returned by Update when the innovation
// covariance cannot be inverted. The caller keeps the predicted state
// and treats the observation as rejected.
var ErrSingularInnovation = errors.New("innovation covariance is singular")

// Model bundles the functions that parameterize the filter: state
// transition and observation with their Jacobians, plus the two noise
// generators. The engine itself is model-agnostic so it can be tested
// against the motion model independently.
type Model struct {
	PredictState     func(x mat.Vector, dt float64) *mat.VecDense
	PredictJacobian  func(dt float64) *mat.Dense
	Observe          func(x mat.Vector) *mat.VecDense
	ObserveJacobian  func(x mat.Vector) *mat.Dense
	ProcessNoise     func(dt float64) *mat.Dense
	MeasurementNoise func(z mat.Vector) *mat.Dense
}

// EKF is an extended Kalman filter over a Model. It owns the running
// state estimate and its error covariance.
type EKF struct {
	model Model
	x     *mat.VecDense
	p     *mat.Dense
}

// NewEKF creates a filter with the given model and initial condition.
func NewEKF(model Model, x0 mat.Vector, p0 mat.Matrix) *EKF {
	f := &EKF{model: model}
	f.SetState(x0, p0)
	return f
}

// SetState replaces the estimate and covariance. Used on track
// (re)initialization and plate-switch takeovers.
func (f *EKF) SetState(x mat.Vector, p mat.Matrix) {
	n := x.Len()
	f.x = mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		f.x.SetVec(i, x.AtVec(i))
	}
	f.p = mat.DenseCopyOf(p)
}

// State returns the current estimate. The vector is owned by the
// filter; callers must not mutate it.
func (f *EKF) State() *mat.VecDense { return f.x }

// Covariance returns the current error covariance, owned by the filter.
func (f *EKF) Covariance() *mat.Dense { return f.p }

// Predict advances the estimate by dt:
// x ← f(x, dt), P ← F·P·Fᵀ + Q(dt).
func (f *EKF) Predict(dt float64) *mat.VecDense {
	F := f.model.PredictJacobian(dt)
	f.x = f.model.PredictState(f.x, dt)

	var fp, fpft mat.Dense
	fp.Mul(F, f.p)
	fpft.Mul(&fp, F.T())
	fpft.Add(&fpft, f.model.ProcessNoise(dt))
	f.p = &fpft
	return f.x
}

// Update corrects the estimate with observation z using the standard
// linear-Gaussian step linearized at the current state. On a singular
// innovation covariance the filter is left at its predicted state and
// ErrSingularInnovation is returned.
func (f *EKF) Update(z mat.Vector) (*mat.VecDense, error) {
	H := f.model.ObserveJacobian(f.x)
	R := f.model.MeasurementNoise(z)

	// S = H·P·Hᵀ + R
	var ph, s mat.Dense
	ph.Mul(f.p, H.T())
	s.Mul(H, &ph)
	s.Add(&s, R)

	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		return f.x, fmt.Errorf("%w: %v", ErrSingularInnovation, err)
	}
	if !allFinite(&sInv) {
		return f.x, ErrSingularInnovation
	}

	// K = P·Hᵀ·S⁻¹
	var k mat.Dense
	k.Mul(&ph, &sInv)

	// x ← x + K·(z − h(x))
	var innov, corr mat.VecDense
	innov.SubVec(z, f.model.Observe(f.x))
	corr.MulVec(&k, &innov)
	f.x.AddVec(f.x, &corr)

	// P ← (I − K·H)·P
	var kh, newP mat.Dense
	kh.Mul(&k, H)
	n, _ := kh.Dims()
	ikh := identity(n)
	ikh.Sub(ikh, &kh)
	newP.Mul(ikh, f.p)
	f.p = symmetrize(&newP)

	return f.x, nil
}

// symmetrize averages P with its transpose. Floating error accumulated
// over many updates otherwise drifts P away from symmetry.
func symmetrize(p *mat.Dense) *mat.Dense {
	n, _ := p.Dims()
	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out.Set(i, j, (p.At(i, j)+p.At(j, i))/2)
		}
	}
	return out
}

func allFinite(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
