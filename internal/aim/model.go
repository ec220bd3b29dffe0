package aim

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// State vector layout. The filter estimates the rotation center of the
// target, not the plate it sees: the observation function maps the
// center, radius and yaw onto the single currently visible plate.
const (
	ixc   = 0 // center x
	ivxc  = 1 // center x velocity
	iyc   = 2 // center y
	ivyc  = 3 // center y velocity
	iza   = 4 // plate z
	ivza  = 5 // plate z velocity
	iyaw  = 6 // assembly yaw
	ivyaw = 7 // yaw rate
	ir    = 8 // center-to-plate radius

	stateDim = 9
	measDim  = 4
)

// ProcessNoiseSigmas are per-axis white-noise-acceleration variances.
type ProcessNoiseSigmas struct {
	X, Y, Z, Yaw, R float64
}

// MeasurementNoiseCoeffs scale the diagonal measurement covariance. The
// position terms grow with the observed coordinate magnitude so distant
// plates are trusted less; the yaw term is constant.
type MeasurementNoiseCoeffs struct {
	X, Y, Z, Yaw float64
}

// PredictState advances the state by dt under a constant-velocity,
// constant-yaw-rate model. Velocities and radius pass through.
func PredictState(x mat.Vector, dt float64) *mat.VecDense {
	out := mat.NewVecDense(stateDim, nil)
	for i := 0; i < stateDim; i++ {
		out.SetVec(i, x.AtVec(i))
	}
	out.SetVec(ixc, x.AtVec(ixc)+x.AtVec(ivxc)*dt)
	out.SetVec(iyc, x.AtVec(iyc)+x.AtVec(ivyc)*dt)
	out.SetVec(iza, x.AtVec(iza)+x.AtVec(ivza)*dt)
	out.SetVec(iyaw, x.AtVec(iyaw)+x.AtVec(ivyaw)*dt)
	return out
}

// PredictJacobian returns the 9x9 state-transition Jacobian. The model
// is linear in the velocities, so it depends on dt alone.
func PredictJacobian(dt float64) *mat.Dense {
	f := identity(stateDim)
	f.Set(ixc, ivxc, dt)
	f.Set(iyc, ivyc, dt)
	f.Set(iza, ivza, dt)
	f.Set(iyaw, ivyaw, dt)
	return f
}

// Observe maps the center state onto the visible plate:
// xa = xc − r·cos(yaw), ya = yc − r·sin(yaw), za and yaw pass through.
// Yaw is deliberately not wrapped here; the filter runs on the
// unwrapped angle.
func Observe(x mat.Vector) *mat.VecDense {
	yaw, r := x.AtVec(iyaw), x.AtVec(ir)
	z := mat.NewVecDense(measDim, nil)
	z.SetVec(0, x.AtVec(ixc)-r*math.Cos(yaw))
	z.SetVec(1, x.AtVec(iyc)-r*math.Sin(yaw))
	z.SetVec(2, x.AtVec(iza))
	z.SetVec(3, x.AtVec(iyaw))
	return z
}

// ObserveJacobian returns the 4x9 Jacobian of Observe at x.
func ObserveJacobian(x mat.Vector) *mat.Dense {
	yaw, r := x.AtVec(iyaw), x.AtVec(ir)
	h := mat.NewDense(measDim, stateDim, nil)
	h.Set(0, ixc, 1)
	h.Set(0, iyaw, r*math.Sin(yaw))
	h.Set(0, ir, -math.Cos(yaw))
	h.Set(1, iyc, 1)
	h.Set(1, iyaw, -r*math.Cos(yaw))
	h.Set(1, ir, -math.Sin(yaw))
	h.Set(2, iza, 1)
	h.Set(3, iyaw, 1)
	return h
}

// ProcessNoise builds the discretized white-noise-acceleration Q for a
// step of dt. Each position/velocity pair gets the standard block
//
//	[ dt⁴/4·σ²  dt³/2·σ² ]
//	[ dt³/2·σ²  dt²·σ²   ]
//
// and the radius, which has no rate state, gets the scalar dt⁴/4·σ²r.
func ProcessNoise(dt float64, s ProcessNoiseSigmas) *mat.Dense {
	q := mat.NewDense(stateDim, stateDim, nil)
	setBlock := func(pos, vel int, sigma2 float64) {
		q.Set(pos, pos, dt*dt*dt*dt/4*sigma2)
		q.Set(pos, vel, dt*dt*dt/2*sigma2)
		q.Set(vel, pos, dt*dt*dt/2*sigma2)
		q.Set(vel, vel, dt*dt*sigma2)
	}
	setBlock(ixc, ivxc, s.X)
	setBlock(iyc, ivyc, s.Y)
	setBlock(iza, ivza, s.Z)
	setBlock(iyaw, ivyaw, s.Yaw)
	q.Set(ir, ir, dt*dt*dt*dt/4*s.R)
	return q
}

// MeasurementNoise builds the diagonal R for observation z. Position
// noise scales with range so the filter discounts distant plates.
func MeasurementNoise(z mat.Vector, c MeasurementNoiseCoeffs) *mat.Dense {
	r := mat.NewDense(measDim, measDim, nil)
	r.Set(0, 0, math.Abs(c.X*z.AtVec(0)))
	r.Set(1, 1, math.Abs(c.Y*z.AtVec(1)))
	r.Set(2, 2, math.Abs(c.Z*z.AtVec(2)))
	r.Set(3, 3, c.Yaw)
	return r
}

// WrapYaw maps an unwrapped angle into (−π, π]. Read-time presentation
// only; never applied inside the filter.
func WrapYaw(yaw float64) float64 {
	wrapped := math.Mod(yaw+math.Pi, 2*math.Pi)
	if wrapped <= 0 {
		wrapped += 2 * math.Pi
	}
	return wrapped - math.Pi
}

// ShortestAngularDistance returns the signed shortest arc from angle a
// to angle b.
func ShortestAngularDistance(a, b float64) float64 {
	return WrapYaw(b - a)
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}
