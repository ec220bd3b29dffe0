package aim

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrNoSolution is returned when the solver cannot produce a usable
// aim command for the reported target.
var ErrNoSolution = errors.New("no ballistic solution")

// SolverConfig holds the ballistic and timing parameters.
type SolverConfig struct {
	BulletSpeed      float64 // muzzle speed (m/s)
	Gravity          float64 // m/s²
	AirResistanceK   float64 // horizontal drag coefficient (1/m)
	ControllerDelay  float64 // command-to-motion latency (s)
	FireYawThreshold float64 // max remaining yaw error to advise firing (rad)
	MaxPitch         float64 // reject solutions steeper than this (rad)
}

// DefaultSolverConfig returns the tuning used on the reference turret.
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		BulletSpeed:      25.0,
		Gravity:          9.8,
		AirResistanceK:   0.038,
		ControllerDelay:  0.05,
		FireYawThreshold: 0.05,
		MaxPitch:         math.Pi / 4,
	}
}

// TrajectoryPoint is one sampled point of the bullet arc, horizontal
// range vs height relative to the muzzle.
type TrajectoryPoint struct {
	Range  float64 `json:"range"`
	Height float64 `json:"height"`
}

// Solver converts a tracking report into a gimbal command. It predicts
// the target forward by latency plus bullet flight time, picks the
// plate presenting itself to the shooter, and compensates pitch for
// bullet drop under a horizontal-drag model. The shooter sits at the
// target-frame origin; the solver assumes the gimbal follows its
// commands, so angle diffs are relative to the previously commanded
// direction.
type Solver struct {
	cfg      SolverConfig
	aimYaw   float64
	aimPitch float64
}

// NewSolver creates a solver with the given configuration.
func NewSolver(cfg SolverConfig) *Solver {
	return &Solver{cfg: cfg}
}

// Solve implements the ballistic collaborator contract.
func (s *Solver) Solve(r TrackingReport, now time.Time) (GimbalCmd, error) {
	if !r.Tracking {
		return GimbalCmd{}, fmt.Errorf("%w: report is not tracking", ErrNoSolution)
	}

	latency := now.Sub(r.Stamp).Seconds() + s.cfg.ControllerDelay
	if latency < 0 {
		latency = 0
	}

	// Flight time couples to aim distance, which couples to the
	// predicted target position. A few fixed-point rounds converge for
	// any plausible engagement range.
	var aim Vec3
	var pitch, flight float64
	for iter := 0; iter < 4; iter++ {
		pred := predictReport(r, latency+flight)
		plate, ok := facingPlate(pred)
		if !ok {
			return GimbalCmd{}, fmt.Errorf("%w: no plate reconstruction", ErrNoSolution)
		}
		aim = plate.Position

		d := math.Hypot(aim.X, aim.Y)
		if d < 0.1 || !isFinite(d) {
			return GimbalCmd{}, fmt.Errorf("%w: degenerate aim distance %.3f", ErrNoSolution, d)
		}

		var err error
		pitch, err = s.compensatePitch(d, aim.Z)
		if err != nil {
			return GimbalCmd{}, err
		}
		newFlight, err := s.flightTime(d, pitch)
		if err != nil {
			return GimbalCmd{}, err
		}
		if math.Abs(newFlight-flight) < 1e-4 {
			flight = newFlight
			break
		}
		flight = newFlight
	}

	yaw := math.Atan2(aim.Y, aim.X)
	yawDiff := ShortestAngularDistance(s.aimYaw, yaw)
	pitchDiff := pitch - s.aimPitch
	s.aimYaw = yaw
	s.aimPitch = pitch

	cmd := GimbalCmd{
		YawDiff:    yawDiff * 180 / math.Pi,
		PitchDiff:  pitchDiff * 180 / math.Pi,
		Distance:   math.Hypot(aim.X, aim.Y),
		FireAdvice: math.Abs(yawDiff) < s.cfg.FireYawThreshold,
	}
	tracef("[Solver] aim=(%.2f, %.2f, %.2f) flight=%.3fs cmd yaw=%.2f° pitch=%.2f° fire=%v",
		aim.X, aim.Y, aim.Z, flight, cmd.YawDiff, cmd.PitchDiff, cmd.FireAdvice)
	return cmd, nil
}

// Trajectory samples the bullet arc for the given horizontal distance
// and launch pitch. Diagnostics only.
func (s *Solver) Trajectory(distance, pitch float64) []TrajectoryPoint {
	if distance <= 0 || !isFinite(distance) || !isFinite(pitch) {
		return nil
	}
	const samples = 20
	points := make([]TrajectoryPoint, 0, samples)
	for i := 0; i < samples; i++ {
		x := distance * float64(i) / float64(samples-1)
		t, err := s.flightTime(x, pitch)
		if err != nil {
			return points
		}
		h := s.cfg.BulletSpeed*math.Sin(pitch)*t - 0.5*s.cfg.Gravity*t*t
		points = append(points, TrajectoryPoint{Range: x, Height: h})
	}
	return points
}

// flightTime solves the horizontal drag model
// x(t) = ln(1 + k·v·cosθ·t)/k for t at x = d.
func (s *Solver) flightTime(d, pitch float64) (float64, error) {
	vh := s.cfg.BulletSpeed * math.Cos(pitch)
	if vh < 1e-6 {
		return 0, fmt.Errorf("%w: no horizontal velocity at pitch %.3f", ErrNoSolution, pitch)
	}
	k := s.cfg.AirResistanceK
	if k < 1e-9 {
		return d / vh, nil
	}
	t := (math.Exp(k*d) - 1) / (k * vh)
	if !isFinite(t) || t < 0 {
		return 0, fmt.Errorf("%w: flight time diverged at d=%.2f", ErrNoSolution, d)
	}
	return t, nil
}

// compensatePitch iterates the launch angle until the simulated drop
// hits the target height.
func (s *Solver) compensatePitch(d, h float64) (float64, error) {
	pitch := math.Atan2(h, d)
	aimH := h
	for i := 0; i < 20; i++ {
		t, err := s.flightTime(d, pitch)
		if err != nil {
			return 0, err
		}
		actualH := s.cfg.BulletSpeed*math.Sin(pitch)*t - 0.5*s.cfg.Gravity*t*t
		dh := h - actualH
		if math.Abs(dh) < 1e-3 {
			return pitch, nil
		}
		aimH += dh
		pitch = math.Atan2(aimH, d)
		if !isFinite(pitch) || math.Abs(pitch) > s.cfg.MaxPitch {
			return 0, fmt.Errorf("%w: pitch out of range at d=%.2f h=%.2f", ErrNoSolution, d, h)
		}
	}
	return 0, fmt.Errorf("%w: pitch compensation did not converge for d=%.2f h=%.2f", ErrNoSolution, d, h)
}

// facingPlate picks the reconstructed plate whose facing is closest to
// the shooter's line of sight.
func facingPlate(r TrackingReport) (Plate, bool) {
	plates := ReconstructPlates(r)
	if len(plates) == 0 {
		return Plate{}, false
	}
	best := plates[0]
	bestCost := math.Inf(1)
	for _, p := range plates {
		losYaw := math.Atan2(p.Position.Y, p.Position.X)
		cost := math.Abs(ShortestAngularDistance(WrapYaw(p.Yaw), losYaw))
		if cost < bestCost {
			bestCost = cost
			best = p
		}
	}
	return best, true
}

// predictReport advances the report's kinematic state by t seconds
// under the same constant-velocity model the filter uses.
func predictReport(r TrackingReport, t float64) TrackingReport {
	out := r
	out.Position.X += r.Velocity.X * t
	out.Position.Y += r.Velocity.Y * t
	out.Position.Z += r.Velocity.Z * t
	out.Yaw += r.VYaw * t
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
